package validation

import (
	"errors"
	"strings"
	"testing"
)

type sample struct {
	Title string `validate:"notblank,max=10"`
	Color string `validate:"omitempty,sample_color"`
}

func init() {
	RegisterEnum("sample_color", "red", "green")
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      sample
		wantErr string
	}{
		{name: "valid", in: sample{Title: "pan", Color: "red"}},
		{name: "blank title", in: sample{Title: "   "}, wantErr: "title is required"},
		{name: "too long", in: sample{Title: strings.Repeat("a", 11)}, wantErr: "title must be at most 10"},
		{name: "bad enum", in: sample{Title: "pan", Color: "blue"}, wantErr: "color has invalid value blue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate.Struct(tt.in)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if got := Describe(err); got != tt.wantErr {
				t.Errorf("Describe() = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestDescribePlainError(t *testing.T) {
	t.Parallel()
	if got := Describe(errors.New("boom")); got != "boom" {
		t.Errorf("Describe() = %q, want boom", got)
	}
}

func TestSanitizeText(t *testing.T) {
	t.Parallel()
	if got := SanitizeText("  comprar\x00 leche \n"); got != "comprar leche" {
		t.Errorf("SanitizeText() = %q", got)
	}
}
