package interpreter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/benvon/voice-todo/internal/logger"
)

// MalformedResultError means the model answered with text that is not JSON.
// It is never retried.
type MalformedResultError struct {
	Raw string
	Err error
}

func (e *MalformedResultError) Error() string {
	return fmt.Sprintf("model result is not valid JSON: %v (raw: %s)", e.Err, logger.SanitizeString(e.Raw, 120))
}

func (e *MalformedResultError) Unwrap() error {
	return e.Err
}

// Decode parses model text as JSON. Prose or code fences around a single
// object are tolerated.
func Decode(text string) (any, error) {
	trimmed := strings.TrimSpace(text)
	var out any
	err := json.Unmarshal([]byte(trimmed), &out)
	if err == nil {
		return out, nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start != -1 && end > start {
		if inner := json.Unmarshal([]byte(trimmed[start:end+1]), &out); inner == nil {
			return out, nil
		}
	}
	return nil, &MalformedResultError{Raw: text, Err: err}
}
