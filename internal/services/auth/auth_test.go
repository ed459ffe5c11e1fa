package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/benvon/voice-todo/internal/models"
)

const testIssuer = "https://issuer.example.com"

func newKeyPair(t *testing.T) (jwk.Key, jwk.Set) {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	priv, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("FromRaw() error = %v", err)
	}
	_ = priv.Set(jwk.KeyIDKey, "test-key")
	_ = priv.Set(jwk.AlgorithmKey, jwa.RS256)

	pub, err := priv.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey() error = %v", err)
	}
	_ = pub.Set(jwk.KeyIDKey, "test-key")
	_ = pub.Set(jwk.AlgorithmKey, jwa.RS256)

	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		t.Fatalf("AddKey() error = %v", err)
	}
	return priv, set
}

func sign(t *testing.T, key jwk.Key, build func(jwt.Token)) string {
	t.Helper()
	tok := jwt.New()
	_ = tok.Set(jwt.IssuerKey, testIssuer)
	_ = tok.Set(jwt.SubjectKey, "auth0|alice")
	_ = tok.Set(jwt.ExpirationKey, time.Now().Add(time.Hour))
	_ = tok.Set("email", "alice@example.com")
	if build != nil {
		build(tok)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	return string(signed)
}

func TestVerifier(t *testing.T) {
	t.Parallel()

	key, set := newKeyPair(t)
	otherKey, _ := newKeyPair(t)
	v := NewVerifier(StaticKeys(set), testIssuer)

	tests := []struct {
		name    string
		token   string
		wantErr func(error) bool
	}{
		{name: "valid", token: sign(t, key, nil)},
		{
			name:    "expired",
			token:   sign(t, key, func(tok jwt.Token) { _ = tok.Set(jwt.ExpirationKey, time.Now().Add(-time.Hour)) }),
			wantErr: func(err error) bool { return err != nil },
		},
		{
			name:    "wrong issuer",
			token:   sign(t, key, func(tok jwt.Token) { _ = tok.Set(jwt.IssuerKey, "https://evil.example.com") }),
			wantErr: func(err error) bool { return err != nil },
		},
		{
			name:    "unknown signing key",
			token:   sign(t, otherKey, nil),
			wantErr: func(err error) bool { return err != nil },
		},
		{
			name:    "missing subject",
			token:   sign(t, key, func(tok jwt.Token) { _ = tok.Remove(jwt.SubjectKey) }),
			wantErr: func(err error) bool { return errors.Is(err, ErrMissingSubject) },
		},
		{
			name:    "garbage",
			token:   "not-a-jwt",
			wantErr: func(err error) bool { return err != nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			user, err := v.Verify(context.Background(), tt.token)
			if tt.wantErr != nil {
				if !tt.wantErr(err) {
					t.Fatalf("Verify() error = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if user.Subject != "auth0|alice" || user.Email != "alice@example.com" {
				t.Errorf("Verify() user = %+v", user)
			}
			if user.ID != models.UserIDFromSubject("auth0|alice") {
				t.Errorf("Verify() user ID = %s, want derived from subject", user.ID)
			}
		})
	}
}

func TestJWKSCache(t *testing.T) {
	t.Parallel()

	key, set := newKeyPair(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Hour)
	v := NewVerifier(cache, testIssuer)
	token := sign(t, key, nil)

	for i := 0; i < 3; i++ {
		if _, err := v.Verify(context.Background(), token); err != nil {
			t.Fatalf("Verify() #%d error = %v", i, err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("JWKS fetched %d times, want 1", got)
	}

	now := time.Now()
	cache.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, err := cache.Keys(context.Background()); err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("JWKS fetched %d times after expiry, want 2", got)
	}
}

func TestJWKSCacheEndpointError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewJWKSCache(srv.URL, 0).Keys(context.Background()); err == nil {
		t.Fatal("Keys() error = nil, want failure on 502")
	}
}
