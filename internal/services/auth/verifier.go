package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/benvon/voice-todo/internal/models"
)

// ErrMissingSubject is returned for a valid token without a sub claim.
var ErrMissingSubject = errors.New("token missing subject claim")

// Verifier checks bearer tokens and maps them to users
type Verifier struct {
	keys   KeySource
	issuer string
}

// NewVerifier creates a Verifier. An empty issuer skips the iss check.
func NewVerifier(keys KeySource, issuer string) *Verifier {
	return &Verifier{keys: keys, issuer: issuer}
}

// Verify validates the signature and standard claims of tokenString and
// returns the user it identifies. The user ID is derived from the subject, so
// no user table is needed.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.User, error) {
	keys, err := v.keys.Keys(ctx)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParseOption{jwt.WithKeySet(keys), jwt.WithValidate(true)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}

	sub := token.Subject()
	if sub == "" {
		return nil, ErrMissingSubject
	}

	return &models.User{
		ID:      models.UserIDFromSubject(sub),
		Subject: sub,
		Email:   stringClaim(token, "email"),
		Name:    stringClaim(token, "name"),
	}, nil
}

func stringClaim(token jwt.Token, name string) string {
	v, ok := token.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
