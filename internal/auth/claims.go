// Package auth consumes the identity claim issued by the upstream login service.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ErrInvalidToken indicates a missing, malformed, expired or forged token.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the payload of the opaque identity token.
type Claims struct {
	jwt.RegisteredClaims
	Role  string  `json:"role"`
	Units []int64 `json:"units,omitempty"`
}

// Verifier validates HMAC-signed identity tokens.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier constructs a Verifier. An empty issuer skips the issuer check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// WithNow overrides the clock for testing.
func (v *Verifier) WithNow(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// Parse validates raw and returns the actor it names.
func (v *Verifier) Parse(raw string) (shared.Actor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(v.secret) == 0 {
		return shared.Actor{}, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return shared.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return shared.Actor{}, fmt.Errorf("%w: subject must be a numeric actor id", ErrInvalidToken)
	}
	role := strings.TrimSpace(strings.ToLower(claims.Role))
	if role == "" {
		return shared.Actor{}, fmt.Errorf("%w: role claim required", ErrInvalidToken)
	}
	return shared.Actor{ID: id, Role: role, Units: claims.Units}, nil
}
