package rbac

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// SupervisorVerifier checks the supervisor PIN that unlocks POS discounts.
type SupervisorVerifier struct {
	hash []byte
}

// NewSupervisorVerifier wraps a bcrypt hash. An empty hash disables PIN unlocks.
func NewSupervisorVerifier(hash string) *SupervisorVerifier {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return &SupervisorVerifier{}
	}
	return &SupervisorVerifier{hash: []byte(hash)}
}

// HashPIN produces a bcrypt hash suitable for SUPERVISOR_PIN_HASH.
func HashPIN(pin string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPIN reports whether pin matches the configured hash.
func (v *SupervisorVerifier) VerifyPIN(pin string) bool {
	if v == nil || len(v.hash) == 0 {
		return false
	}
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(v.hash, []byte(pin)) == nil
}
