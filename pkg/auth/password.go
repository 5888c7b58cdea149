package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

// DefaultBcryptCost is the bcrypt work factor used when none is configured.
const DefaultBcryptCost = 12

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	cost  int
	dummy []byte
}

// NewPasswordHasher returns a hasher using cost. A zero cost selects
// [DefaultBcryptCost].
func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, sserr.Newf(sserr.CodeValidation, "auth: BCRYPT_COST must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	// Compared against when the user does not exist, so a failed login
	// takes the same time whether or not the email is known.
	dummy, err := bcrypt.GenerateFromPassword([]byte("storefront-dummy-password"), cost)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "auth: failed to prepare password hasher")
	}
	return &PasswordHasher{cost: cost, dummy: dummy}, nil
}

// Hash returns the bcrypt hash of plain.
func (h *PasswordHasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", sserr.Newf(sserr.CodeValidationRange, "Longer than maximum length %d.", MaxPasswordBytes)
	}
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeInternal, "auth: failed to hash password")
	}
	return string(hash), nil
}

// Verify reports whether plain matches hash. An empty hash stands for an
// unknown user: a dummy comparison still runs and the result is false.
func (h *PasswordHasher) Verify(hash, plain string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
