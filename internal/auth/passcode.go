package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// PasscodeHasher hashes room passcodes with bcrypt.
type PasscodeHasher struct {
	cost int
}

// NewPasscodeHasher returns a hasher; a cost outside bcrypt's range uses the default.
func NewPasscodeHasher(cost int) *PasscodeHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasscodeHasher{cost: cost}
}

func (h *PasscodeHasher) Hash(passcode string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(passcode), h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Matches reports whether passcode hashes to hash.
func (h *PasscodeHasher) Matches(hash, passcode string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(passcode)) == nil
}
