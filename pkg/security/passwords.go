package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrAccessCodeMismatch = errors.New("access code does not match")

// HashAccessCode hashes a signer access code with bcrypt.
func HashAccessCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash access code: %w", err)
	}
	return string(hash), nil
}

// CheckAccessCode compares code against a hash from HashAccessCode.
func CheckAccessCode(hash, code string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrAccessCodeMismatch
		}
		return fmt.Errorf("failed to check access code: %w", err)
	}
	return nil
}
