package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// privateKeyBytes is the entropy of a generated login key (48 hex characters).
const privateKeyBytes = 24

// ErrInvalidPrivateKey indicates the supplied key does not match the stored hash.
var ErrInvalidPrivateKey = errors.New("auth: private key is not correct")

// ValidateBcryptCost reports whether cost is accepted by bcrypt.
func ValidateBcryptCost(cost int) error {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	return nil
}

// GeneratePrivateKey returns a random login key and its bcrypt hash.
// The plaintext is shown to the user once; only the hash is stored.
func GeneratePrivateKey(cost int) (plaintext string, hash string, err error) {
	raw := make([]byte, privateKeyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	plaintext = hex.EncodeToString(raw)
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", "", err
	}
	return plaintext, string(hashed), nil
}

// VerifyPrivateKey compares a presented key with its stored hash.
func VerifyPrivateKey(plaintext, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPrivateKey
		}
		return err
	}
	return nil
}
