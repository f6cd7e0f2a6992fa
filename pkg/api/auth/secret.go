package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost mirrors the cost the identity layer of the source
// lineage uses for secrets at rest.
const DefaultBcryptCost = 10

// ErrSecretTooShort is returned when an admin secret is too weak to be
// worth hashing.
var ErrSecretTooShort = errors.New("auth: admin secret must be at least 16 characters")

// MinSecretLength is the minimum length required of the admin bearer
// secret configured via `dirlistener init`.
const MinSecretLength = 16

// HashSecret bcrypt-hashes the operator-chosen admin secret so it can be
// stored in the config file instead of in the clear.
func HashSecret(secret string) (string, error) {
	if len(secret) < MinSecretLength {
		return "", ErrSecretTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), DefaultBcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifySecret reports whether secret matches the stored bcrypt hash.
func VerifySecret(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
