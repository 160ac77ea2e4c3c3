package config

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// CheckManagementKey validates a presented token against either the plain
// management key or its bcrypt hash. The hash takes precedence when set.
func CheckManagementKey(token, plainKey, hash string) error {
	if token == "" {
		return fmt.Errorf("management key not provided")
	}
	if hash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
			return fmt.Errorf("invalid management key")
		}
		return nil
	}
	if plainKey == "" {
		return fmt.Errorf("management key not configured")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(plainKey)) != 1 {
		return fmt.Errorf("invalid management key")
	}
	return nil
}

// HashManagementKey produces a bcrypt hash suitable for management_key_hash.
func HashManagementKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
