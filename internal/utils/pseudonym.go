package utils

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Pseudonym returns a stable keyed hash of a user id, safe to use in logs
// and cache keys. The key must be 1 to 64 bytes.
func Pseudonym(userID string, key []byte) (string, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return "", fmt.Errorf("failed to create pseudonym hash: %w", err)
	}
	h.Write([]byte(userID))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Pseudonymizer binds Pseudonym to one key
type Pseudonymizer struct {
	key []byte
}

// NewPseudonymizer validates the key once so later calls cannot fail
func NewPseudonymizer(key string) (*Pseudonymizer, error) {
	if _, err := Pseudonym("", []byte(key)); err != nil {
		return nil, err
	}
	return &Pseudonymizer{key: []byte(key)}, nil
}

// Of returns the pseudonym of userID
func (p *Pseudonymizer) Of(userID string) string {
	s, _ := Pseudonym(userID, p.key)
	return s
}
