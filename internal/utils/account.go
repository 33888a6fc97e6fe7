package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateAccountID generates a new opaque ledger account identifier
func GenerateAccountID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate account id: %w", err)
	}
	return "acct_" + hex.EncodeToString(b), nil
}
