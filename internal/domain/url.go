package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const urlAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// UniqueURLLength is the length of generated form share tokens.
// 10 base62 characters give ~59 bits of entropy.
const UniqueURLLength = 10

// NewUniqueURL generates a random URL-safe share token for a form.
// Uniqueness is enforced at the store; callers retry on collision.
func NewUniqueURL() (string, error) {
	b := make([]byte, UniqueURLLength)
	max := big.NewInt(int64(len(urlAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate unique url: %w", err)
		}
		b[i] = urlAlphabet[n.Int64()]
	}
	return string(b), nil
}
