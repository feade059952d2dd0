package platform

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// TokenLength is the number of random characters in a token.
const TokenLength = 12

// NewID returns a random UUID used as a primary key.
func NewID() string {
	return uuid.New().String()
}

// NewToken returns prefix followed by TokenLength lowercase alphanumerics.
// Used for the random part of generated Message-IDs.
func NewToken(prefix string) string {
	size := big.NewInt(int64(len(tokenAlphabet)))
	b := make([]byte, TokenLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			panic("crypto/rand: " + err.Error())
		}
		b[i] = tokenAlphabet[n.Int64()]
	}
	return prefix + string(b)
}
