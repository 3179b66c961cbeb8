package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// LinkTokenBytes is the entropy of a link token: 256 bits, 64 hex characters.
const LinkTokenBytes = 32

// Generator produces verification credentials from a random source.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a Generator reading from crypto/rand.
func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader}
}

// NewGeneratorFrom is used by tests to get deterministic credentials.
func NewGeneratorFrom(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// LinkToken generates a cryptographically random 64-character hex token.
func (g *Generator) LinkToken() (string, error) {
	b := make([]byte, LinkTokenBytes)
	if _, err := io.ReadFull(g.rand, b); err != nil {
		return "", fmt.Errorf("generate link token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// OTP generates an n-digit numeric code. Digits are drawn uniformly;
// bytes >= 250 are rejected so the modulo does not skew toward 0-5.
func (g *Generator) OTP(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid otp length %d", n)
	}
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
