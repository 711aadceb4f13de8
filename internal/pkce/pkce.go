// Package pkce implements Proof Key for Code Exchange (RFC 7636) with the S256 method
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	// VerifierLength is the number of characters in a generated code verifier
	VerifierLength = 128

	// MethodS256 is the only challenge method supported
	MethodS256 = "S256"

	// ChallengeLength is the length of an unpadded base64url SHA-256 digest
	ChallengeLength = 43

	// Alphabet is the character set code verifiers are drawn from
	Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Pair holds a code verifier together with its derived challenge
type Pair struct {
	Verifier  string
	Challenge string
	Method    string
}

// New generates a fresh verifier and its S256 challenge
func New() (*Pair, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, err
	}
	return &Pair{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		Method:    MethodS256,
	}, nil
}

// GenerateVerifier returns VerifierLength characters sampled uniformly, with
// replacement, from Alphabet using a cryptographically secure source.
func GenerateVerifier() (string, error) {
	// Bytes at or above this bound would bias the modulo
	limit := 256 - (256 % len(Alphabet))

	out := make([]byte, 0, VerifierLength)
	buf := make([]byte, VerifierLength)
	for len(out) < VerifierLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generating random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == VerifierLength {
				break
			}
		}
	}
	return string(out), nil
}

// Challenge derives the S256 code challenge: BASE64URL(SHA256(verifier)) without padding
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Verify reports whether verifier hashes to challenge under S256
func Verify(challenge, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	computed := Challenge(verifier)
	return subtle.ConstantTimeCompare([]byte(challenge), []byte(computed)) == 1
}
