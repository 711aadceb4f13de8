package authserver

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/wrale/oauth2-device-login/internal/validation"
)

// generateSecureCode returns n random bytes hex encoded
func generateSecureCode(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// randomIndex picks an index in [0, n) without modulo bias
func randomIndex(n int) (int, error) {
	limit := 256 - (256 % n)
	b := make([]byte, 1)
	for {
		if _, err := rand.Read(b); err != nil {
			return 0, fmt.Errorf("generating random byte: %w", err)
		}
		if int(b[0]) < limit {
			return int(b[0]) % n, nil
		}
	}
}

// generateUserCode builds an XXXX-XXXX code per RFC 8628 section 6.1. No
// character appears more than twice, which keeps entropy above the
// validation minimum.
func generateUserCode() (string, error) {
	const maxAttempts = 100

	for attempt := 0; attempt < maxAttempts; attempt++ {
		counts := make(map[byte]int)
		var sb strings.Builder

		for i := 0; i < validation.CodeLength; i++ {
			if i == validation.GroupSize {
				sb.WriteByte('-')
			}

			available := make([]byte, 0, len(validation.ValidCharset))
			for j := 0; j < len(validation.ValidCharset); j++ {
				if c := validation.ValidCharset[j]; counts[c] < 2 {
					available = append(available, c)
				}
			}

			idx, err := randomIndex(len(available))
			if err != nil {
				return "", err
			}
			c := available[idx]
			counts[c]++
			sb.WriteByte(c)
		}

		code := sb.String()
		if validation.ValidateUserCode(code) == nil {
			return code, nil
		}
	}

	return "", fmt.Errorf("failed to generate valid code after %d attempts", maxAttempts)
}
