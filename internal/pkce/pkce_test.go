package pkce

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerifier(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		v, err := GenerateVerifier()
		require.NoError(t, err)
		assert.Len(t, v, VerifierLength)

		for _, c := range v {
			if !strings.ContainsRune(Alphabet, c) {
				t.Fatalf("verifier contains %q outside the alphanumeric alphabet", c)
			}
		}

		assert.False(t, seen[v], "verifier repeated")
		seen[v] = true
	}
}

func TestChallenge(t *testing.T) {
	// Appendix B of RFC 7636
	verifier := "dBjftJeZ4CVP-mJ92K9lnJM8YhxU0bSmuJdVGUNbF0Y"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", Challenge(verifier))
}

func TestChallengeHasNoPadding(t *testing.T) {
	for i := 0; i < 20; i++ {
		p, err := New()
		require.NoError(t, err)
		assert.NotContains(t, p.Challenge, "=")
		assert.NotContains(t, p.Challenge, "+")
		assert.NotContains(t, p.Challenge, "/")
		assert.Len(t, p.Challenge, 43)
	}
}

func TestVerify(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	assert.Equal(t, MethodS256, p.Method)

	tests := []struct {
		name      string
		challenge string
		verifier  string
		want      bool
	}{
		{"matching pair", p.Challenge, p.Verifier, true},
		{"wrong verifier", p.Challenge, p.Verifier[:VerifierLength-1] + "!", false},
		{"verifier as challenge", p.Verifier, p.Verifier, false},
		{"empty challenge", "", p.Verifier, false},
		{"empty verifier", p.Challenge, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Verify(tt.challenge, tt.verifier))
		})
	}
}
