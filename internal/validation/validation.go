// Package validation checks user codes shown during device authorization
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// User code shape per RFC 8628 section 6.1: two groups of GroupSize
// characters separated by a hyphen.
const (
	GroupSize  = 4
	CodeLength = 2 * GroupSize // Excluding separator
	MinEntropy = 2.0           // Shannon entropy in bits
)

// ValidCharset excludes vowels and look-alike characters
const ValidCharset = "BCDFGHJKLMNPQRSTVWXZ"

var codeRegex = regexp.MustCompile(fmt.Sprintf("^[%[1]s]{%[2]d}-[%[1]s]{%[2]d}$", ValidCharset, GroupSize))

// ValidationError describes why a user code was rejected
type ValidationError struct {
	Code   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid user code %q: %s", e.Code, e.Reason)
}

// ValidateUserCode checks format, charset, repetition and entropy. Input is
// accepted in any case and with surrounding whitespace.
func ValidateUserCode(code string) error {
	display := FormatCode(NormalizeCode(code))
	base := NormalizeCode(code)

	if len(base) != CodeLength {
		return &ValidationError{Code: display, Reason: fmt.Sprintf("must contain %d characters", CodeLength)}
	}
	if !codeRegex.MatchString(display) {
		return &ValidationError{Code: display, Reason: "must be XXXX-XXXX using " + ValidCharset}
	}

	counts := make(map[rune]int, len(base))
	for _, c := range base {
		counts[c]++
		if counts[c] > len(base)/2 {
			return &ValidationError{Code: display, Reason: "too many repeated characters"}
		}
	}

	if e := entropy(counts, len(base)); e < MinEntropy {
		return &ValidationError{Code: display, Reason: fmt.Sprintf("entropy %.2f bits below %.0f", e, MinEntropy)}
	}

	return nil
}

func entropy(counts map[rune]int, total int) float64 {
	var bits float64
	for _, n := range counts {
		p := float64(n) / float64(total)
		bits -= p * math.Log2(p)
	}
	return bits
}

// NormalizeCode strips separators and whitespace and upper-cases the code
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}

// FormatCode renders a normalized code in XXXX-XXXX display form
func FormatCode(code string) string {
	if len(code) != CodeLength {
		return code
	}
	return code[:GroupSize] + "-" + code[GroupSize:]
}
