package deviceflow

import (
	"fmt"
	"strings"
)

// Rewrite replaces every literal occurrence of From with To
type Rewrite struct {
	From string
	To   string
}

// Rewrites is an ordered list of substring replacements applied to the
// verification URL before it is displayed. Rewrites are needed when the
// authorization server advertises an address the user's browser cannot reach.
type Rewrites []Rewrite

// Apply runs every replacement in order
func (r Rewrites) Apply(s string) string {
	for _, rw := range r {
		if rw.From == "" {
			continue
		}
		s = strings.ReplaceAll(s, rw.From, rw.To)
	}
	return s
}

// ParseRewrites parses a comma separated list of from=to pairs
func ParseRewrites(s string) (Rewrites, error) {
	var out Rewrites
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		rw, err := parseRewrite(part)
		if err != nil {
			return nil, err
		}
		out = append(out, rw)
	}
	return out, nil
}

func parseRewrite(s string) (Rewrite, error) {
	from, to, ok := strings.Cut(s, "=")
	if !ok || from == "" {
		return Rewrite{}, fmt.Errorf("invalid rewrite %q: want from=to", s)
	}
	return Rewrite{From: from, To: to}, nil
}

// Decode implements envconfig.Decoder
func (r *Rewrites) Decode(value string) error {
	parsed, err := ParseRewrites(value)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Set implements flag.Value, appending one from=to pair per call
func (r *Rewrites) Set(value string) error {
	rw, err := parseRewrite(value)
	if err != nil {
		return err
	}
	*r = append(*r, rw)
	return nil
}

func (r Rewrites) String() string {
	parts := make([]string, 0, len(r))
	for _, rw := range r {
		parts = append(parts, rw.From+"="+rw.To)
	}
	return strings.Join(parts, ",")
}
