package filter

import (
	"fmt"

	"github.com/lvm2go/lvm2core/internal/devcache"
	"github.com/lvm2go/lvm2core/internal/regex"
)

// RegexFilter accepts or rejects a device by matching its aliases against
// a set of user-supplied accept/reject patterns, each written as
// "a<sep>regex<sep>" or "r<sep>regex<sep>" where <sep> is any character
// not used to open a bracketed form ("(", "[", "{" pair with their
// closing bracket; anything else pairs with itself).
type RegexFilter struct {
	engine *regex.Matcher
	accept []bool
}

// extractPattern splits a single "a|regex|"-style pattern into its
// accept/reject flag and bare regex body.
func extractPattern(pat string) (accept bool, body string, err error) {
	if len(pat) == 0 {
		return false, "", fmt.Errorf("filter: empty pattern")
	}

	switch pat[0] {
	case 'a':
		accept = true
	case 'r':
		accept = false
	default:
		return false, "", fmt.Errorf("filter: pattern must begin with 'a' or 'r': %q", pat)
	}
	pat = pat[1:]

	if len(pat) == 0 {
		return false, "", fmt.Errorf("filter: pattern has no separator: %q", pat)
	}

	var sep byte
	switch pat[0] {
	case '(':
		sep = ')'
	case '[':
		sep = ']'
	case '{':
		sep = '}'
	default:
		sep = pat[0]
	}
	pat = pat[1:]

	if len(pat) == 0 || pat[len(pat)-1] != sep {
		return false, "", fmt.Errorf("filter: invalid separator at end of pattern: %q", pat)
	}

	return accept, pat[:len(pat)-1], nil
}

// NewRegexFilter compiles patterns into a RegexFilter. Earlier patterns
// take precedence over later ones, matching the original rfilter's
// back-to-front fill (it wants the opposite precedence to what the
// underlying matcher gives, where the last-compiled pattern wins ties).
func NewRegexFilter(patterns []string) (*RegexFilter, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("filter: no patterns given")
	}

	n := len(patterns)
	regexes := make([]string, n)
	accept := make([]bool, n)
	for i, pat := range patterns {
		acc, body, err := extractPattern(pat)
		if err != nil {
			return nil, err
		}
		idx := n - 1 - i
		regexes[idx] = body
		accept[idx] = acc
	}

	engine, err := regex.Compile(regexes)
	if err != nil {
		return nil, fmt.Errorf("filter: compiling patterns: %w", err)
	}

	return &RegexFilter{engine: engine, accept: accept}, nil
}

func (rf *RegexFilter) PassesFilter(dev *devcache.Device) (bool, error) {
	nothingMatched := true
	for i, alias := range dev.Aliases {
		m := rf.engine.Run(alias)
		if m < 0 {
			continue
		}
		nothingMatched = false

		if rf.accept[m] {
			if i != 0 {
				dev.Aliases = promote(dev.Aliases, i)
			}
			return true, nil
		}
	}

	// pass everything that doesn't match anything.
	return nothingMatched, nil
}

// promote moves dev.Aliases[i] to the front, preserving the relative
// order of the rest, matching _accept_p's list_del/list_add promotion of
// the matched alias to canonical.
func promote(aliases []string, i int) []string {
	out := make([]string, 0, len(aliases))
	out = append(out, aliases[i])
	out = append(out, aliases[:i]...)
	out = append(out, aliases[i+1:]...)
	return out
}
