package regex

import (
	"fmt"
	"strings"
)

// Matcher is a compiled set of patterns, ready to classify strings
// against the highest-precedence one that matches.
type Matcher struct {
	start *dfaState
}

// Compile builds a Matcher recognising all of patterns at once. Pattern
// index 0 has the lowest precedence: Run returns the highest index whose
// accept state was reached, so callers that want earlier patterns to win
// should pass them last (the device filter does exactly this).
func Compile(patterns []string) (*Matcher, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("regex: no patterns given")
	}

	var sb strings.Builder
	for i, p := range patterns {
		sb.WriteString("(.*(")
		sb.WriteString(p)
		sb.WriteString(")")
		sb.WriteByte(targetTrans)
		sb.WriteString(")")
		if i < len(patterns)-1 {
			sb.WriteByte('|')
		}
	}

	root, err := parse(sb.String())
	if err != nil {
		return nil, err
	}

	var nodes []*node
	fillTable(&nodes, root)
	calcFunctions(nodes)
	start := calcStates(nodes, root)

	return &Matcher{start: start}, nil
}

func step(c byte, cs *dfaState, r *int) *dfaState {
	next := cs.next[c]
	if next == nil {
		return nil
	}
	if next.final > 0 && next.final > *r {
		*r = next.final
	}
	return next
}

// Run matches s against the compiled patterns, bracketing it with the
// `^`/`$` anchor sentinels so explicit anchors in a pattern only ever
// match the true start/end of s. It returns the 0-based index of the
// highest-precedence pattern accepted, or -1 if none matched.
func (m *Matcher) Run(s string) int {
	cs := m.start
	r := 0

	cs = step(hatChar, cs, &r)
	if cs == nil {
		return r - 1
	}

	for i := 0; i < len(s); i++ {
		cs = step(s[i], cs, &r)
		if cs == nil {
			return r - 1
		}
	}

	step(dollarChar, cs, &r)

	return r - 1
}
