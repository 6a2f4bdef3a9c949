// Package formattext implements the format_text on-disk layout of
// spec.md §4.I: a config-tree payload (the same curly-brace syntax
// original_source/lib/config/config.c parses) written into a small
// cyclic ring buffer of metadata areas, grounded on
// original_source/lib/format_text/format-text.h and backup.c (the
// archive/backup side, which internal/metadata's BackupManager already
// covers) plus spec.md §4.I/§9 for the ring-buffer commit protocol,
// whose exact slot-selection algorithm spec.md leaves as an open
// question; the monotone-append-then-wrap scheme in mda.go is this
// module's resolution of it.
package formattext

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lvm2go/lvm2core/internal/lvmerrors"
)

// Value is a config-tree leaf: either an int64, a string, or a list of
// either (LVM2's config grammar allows mixed-type arrays, e.g. the
// stripes list interleaving PV names and start extents).
type Value struct {
	Int    int64
	Str    string
	IsStr  bool
	List   []Value
	IsList bool
}

func Int(v int64) Value  { return Value{Int: v} }
func Str(v string) Value { return Value{Str: v, IsStr: true} }
func List(vs ...Value) Value { return Value{List: vs, IsList: true} }

func (v Value) render(sb *strings.Builder) {
	switch {
	case v.IsList:
		sb.WriteByte('[')
		for i, e := range v.List {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.render(sb)
		}
		sb.WriteByte(']')
	case v.IsStr:
		sb.WriteByte('"')
		sb.WriteString(strings.ReplaceAll(v.Str, `"`, `\"`))
		sb.WriteByte('"')
	default:
		sb.WriteString(strconv.FormatInt(v.Int, 10))
	}
}

// Entry is one "key = value" or "name { ... }" line of a section.
type Entry struct {
	Key     string
	Value   Value     // set when this is a scalar entry
	Section *Section // set when this is a nested section
}

// Section is a config-tree node: an ordered list of entries, preserving
// declaration order for deterministic round trips (the original's
// config parser is itself order-preserving via its linked list of
// cft_nodes).
type Section struct {
	Entries []Entry
}

func (s *Section) Set(key string, v Value) {
	s.Entries = append(s.Entries, Entry{Key: key, Value: v})
}

func (s *Section) AddSection(key string) *Section {
	child := &Section{}
	s.Entries = append(s.Entries, Entry{Key: key, Section: child})
	return child
}

func (s *Section) Get(key string) (Value, bool) {
	for _, e := range s.Entries {
		if e.Key == key && e.Section == nil {
			return e.Value, true
		}
	}
	return Value{}, false
}

func (s *Section) GetSection(key string) *Section {
	for _, e := range s.Entries {
		if e.Key == key && e.Section != nil {
			return e.Section
		}
	}
	return nil
}

// Render serializes s as top-level entries (no enclosing braces),
// matching how a whole VG's config tree sits directly at file scope.
func (s *Section) Render() string {
	var sb strings.Builder
	s.renderInto(&sb, 0)
	return sb.String()
}

func (s *Section) renderInto(sb *strings.Builder, indent int) {
	pad := strings.Repeat("\t", indent)
	for _, e := range s.Entries {
		sb.WriteString(pad)
		sb.WriteString(e.Key)
		if e.Section != nil {
			sb.WriteString(" {\n")
			e.Section.renderInto(sb, indent+1)
			sb.WriteString(pad)
			sb.WriteString("}\n")
		} else {
			sb.WriteString(" = ")
			e.Value.render(sb)
			sb.WriteByte('\n')
		}
	}
}

// tokenizer

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokInt
	tokEquals
	tokLBrace
	tokRBrace
	tokLBracket
	tokRBracket
	tokComma
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	num  int64
}

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	n := len(src)
	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c == '#':
			for i < n && src[i] != '\n' {
				i++
			}
		case c == '=':
			toks = append(toks, token{kind: tokEquals})
			i++
		case c == '{':
			toks = append(toks, token{kind: tokLBrace})
			i++
		case c == '}':
			toks = append(toks, token{kind: tokRBrace})
			i++
		case c == '[':
			toks = append(toks, token{kind: tokLBracket})
			i++
		case c == ']':
			toks = append(toks, token{kind: tokRBracket})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma})
			i++
		case c == '"':
			j := i + 1
			var sb strings.Builder
			for j < n && src[j] != '"' {
				if src[j] == '\\' && j+1 < n {
					j++
				}
				sb.WriteByte(src[j])
				j++
			}
			if j >= n {
				return nil, lvmerrors.Formatf("formattext: unterminated string starting at byte %d", i)
			}
			toks = append(toks, token{kind: tokString, text: sb.String()})
			i = j + 1
		case c == '-' || (c >= '0' && c <= '9'):
			j := i + 1
			for j < n && src[j] >= '0' && src[j] <= '9' {
				j++
			}
			v, err := strconv.ParseInt(src[i:j], 10, 64)
			if err != nil {
				return nil, lvmerrors.Formatf("formattext: bad integer %q: %w", src[i:j], err)
			}
			toks = append(toks, token{kind: tokInt, num: v})
			i = j
		case isIdentStart(c):
			j := i + 1
			for j < n && isIdentCont(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j]})
			i = j
		default:
			return nil, lvmerrors.Formatf("formattext: unexpected byte %q at offset %d", c, i)
		}
	}
	toks = append(toks, token{kind: tokEOF})
	return toks, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isIdentCont(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '-' || c == '.'
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }
func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// Parse reads a config-tree document (a flat sequence of top-level
// entries, no enclosing braces), matching config_file_read's top-level
// cft_node list.
func Parse(src string) (*Section, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	sec, err := p.parseSection(false)
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, lvmerrors.Formatf("formattext: trailing input after top-level section")
	}
	return sec, nil
}

func (p *parser) parseSection(braced bool) (*Section, error) {
	s := &Section{}
	for {
		if braced && p.peek().kind == tokRBrace {
			return s, nil
		}
		if !braced && p.peek().kind == tokEOF {
			return s, nil
		}
		key := p.next()
		if key.kind != tokIdent {
			return nil, lvmerrors.Formatf("formattext: expected identifier, got token kind %d", key.kind)
		}
		switch p.peek().kind {
		case tokEquals:
			p.next()
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			s.Entries = append(s.Entries, Entry{Key: key.text, Value: v})
		case tokLBrace:
			p.next()
			child, err := p.parseSection(true)
			if err != nil {
				return nil, err
			}
			if p.next().kind != tokRBrace {
				return nil, lvmerrors.Formatf("formattext: unterminated section %q", key.text)
			}
			s.Entries = append(s.Entries, Entry{Key: key.text, Section: child})
		default:
			return nil, lvmerrors.Formatf("formattext: expected '=' or '{' after %q", key.text)
		}
	}
}

func (p *parser) parseValue() (Value, error) {
	t := p.peek()
	switch t.kind {
	case tokString:
		p.next()
		return Str(t.text), nil
	case tokInt:
		p.next()
		return Int(t.num), nil
	case tokLBracket:
		p.next()
		var items []Value
		for p.peek().kind != tokRBracket {
			v, err := p.parseValue()
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
			if p.peek().kind == tokComma {
				p.next()
			}
		}
		p.next()
		return List(items...), nil
	default:
		return Value{}, fmt.Errorf("formattext: expected a value, got token kind %d", t.kind)
	}
}
