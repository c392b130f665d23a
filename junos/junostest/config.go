package junostest

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// statement is a node of a Junos configuration hierarchy: either a leaf ("host-name r1;")
// or a container ("system { ... }").
type statement struct {
	words    []string
	leaf     bool
	children []*statement
}

// key identifies the statement among its siblings. Leaves are keyed by their first word so
// that a merged leaf replaces its previous value.
func (s *statement) key() string {
	if s.leaf {
		return s.words[0]
	}
	return strings.Join(s.words, " ")
}

func (s *statement) text() string {
	return strings.Join(s.words, " ")
}

func (s *statement) clone() *statement {
	c := &statement{words: append([]string(nil), s.words...), leaf: s.leaf}
	c.children = cloneAll(s.children)
	return c
}

func cloneAll(stmts []*statement) []*statement {
	var c []*statement
	for _, s := range stmts {
		c = append(c, s.clone())
	}
	return c
}

// parseConfig parses configuration text in curly brace syntax.
func parseConfig(text string) ([]*statement, error) {
	tokens, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	stmts, _, err := parseBlock(tokens, 0, false)
	return stmts, err
}

func tokenize(text string) (tokens []string, err error) {
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
		case r == '#':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case r == '{' || r == '}' || r == ';':
			tokens = append(tokens, string(r))
		case r == '"':
			j := i + 1
			for j < len(runes) && runes[j] != '"' {
				if runes[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(runes) {
				return nil, errors.New("syntax error: unterminated quoted string")
			}
			tokens = append(tokens, string(runes[i:j+1]))
			i = j
		default:
			j := i
			for j < len(runes) && !unicode.IsSpace(runes[j]) && !strings.ContainsRune("{};\"", runes[j]) {
				j++
			}
			tokens = append(tokens, string(runes[i:j]))
			i = j - 1
		}
	}
	return tokens, nil
}

func parseBlock(tokens []string, pos int, nested bool) (stmts []*statement, next int, err error) {
	var words []string
	for pos < len(tokens) {
		tok := tokens[pos]
		pos++
		switch tok {
		case ";":
			if len(words) == 0 {
				return nil, pos, errors.New("syntax error, expecting <statement>: ;")
			}
			stmts = append(stmts, &statement{words: words, leaf: true})
			words = nil
		case "{":
			if len(words) == 0 {
				return nil, pos, errors.New("syntax error, expecting <statement>: {")
			}
			var children []*statement
			if children, pos, err = parseBlock(tokens, pos, true); err != nil {
				return nil, pos, err
			}
			stmts = append(stmts, &statement{words: words, children: children})
			words = nil
		case "}":
			if !nested {
				return nil, pos, errors.New("syntax error, unexpected }")
			}
			if len(words) > 0 {
				return nil, pos, errors.Errorf("syntax error, expecting ; or { after %s", strings.Join(words, " "))
			}
			return stmts, pos, nil
		default:
			words = append(words, tok)
		}
	}
	if nested {
		return nil, pos, errors.New("syntax error, missing }")
	}
	if len(words) > 0 {
		return nil, pos, errors.Errorf("syntax error, expecting ; or { after %s", strings.Join(words, " "))
	}
	return stmts, pos, nil
}

func find(stmts []*statement, s *statement) *statement {
	for _, c := range stmts {
		if c.leaf == s.leaf && c.key() == s.key() {
			return c
		}
	}
	return nil
}

// merge merges src into dst: containers are merged recursively and leaves replace leaves
// with the same key.
func merge(dst, src []*statement) []*statement {
	for _, s := range src {
		existing := find(dst, s)
		switch {
		case existing == nil:
			dst = append(dst, s.clone())
		case s.leaf:
			existing.words = append([]string(nil), s.words...)
		default:
			existing.children = merge(existing.children, s.children)
		}
	}
	return dst
}

// render formats statements the way "show configuration" does.
func render(stmts []*statement) string {
	var sb strings.Builder
	renderTo(&sb, stmts, 0)
	return sb.String()
}

func renderTo(sb *strings.Builder, stmts []*statement, depth int) {
	indent := strings.Repeat("    ", depth)
	for _, s := range stmts {
		if s.leaf {
			sb.WriteString(indent + s.text() + ";\n")
			continue
		}
		sb.WriteString(indent + s.text() + " {\n")
		renderTo(sb, s.children, depth+1)
		sb.WriteString(indent + "}\n")
	}
}

// diff formats the differences from active to candidate the way "show | compare" does.
func diff(active, candidate []*statement) string {
	var sb strings.Builder
	diffTo(&sb, nil, active, candidate)
	return sb.String()
}

func diffTo(sb *strings.Builder, path []string, active, candidate []*statement) {
	var lines []string
	var changed []*statement

	for _, c := range candidate {
		a := find(active, c)
		switch {
		case a == nil:
			lines = append(lines, prefixed("+ ", c)...)
		case c.leaf && a.text() != c.text():
			lines = append(lines, "- "+a.text()+";", "+ "+c.text()+";")
		case !c.leaf:
			changed = append(changed, c)
		}
	}
	for _, a := range active {
		if find(candidate, a) == nil {
			lines = append(lines, prefixed("- ", a)...)
		}
	}

	if len(lines) > 0 {
		sb.WriteString("[edit" + strings.Join(append([]string{""}, path...), " ") + "]\n")
		for _, l := range lines {
			sb.WriteString(l + "\n")
		}
	}
	for _, c := range changed {
		diffTo(sb, append(append([]string(nil), path...), c.text()), find(active, c).children, c.children)
	}
}

func prefixed(prefix string, s *statement) []string {
	rendered := strings.TrimSuffix(render([]*statement{s}), "\n")
	lines := strings.Split(rendered, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return lines
}
