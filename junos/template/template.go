// Package template renders Junos configuration templates written in Jinja2 syntax.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/flosch/pongo2/v6"
	"github.com/pkg/errors"
)

// Vars maps template variable names to their values.
type Vars map[string]interface{}

// Renderer renders template text against a set of variables. Implementations must be pure:
// the same text and vars always deliver the same output.
type Renderer interface {
	Render(text string, vars Vars) (string, error)
}

// Pongo is a Renderer using the pongo2 engine. Output is never HTML escaped.
type Pongo struct {
	// Strict causes rendering to fail when the template references a variable that is
	// neither supplied nor bound by the template itself.
	Strict bool
}

// NewRenderer delivers a pongo2 backed Renderer.
func NewRenderer(strict bool) *Pongo {
	return &Pongo{Strict: strict}
}

// UndefinedError reports template variables that were referenced but not supplied.
type UndefinedError struct {
	Names []string
}

func (e *UndefinedError) Error() string {
	return fmt.Sprintf("undefined template variable(s): %s", strings.Join(e.Names, ", "))
}

// Render implements Renderer.
func (p *Pongo) Render(text string, vars Vars) (string, error) {
	if p.Strict {
		if missing := Undefined(text, vars); len(missing) > 0 {
			return "", &UndefinedError{Names: missing}
		}
	}

	tpl, err := pongo2.FromString("{% autoescape off %}" + text + "{% endautoescape %}")
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template")
	}

	out, err := tpl.Execute(pongo2.Context(vars))
	if err != nil {
		return "", errors.Wrap(err, "failed to render template")
	}
	return out, nil
}

var (
	reExpression = regexp.MustCompile(`(?s){{-?(.*?)-?}}`)
	reTag        = regexp.MustCompile(`{%-?\s*(\w+)\s+(.*?)\s*-?%}`)
	reIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*`)
	reWithArg    = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*=`)
	reMacro      = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*\(([^)]*)\)`)
	reToken      = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|[A-Za-z_][A-Za-z0-9_]*|[0-9][0-9.]*|\S`)
)

// names that are always resolvable inside a template.
var builtins = map[string]bool{
	"forloop": true, "true": true, "false": true, "True": true, "False": true,
	"none": true, "None": true, "nil": true,
}

var operators = map[string]bool{"and": true, "or": true, "not": true, "in": true, "is": true}

// filters that supply a value in place of a missing one.
var guards = map[string]bool{"default": true, "default_if_none": true}

// Undefined delivers, in sorted order, the variables referenced by text that are neither
// present in vars nor bound by a for, set, with or macro tag within the template. Names
// piped through a default filter are not required.
func Undefined(text string, vars Vars) []string {
	bound := map[string]bool{}
	var referenced []string

	for _, m := range reTag.FindAllStringSubmatch(text, -1) {
		args := m[2]
		switch m[1] {
		case "for":
			parts := strings.SplitN(args, " in ", 2)
			for _, name := range strings.Split(parts[0], ",") {
				bound[strings.TrimSpace(name)] = true
			}
			if len(parts) == 2 {
				referenced = append(referenced, expressionNames(parts[1])...)
			}
		case "set":
			parts := strings.SplitN(args, "=", 2)
			if root := reIdentifier.FindString(strings.TrimSpace(parts[0])); root != "" {
				bound[root] = true
			}
			if len(parts) == 2 {
				referenced = append(referenced, expressionNames(parts[1])...)
			}
		case "with":
			for _, a := range reWithArg.FindAllStringSubmatch(args, -1) {
				bound[a[1]] = true
			}
		case "macro":
			if mm := reMacro.FindStringSubmatch(args); mm != nil {
				bound[mm[1]] = true
				for _, a := range strings.Split(mm[2], ",") {
					if name := reIdentifier.FindString(strings.TrimSpace(a)); name != "" {
						bound[name] = true
					}
				}
			}
		}
	}

	for _, m := range reExpression.FindAllStringSubmatch(text, -1) {
		referenced = append(referenced, expressionNames(m[1])...)
	}

	seen := map[string]bool{}
	var missing []string
	for _, name := range referenced {
		if _, ok := vars[name]; ok || bound[name] || builtins[name] || seen[name] {
			continue
		}
		seen[name] = true
		missing = append(missing, name)
	}
	sort.Strings(missing)
	return missing
}

// expressionNames delivers the variables an expression reads. Attribute names, filter names
// and literals are skipped; a default filter guards every name to its left.
func expressionNames(expr string) (names []string) {
	prev := ""
	for _, tok := range reToken.FindAllString(expr, -1) {
		switch {
		case !reIdentifier.MatchString(tok):
		case prev == "|":
			if guards[tok] {
				names = nil
			}
		case prev == "." || operators[tok]:
		default:
			names = append(names, tok)
		}
		prev = tok
	}
	return names
}
