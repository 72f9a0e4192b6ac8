// Package prompt renders model prompts from {{variable}} templates.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

var variablePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Template is a parsed prompt template. Values substituted into it are
// inserted verbatim and never re-expanded, so user text containing
// "{{...}}" is safe.
type Template struct {
	name string
	text string
	vars []string
}

func New(name, text string) (*Template, error) {
	vars := ExtractVariables(text)
	if len(vars) == 0 {
		return nil, fmt.Errorf("template %s: no variables", name)
	}
	return &Template{name: name, text: text, vars: vars}, nil
}

// MustNew is New for package-level templates; it panics on error.
func MustNew(name, text string) *Template {
	t, err := New(name, text)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) Name() string        { return t.name }
func (t *Template) Variables() []string { return t.vars }

// Render fills every variable. Missing variables are an error; extra ones
// are ignored.
func (t *Template) Render(vars map[string]string) (string, error) {
	var missing []string
	for _, v := range t.vars {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("template %s: missing variables: %s", t.name, strings.Join(missing, ", "))
	}

	return variablePattern.ReplaceAllStringFunc(t.text, func(match string) string {
		return vars[match[2:len(match)-2]]
	}), nil
}

// ExtractVariables returns the distinct variable names in text, in order
// of first appearance.
func ExtractVariables(text string) []string {
	matches := variablePattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool)
	var vars []string
	for _, m := range matches {
		if !seen[m[1]] {
			vars = append(vars, m[1])
			seen[m[1]] = true
		}
	}
	return vars
}
