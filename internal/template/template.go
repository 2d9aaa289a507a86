// Package template holds the versioned prompt templates used by the triage
// pipeline. Templates are plain data: literal text with named placeholders,
// no expressions and no code evaluation.
package template

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrMissingTemplate       = errors.New("template: missing template")
	ErrMissingBinding        = errors.New("template: missing binding")
	ErrUndeclaredPlaceholder = errors.New("template: undeclared placeholder")
	ErrUnusedPlaceholder     = errors.New("template: declared placeholder not used")
	ErrUnbalancedBrace       = errors.New("template: unbalanced brace")
	ErrDuplicateTemplate     = errors.New("template: duplicate name and version")
)

// Template is immutable once loaded.
type Template struct {
	Name         string   `yaml:"name"`
	Version      string   `yaml:"version"`
	Placeholders []string `yaml:"placeholders"`
	Text         string   `yaml:"text"`
}

// Ref renders as name@version, the form recorded in audit trails.
func (t Template) Ref() string {
	return t.Name + "@" + t.Version
}

// BindingError lists every declared placeholder that had no usable value.
type BindingError struct {
	Template string
	Missing  []string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrMissingBinding, e.Template, strings.Join(e.Missing, ", "))
}

func (e *BindingError) Unwrap() error {
	return ErrMissingBinding
}

type segment struct {
	literal     string
	placeholder string
}

// parse splits text into literal and placeholder segments. "{{" and "}}"
// are literal braces.
func parse(text string) ([]segment, error) {
	var (
		segments []segment
		lit      strings.Builder
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: '{' at offset %d", ErrUnbalancedBrace, i)
			}
			name := text[i+1 : i+1+end]
			if !validName(name) {
				return nil, fmt.Errorf("%w: invalid placeholder %q at offset %d", ErrUnbalancedBrace, name, i)
			}
			if lit.Len() > 0 {
				segments = append(segments, segment{literal: lit.String()})
				lit.Reset()
			}
			segments = append(segments, segment{placeholder: name})
			i += end + 1
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("%w: '}' at offset %d", ErrUnbalancedBrace, i)
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		segments = append(segments, segment{literal: lit.String()})
	}
	return segments, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// compiled is a template checked against its declared placeholders.
type compiled struct {
	tmpl     Template
	segments []segment
}

func compile(t Template) (compiled, error) {
	segments, err := parse(t.Text)
	if err != nil {
		return compiled{}, fmt.Errorf("%s: %w", t.Ref(), err)
	}

	declared := make(map[string]bool, len(t.Placeholders))
	for _, p := range t.Placeholders {
		declared[p] = false
	}
	for _, seg := range segments {
		if seg.placeholder == "" {
			continue
		}
		if _, ok := declared[seg.placeholder]; !ok {
			return compiled{}, fmt.Errorf("%s: %w: %s", t.Ref(), ErrUndeclaredPlaceholder, seg.placeholder)
		}
		declared[seg.placeholder] = true
	}

	unused := []string{}
	for name, used := range declared {
		if !used {
			unused = append(unused, name)
		}
	}
	if len(unused) > 0 {
		sort.Strings(unused)
		return compiled{}, fmt.Errorf("%s: %w: %s", t.Ref(), ErrUnusedPlaceholder, strings.Join(unused, ", "))
	}
	return compiled{tmpl: t, segments: segments}, nil
}

func (c compiled) render(bindings map[string]string) (string, error) {
	missing := []string{}
	for _, name := range c.tmpl.Placeholders {
		if strings.TrimSpace(bindings[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", &BindingError{Template: c.tmpl.Ref(), Missing: missing}
	}

	var out strings.Builder
	for _, seg := range c.segments {
		if seg.placeholder != "" {
			out.WriteString(bindings[seg.placeholder])
			continue
		}
		out.WriteString(seg.literal)
	}
	return out.String(), nil
}
