package template

import (
	"fmt"
	"sort"
)

type key struct {
	name    string
	version string
}

// Registry is a read-only set of compiled templates, safe for concurrent use.
type Registry struct {
	templates map[key]compiled
	hash      string
	source    []byte
}

// NewRegistry compiles templates and rejects duplicates.
func NewRegistry(templates ...Template) (*Registry, error) {
	r := &Registry{templates: make(map[key]compiled, len(templates))}
	for _, t := range templates {
		if t.Name == "" || t.Version == "" {
			return nil, fmt.Errorf("template name and version are required")
		}
		k := key{name: t.Name, version: t.Version}
		if _, ok := r.templates[k]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTemplate, t.Ref())
		}
		c, err := compile(t)
		if err != nil {
			return nil, err
		}
		r.templates[k] = c
	}
	return r, nil
}

// Render substitutes every declared placeholder of name@version.
func (r *Registry) Render(name, version string, bindings map[string]string) (string, error) {
	c, ok := r.templates[key{name: name, version: version}]
	if !ok {
		return "", fmt.Errorf("%w: %s@%s", ErrMissingTemplate, name, version)
	}
	return c.render(bindings)
}

func (r *Registry) Get(name, version string) (Template, bool) {
	c, ok := r.templates[key{name: name, version: version}]
	return c.tmpl, ok
}

// Versions lists the loaded versions of name in lexical order.
func (r *Registry) Versions(name string) []string {
	out := []string{}
	for k := range r.templates {
		if k.name == name {
			out = append(out, k.version)
		}
	}
	sort.Strings(out)
	return out
}

// Templates returns all templates ordered by name then version.
func (r *Registry) Templates() []Template {
	out := make([]Template, 0, len(r.templates))
	for _, c := range r.templates {
		out = append(out, c.tmpl)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// Hash is the digest of the raw template file, empty for registries built in code.
func (r *Registry) Hash() string {
	return r.hash
}

// Source returns the raw template file bytes.
func (r *Registry) Source() []byte {
	return r.source
}
