package template

import (
	"embed"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/davidahmann/licensetriage/internal/crypto"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

type file struct {
	Templates []Template `yaml:"templates"`
}

// Load reads a YAML template set and hashes it from raw bytes.
func Load(path string) (*Registry, error) {
	// #nosec G304 -- path comes from operator-configured templates path.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	r, err := NewRegistry(f.Templates...)
	if err != nil {
		return nil, err
	}
	r.hash = crypto.DigestWithPrefix(data)
	r.source = data
	return r, nil
}

// Defaults returns the built-in TDLR template set.
func Defaults() (*Registry, error) {
	data, err := defaultsFS.ReadFile("defaults/tdlr.yaml")
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
