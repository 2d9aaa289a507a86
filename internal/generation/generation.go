// Package generation wraps the hosted text-generation service behind a small
// interface with bounded retry, rate limiting and provider clients.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransient marks failures worth retrying: timeouts, throttling, 5xx.
	ErrTransient = errors.New("generation: transient failure")
	// ErrFatal marks failures that will not improve on retry.
	ErrFatal            = errors.New("generation: fatal failure")
	ErrRetriesExhausted = errors.New("generation: retries exhausted")
)

type Parameters struct {
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
}

const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 2000
)

func (p Parameters) WithDefaults() Parameters {
	if p.Temperature == 0 {
		p.Temperature = DefaultTemperature
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	return p
}

// Generator is one call to the generation service.
type Generator interface {
	Generate(ctx context.Context, prompt string, params Parameters) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, params Parameters) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, params Parameters) (string, error) {
	return f(ctx, prompt, params)
}

// Result is the raw output of one successful generation step.
type Result struct {
	Text     string
	Template string
	Version  string
	Model    string
	Attempts int
}

// ModelName returns the model reported by g, or "" if g does not say.
func ModelName(g Generator) string {
	if m, ok := g.(interface{ Model() string }); ok {
		return m.Model()
	}
	return ""
}

func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

func Fatal(err error) error {
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// classifyStatus maps an HTTP status from a provider to the error taxonomy.
func classifyStatus(code int, err error) error {
	if code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500 {
		return Transient(err)
	}
	return Fatal(err)
}
