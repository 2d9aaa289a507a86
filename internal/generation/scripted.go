package generation

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Response is one scripted reply. Kind "transient" or "fatal" turns it into
// an error of that class instead of text.
type Response struct {
	Text  string        `yaml:"text"`
	Kind  string        `yaml:"error"`
	Delay time.Duration `yaml:"delay"`
}

// ScriptRule answers prompts containing every Match substring. Responses are
// used in order and the last one repeats.
type ScriptRule struct {
	Match     []string   `yaml:"match"`
	Responses []Response `yaml:"responses"`
}

// Scripted replays canned responses. It is deterministic and safe for
// concurrent use; tests and dry runs use it in place of a provider.
type Scripted struct {
	ModelID string

	mu     sync.Mutex
	rules  []ScriptRule
	cursor []int
	calls  int
}

func NewScripted(model string, rules ...ScriptRule) *Scripted {
	if model == "" {
		model = "scripted"
	}
	return &Scripted{ModelID: model, rules: rules, cursor: make([]int, len(rules))}
}

type scriptFile struct {
	Model string       `yaml:"model"`
	Rules []ScriptRule `yaml:"rules"`
}

// LoadScript reads a YAML replay script.
func LoadScript(path string) (*Scripted, error) {
	// #nosec G304 -- path comes from operator CLI flag.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f scriptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	for i, rule := range f.Rules {
		if len(rule.Responses) == 0 {
			return nil, fmt.Errorf("script %s: rule %d has no responses", path, i)
		}
	}
	return NewScripted(f.Model, f.Rules...), nil
}

func (s *Scripted) Model() string {
	return s.ModelID
}

// Calls reports how many Generate calls were made.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Scripted) Generate(ctx context.Context, prompt string, _ Parameters) (string, error) {
	resp, err := s.next(prompt)
	if err != nil {
		return "", err
	}

	if resp.Delay > 0 {
		timer := time.NewTimer(resp.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	switch resp.Kind {
	case "":
		return resp.Text, nil
	case "transient":
		return "", Transient(fmt.Errorf("scripted %s", orDefault(resp.Text, "transient failure")))
	case "fatal":
		return "", Fatal(fmt.Errorf("scripted %s", orDefault(resp.Text, "fatal failure")))
	default:
		return "", Fatal(fmt.Errorf("scripted response has unknown error kind %q", resp.Kind))
	}
}

func (s *Scripted) next(prompt string) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	for i, rule := range s.rules {
		if !matchesAll(prompt, rule.Match) || len(rule.Responses) == 0 {
			continue
		}
		idx := s.cursor[i]
		if idx < len(rule.Responses)-1 {
			s.cursor[i]++
		}
		return rule.Responses[idx], nil
	}
	return Response{}, Fatal(fmt.Errorf("no scripted response for prompt"))
}

func matchesAll(prompt string, parts []string) bool {
	for _, p := range parts {
		if !strings.Contains(prompt, p) {
			return false
		}
	}
	return true
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
