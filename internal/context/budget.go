package context

import (
	"errors"
	"fmt"
)

var (
	ErrBudgetExceeded = errors.New("context: mandatory categories exceed token budget")
	ErrInvalidBudget  = errors.New("context: invalid budget")
)

// CategoryWildcard claims every record field no other category lists.
const CategoryWildcard = "*"

// CategoryBudget is one slice of the context. Lower Priority values are
// placed first; equal priorities keep declaration order.
type CategoryBudget struct {
	Name     string   `yaml:"name" json:"name"`
	Share    float64  `yaml:"share" json:"share"`
	Priority int      `yaml:"priority" json:"priority"`
	Required bool     `yaml:"required" json:"required"`
	Fields   []string `yaml:"fields" json:"fields"`
}

type Budget struct {
	MaxTokens  int              `yaml:"max_tokens" json:"max_tokens"`
	Categories []CategoryBudget `yaml:"categories" json:"categories"`
}

// Validate checks the share invariant: each share in [0,1], total <= 1.
func (b Budget) Validate() error {
	if b.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidBudget)
	}
	if len(b.Categories) == 0 {
		return fmt.Errorf("%w: no categories", ErrInvalidBudget)
	}

	seen := map[string]bool{}
	total := 0.0
	for _, c := range b.Categories {
		if c.Name == "" {
			return fmt.Errorf("%w: category name is required", ErrInvalidBudget)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate category %s", ErrInvalidBudget, c.Name)
		}
		seen[c.Name] = true
		if c.Share < 0 || c.Share > 1 {
			return fmt.Errorf("%w: share for %s out of range", ErrInvalidBudget, c.Name)
		}
		if len(c.Fields) == 0 {
			return fmt.Errorf("%w: category %s lists no fields", ErrInvalidBudget, c.Name)
		}
		total += c.Share
	}
	// Tolerate float rounding on shares like 0.1+0.2+0.7.
	if total > 1.0+1e-9 {
		return fmt.Errorf("%w: shares sum to %.3f", ErrInvalidBudget, total)
	}
	return nil
}

// DefaultBudget mirrors the review priorities of the TDLR prompts: safety and
// regulatory material is mandatory, everything else competes for what is left.
func DefaultBudget() Budget {
	return Budget{
		MaxTokens: 6000,
		Categories: []CategoryBudget{
			{Name: "safety", Share: 0.2, Priority: 0, Required: true, Fields: []string{"background_info", "safety_critical"}},
			{Name: "regulatory", Share: 0.2, Priority: 0, Required: true, Fields: []string{"documents_submitted", "regulatory_requirements"}},
			{Name: "experience", Share: 0.25, Priority: 1, Fields: []string{"work_experience"}},
			{Name: "applicant", Share: 0.15, Priority: 2, Fields: []string{"applicant_info"}},
			{Name: "other", Share: 0.2, Priority: 3, Fields: []string{CategoryWildcard}},
		},
	}
}
