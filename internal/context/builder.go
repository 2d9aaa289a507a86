// Package context assembles the application context sent to the generation
// service under a fixed token budget.
package context

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/davidahmann/licensetriage/pkg/types"
)

type SectionStatus string

const (
	SectionIncluded  SectionStatus = "included"
	SectionTruncated SectionStatus = "truncated"
	SectionDropped   SectionStatus = "dropped"
	SectionEmpty     SectionStatus = "empty"
)

type Section struct {
	Category string
	Required bool
	Status   SectionStatus
	Tokens   int
}

type Result struct {
	Text     string
	Tokens   int
	Sections []Section
}

// Dropped lists categories that had content but did not fit.
func (r Result) Dropped() []string {
	out := []string{}
	for _, s := range r.Sections {
		if s.Status == SectionDropped {
			out = append(out, s.Category)
		}
	}
	return out
}

// Truncated lists categories that were cut to fit their cap.
func (r Result) Truncated() []string {
	out := []string{}
	for _, s := range r.Sections {
		if s.Status == SectionTruncated {
			out = append(out, s.Category)
		}
	}
	return out
}

// Build renders record into context text under budget. When everything fits
// in MaxTokens every category goes in whole. Otherwise required categories
// are still never truncated (if they cannot all fit the build fails with
// ErrBudgetExceeded) and optional categories are capped at their share and
// at whatever remains once unplaced required categories are reserved.
func Build(record types.ApplicationRecord, budget Budget) (Result, error) {
	if err := budget.Validate(); err != nil {
		return Result{}, err
	}

	ordered := orderCategories(budget.Categories)
	rendered, err := renderSections(record, ordered)
	if err != nil {
		return Result{}, err
	}

	reserved, total := 0, 0
	for i, c := range ordered {
		tokens := EstimateTokens(rendered[i])
		total += tokens
		if c.Required {
			reserved += tokens
		}
	}
	overflow := total > budget.MaxTokens
	if reserved > budget.MaxTokens {
		return Result{}, fmt.Errorf("%w: required categories need %d tokens, limit %d", ErrBudgetExceeded, reserved, budget.MaxTokens)
	}

	var (
		out      strings.Builder
		used     int
		sections = make([]Section, 0, len(ordered))
	)
	for i, c := range ordered {
		text := rendered[i]
		tokens := EstimateTokens(text)
		section := Section{Category: c.Name, Required: c.Required}

		switch {
		case text == "":
			section.Status = SectionEmpty
		case c.Required:
			reserved -= tokens
			section.Status = SectionIncluded
			section.Tokens = tokens
		case !overflow:
			section.Status = SectionIncluded
			section.Tokens = tokens
		default:
			limit := budget.MaxTokens - used - reserved
			if shareCap := int(c.Share * float64(budget.MaxTokens)); shareCap < limit {
				limit = shareCap
			}
			text = truncateTokens(text, limit)
			switch {
			case text == "":
				section.Status = SectionDropped
			case text != rendered[i]:
				section.Status = SectionTruncated
			default:
				section.Status = SectionIncluded
			}
			section.Tokens = EstimateTokens(text)
		}

		if section.Tokens > 0 {
			out.WriteString(text)
			used += section.Tokens
		}
		sections = append(sections, section)
	}

	return Result{Text: out.String(), Tokens: used, Sections: sections}, nil
}

func orderCategories(categories []CategoryBudget) []CategoryBudget {
	ordered := make([]CategoryBudget, len(categories))
	copy(ordered, categories)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	return ordered
}

func renderSections(record types.ApplicationRecord, ordered []CategoryBudget) ([]string, error) {
	claimed := map[string]bool{}
	for _, c := range ordered {
		for _, f := range c.Fields {
			if f != CategoryWildcard {
				claimed[f] = true
			}
		}
	}

	out := make([]string, len(ordered))
	for i, c := range ordered {
		fields := selectFields(record.Fields, c.Fields, claimed)
		if len(fields) == 0 {
			continue
		}
		text, err := renderSection(c.Name, record.Fields, fields)
		if err != nil {
			return nil, fmt.Errorf("render category %s: %w", c.Name, err)
		}
		out[i] = text
	}
	return out, nil
}

func selectFields(all map[string]any, wanted []string, claimed map[string]bool) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, name := range wanted {
		if name == CategoryWildcard {
			rest := []string{}
			for field := range all {
				if !claimed[field] && !seen[field] {
					rest = append(rest, field)
				}
			}
			sort.Strings(rest)
			for _, field := range rest {
				seen[field] = true
				out = append(out, field)
			}
			continue
		}
		if _, ok := all[name]; ok && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	present := out[:0]
	for _, name := range out {
		if all[name] != nil {
			present = append(present, name)
		}
	}
	return present
}

// renderSection writes the fields in the given order as a YAML mapping. Nested
// maps come out with sorted keys. The result is NFC-normalized before it is
// measured so estimates match the emitted bytes.
func renderSection(category string, values map[string]any, fields []string) (string, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range fields {
		var value yaml.Node
		if err := value.Encode(values[name]); err != nil {
			return "", fmt.Errorf("field %s: %w", name, err)
		}
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}
		doc.Content = append(doc.Content, key, &value)
	}

	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return norm.NFC.String("## " + category + "\n" + b.String() + "\n"), nil
}
