package decision

import (
	"fmt"
	"strconv"

	triagectx "github.com/davidahmann/licensetriage/internal/context"
	"github.com/davidahmann/licensetriage/internal/crypto"
	"github.com/davidahmann/licensetriage/internal/generation"
	"github.com/davidahmann/licensetriage/internal/policy"
	"github.com/davidahmann/licensetriage/pkg/types"
)

type FactorInput struct {
	Decision types.ValidatedDecision
	Policy   policy.Decision
	Flags    types.ReviewFlags
	// Categories the context builder had to drop or truncate.
	Dropped   []string
	Truncated []string
}

// BuildFactors lists the decision factors in a fixed order: the escalation
// rule first, then scores, then the evidence behind them.
func BuildFactors(in FactorInput) []string {
	d := in.Decision
	factors := []string{
		fmt.Sprintf("policy:%s", in.Policy.MatchedRuleID),
		fmt.Sprintf("confidence:%d", d.Confidence),
		fmt.Sprintf("completeness:%d", d.CompletenessScore),
		fmt.Sprintf("risk:%d", d.RiskScore),
	}
	if d.RiskLevel != "" {
		factors = append(factors, "risk_level:"+d.RiskLevel)
	}
	if d.RecommendedAction != "" {
		factors = append(factors, "recommended_action:"+d.RecommendedAction)
	}
	if d.ModelRequestedReview {
		factors = append(factors, "model_requested_human_review")
	}
	if in.Flags.PolicyGrayArea {
		factors = append(factors, "flag:policy_gray_area")
	}
	if in.Flags.ComplexCase {
		factors = append(factors, "flag:complex_case")
	}
	for _, doc := range d.MissingDocuments {
		factors = append(factors, "missing_document:"+doc)
	}
	for _, f := range d.RiskFactors {
		factors = append(factors, "risk_factor:"+f)
	}
	for _, f := range d.ModelFactors {
		factors = append(factors, "model_factor:"+f)
	}
	for _, c := range in.Truncated {
		factors = append(factors, "context_truncated:"+c)
	}
	for _, c := range in.Dropped {
		factors = append(factors, "context_dropped:"+c)
	}
	return factors
}

// ConfigInput identifies everything outside the application that shaped a
// decision. Parameters holds the resolved generation parameters per task.
type ConfigInput struct {
	Model         string
	TemplatesHash string
	PolicyHash    string
	PolicyID      string
	PolicyVersion string
	Steps         []string
	Budget        triagectx.Budget
	Parameters    map[string]generation.Parameters
}

// ConfigSettings is the canonical JSON the config digest is computed over.
// It is stored beside the templates and policy so a digest can be
// recomputed from an evidence pack.
func ConfigSettings(in ConfigInput) ([]byte, error) {
	steps := in.Steps
	if steps == nil {
		steps = []string{}
	}
	categories := make([]any, 0, len(in.Budget.Categories))
	for _, c := range in.Budget.Categories {
		fields := c.Fields
		if fields == nil {
			fields = []string{}
		}
		categories = append(categories, map[string]any{
			"name":     c.Name,
			"share":    decimal(c.Share),
			"priority": c.Priority,
			"required": c.Required,
			"fields":   fields,
		})
	}
	params := make(map[string]any, len(in.Parameters))
	for task, p := range in.Parameters {
		params[task] = map[string]any{
			"temperature": decimal(p.Temperature),
			"max_tokens":  p.MaxTokens,
		}
	}
	view := map[string]any{
		"model":          in.Model,
		"templates_hash": in.TemplatesHash,
		"policy": map[string]any{
			"policy_id":      in.PolicyID,
			"policy_version": in.PolicyVersion,
			"policy_hash":    in.PolicyHash,
		},
		"steps": steps,
		"budget": map[string]any{
			"max_tokens": in.Budget.MaxTokens,
			"categories": categories,
		},
		"parameters": params,
	}
	return crypto.Canonicalize(view)
}

// ConfigDigest hashes ConfigSettings so records produced under the same
// setup share a digest.
func ConfigDigest(in ConfigInput) (string, error) {
	canonical, err := ConfigSettings(in)
	if err != nil {
		return "", err
	}
	return crypto.DigestWithPrefix(canonical), nil
}

// decimal renders a float as its shortest exact decimal string; canonical
// JSON carries no floats.
func decimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ContextDigest hashes the rendered texts of every pipeline step, in order.
func ContextDigest(texts []string) (string, error) {
	if texts == nil {
		texts = []string{}
	}
	canonical, err := crypto.Canonicalize(map[string]any{"contexts": texts})
	if err != nil {
		return "", err
	}
	return crypto.DigestWithPrefix(canonical), nil
}
