package orchestrator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/davidahmann/licensetriage/internal/schema"
	"github.com/davidahmann/licensetriage/internal/template"
)

var ErrInvalidPipeline = errors.New("orchestrator: invalid pipeline")

// Binding sources a step placeholder can draw from.
const (
	SourceContext       = "context"
	SourceLicenseType   = "license_type"
	SourceApplicationID = "application_id"
	// SourceResultPrefix binds the canonical JSON of an earlier step's
	// validated output, e.g. "result:completeness_check".
	SourceResultPrefix = "result:"
)

// Step is one generation call of the pipeline. Bindings map template
// placeholders to binding sources.
type Step struct {
	Task     schema.TaskType   `yaml:"task"`
	Template string            `yaml:"template"`
	Version  string            `yaml:"version"`
	Bindings map[string]string `yaml:"bindings"`
}

func (s Step) ref() string {
	return s.Template + "@" + s.Version
}

// DefaultSteps is the three-step TDLR pipeline: completeness and risk read
// the application context, the final recommendation reads both results.
func DefaultSteps() []Step {
	return []Step{
		{
			Task:     schema.TaskCompleteness,
			Template: "completeness_check",
			Version:  "v2.1",
			Bindings: map[string]string{"license_type": SourceLicenseType, "application_data": SourceContext},
		},
		{
			Task:     schema.TaskRisk,
			Template: "risk_assessment",
			Version:  "v2.1",
			Bindings: map[string]string{"application_data": SourceContext},
		},
		{
			Task:     schema.TaskFinal,
			Template: "final_recommendation",
			Version:  "v2.1",
			Bindings: map[string]string{
				"completeness_result": SourceResultPrefix + string(schema.TaskCompleteness),
				"risk_result":         SourceResultPrefix + string(schema.TaskRisk),
			},
		},
	}
}

// checkSteps verifies every step names a known template and task, binds
// every placeholder and only reads results of earlier steps. The pipeline
// must also cover every task schema.Merge needs.
func checkSteps(steps []Step, templates *template.Registry, validator *schema.Validator) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidPipeline)
	}
	seen := map[schema.TaskType]bool{}
	for i, step := range steps {
		tmpl, ok := templates.Get(step.Template, step.Version)
		if !ok {
			return fmt.Errorf("%w: step %d: %w: %s", ErrInvalidPipeline, i, template.ErrMissingTemplate, step.ref())
		}
		if !validator.Has(step.Task) {
			return fmt.Errorf("%w: step %d: %w: %s", ErrInvalidPipeline, i, schema.ErrUnknownTask, step.Task)
		}
		if seen[step.Task] {
			return fmt.Errorf("%w: step %d: task %s repeated", ErrInvalidPipeline, i, step.Task)
		}

		var unbound []string
		for _, p := range tmpl.Placeholders {
			if _, ok := step.Bindings[p]; !ok {
				unbound = append(unbound, p)
			}
		}
		if len(unbound) > 0 {
			sort.Strings(unbound)
			return fmt.Errorf("%w: step %d: %s has unbound placeholders %s", ErrInvalidPipeline, i, step.ref(), strings.Join(unbound, ", "))
		}

		for placeholder, source := range step.Bindings {
			switch source {
			case SourceContext, SourceLicenseType, SourceApplicationID:
				continue
			}
			task, ok := strings.CutPrefix(source, SourceResultPrefix)
			if !ok {
				return fmt.Errorf("%w: step %d: %s binds unknown source %q", ErrInvalidPipeline, i, placeholder, source)
			}
			if !seen[schema.TaskType(task)] {
				return fmt.Errorf("%w: step %d: %s reads %s before it runs", ErrInvalidPipeline, i, placeholder, task)
			}
		}
		seen[step.Task] = true
	}
	var absent []string
	for _, task := range schema.MergeTasks() {
		if !seen[task] {
			absent = append(absent, string(task))
		}
	}
	if len(absent) > 0 {
		return fmt.Errorf("%w: no step for %s", ErrInvalidPipeline, strings.Join(absent, ", "))
	}
	return nil
}

func usesContext(steps []Step) bool {
	for _, step := range steps {
		for _, source := range step.Bindings {
			if source == SourceContext {
				return true
			}
		}
	}
	return false
}
