// Package schema checks generation output against per-task JSON Schema
// contracts.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

type TaskType string

const (
	TaskCompleteness TaskType = "completeness_check"
	TaskRisk         TaskType = "risk_assessment"
	TaskFinal        TaskType = "final_recommendation"
)

// Schema is the output contract of one task: a JSON Schema document
// describing a single object.
type Schema struct {
	Task     TaskType
	Document []byte
}

func (s Schema) check() error {
	if s.Task == "" {
		return fmt.Errorf("schema: task is required")
	}
	if len(s.Document) == 0 {
		return fmt.Errorf("schema %s: document is empty", s.Task)
	}
	return nil
}

type FieldIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every problem found in one output. It never carries
// partial values.
type ValidationError struct {
	Task    TaskType
	Missing []string
	Invalid []FieldIssue
}

func (e *ValidationError) Error() string {
	parts := []string{}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	for _, issue := range e.Invalid {
		parts = append(parts, issue.Field+": "+issue.Reason)
	}
	return fmt.Sprintf("schema %s: %s", e.Task, strings.Join(parts, "; "))
}

func (e *ValidationError) empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

func (e *ValidationError) sort() {
	sort.Strings(e.Missing)
	sort.SliceStable(e.Invalid, func(i, j int) bool {
		return e.Invalid[i].Field < e.Invalid[j].Field
	})
}
