package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ErrUnknownTask = errors.New("schema: unknown task")

const contractBaseURL = "https://licensetriage.invalid/schemas/"

var printer = message.NewPrinter(language.English)

type compiled struct {
	schema *jsonschema.Schema
	fields []string
}

// Validator holds the compiled contracts for a fixed set of tasks. It is
// read-only after construction.
type Validator struct {
	contracts map[TaskType]compiled
}

func NewValidator(schemas ...Schema) (*Validator, error) {
	v := &Validator{contracts: make(map[TaskType]compiled, len(schemas))}
	c := jsonschema.NewCompiler()
	for _, s := range schemas {
		if err := s.check(); err != nil {
			return nil, err
		}
		if _, ok := v.contracts[s.Task]; ok {
			return nil, fmt.Errorf("schema: duplicate task %s", s.Task)
		}
		fields, err := declaredFields(s.Document)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", s.Task, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(s.Document))
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", s.Task, err)
		}
		url := contractBaseURL + string(s.Task) + ".json"
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("schema %s: %w", s.Task, err)
		}
		sch, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", s.Task, err)
		}
		v.contracts[s.Task] = compiled{schema: sch, fields: fields}
	}
	return v, nil
}

// declaredFields lists the top-level properties a contract declares. Only
// these reach a Result.
func declaredFields(document []byte) ([]string, error) {
	var head struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(document, &head); err != nil {
		return nil, err
	}
	if head.Type != "object" || len(head.Properties) == 0 {
		return nil, fmt.Errorf("contract must describe an object with properties")
	}
	fields := make([]string, 0, len(head.Properties))
	for name := range head.Properties {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields, nil
}

var builtin = mustValidator(Builtin()...)

func mustValidator(schemas ...Schema) *Validator {
	v, err := NewValidator(schemas...)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks raw against the built-in contract for task.
func Validate(task TaskType, raw string) (Result, error) {
	return builtin.Validate(task, raw)
}

func (v *Validator) Has(task TaskType) bool {
	_, ok := v.contracts[task]
	return ok
}

// Validate extracts the JSON object in raw and checks it against the task
// contract. Either the whole object is valid and a Result is returned, or a
// *ValidationError lists every problem. A null member counts as absent.
func (v *Validator) Validate(task TaskType, raw string) (Result, error) {
	contract, ok := v.contracts[task]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}
	verr := &ValidationError{Task: task}
	doc, issue := extractObject(raw)
	if issue != "" {
		verr.Invalid = append(verr.Invalid, FieldIssue{Field: "$", Reason: issue})
		return Result{}, verr
	}
	for name, value := range doc {
		if value == nil {
			delete(doc, name)
		}
	}

	if err := contract.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return Result{}, err
		}
		collectIssues(ve, verr, map[string]bool{})
		if verr.empty() {
			verr.Invalid = append(verr.Invalid, FieldIssue{Field: "$", Reason: ve.Error()})
		}
		verr.sort()
		return Result{}, verr
	}

	values := make(map[string]any, len(contract.fields))
	for _, name := range contract.fields {
		if value, ok := doc[name]; ok {
			values[name] = normalize(value)
		}
	}
	return Result{Task: task, Values: values}, nil
}

// collectIssues flattens the library's error tree onto missing fields and
// one issue per invalid top-level field.
func collectIssues(e *jsonschema.ValidationError, verr *ValidationError, seen map[string]bool) {
	if len(e.Causes) > 0 {
		for _, cause := range e.Causes {
			collectIssues(cause, verr, seen)
		}
		return
	}
	if req, ok := e.ErrorKind.(*kind.Required); ok && len(e.InstanceLocation) == 0 {
		verr.Missing = append(verr.Missing, req.Missing...)
		return
	}
	field, reason := "$", e.ErrorKind.LocalizedString(printer)
	if len(e.InstanceLocation) > 0 {
		field = e.InstanceLocation[0]
		if rest := e.InstanceLocation[1:]; len(rest) > 0 {
			reason = "item " + strings.Join(rest, "/") + ": " + reason
		}
	}
	if seen[field] {
		return
	}
	seen[field] = true
	verr.Invalid = append(verr.Invalid, FieldIssue{Field: field, Reason: reason})
}

// extractObject decodes the text between the first '{' and the last '}'.
// Models often wrap their JSON in prose or code fences.
func extractObject(raw string) (map[string]any, string) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return nil, "no JSON object found"
	}
	dec := json.NewDecoder(strings.NewReader(raw[start : end+1]))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, "malformed JSON: " + err.Error()
	}
	if dec.More() {
		return nil, "malformed JSON: trailing data"
	}
	return doc, ""
}

// normalize turns validated JSON into Result values: integral numbers
// (85.0 included) become int64 and string arrays become []string.
func normalize(value any) any {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) <= 1<<53 {
			return int64(f)
		}
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return v
			}
			out = append(out, s)
		}
		return out
	default:
		return value
	}
}
