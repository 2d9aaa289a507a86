// Package orchestrator turns an application record into an audit record:
// bounded context, rendered prompts, generation, schema validation,
// escalation and the decision factors behind it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	triagectx "github.com/davidahmann/licensetriage/internal/context"
	"github.com/davidahmann/licensetriage/internal/decision"
	"github.com/davidahmann/licensetriage/internal/generation"
	"github.com/davidahmann/licensetriage/internal/grade"
	"github.com/davidahmann/licensetriage/internal/policy"
	"github.com/davidahmann/licensetriage/internal/schema"
	"github.com/davidahmann/licensetriage/internal/template"
	"github.com/davidahmann/licensetriage/pkg/types"
)

// Recorder persists a finished audit record.
type Recorder interface {
	Record(ctx context.Context, rec types.AuditRecord) error
}

// Config is the read-only setup shared by every call.
type Config struct {
	Templates  *template.Registry
	Budget     triagectx.Budget
	Policy     policy.LoadedPolicy
	Generator  *generation.Retrier
	Validator  *schema.Validator
	Steps      []Step
	Parameters map[schema.TaskType]generation.Parameters
	Recorder   Recorder
	Logger     *zap.Logger

	Now   func() time.Time
	NewID func() string
}

type Orchestrator struct {
	cfg          Config
	configDigest string
	settings     []byte
	needsContext bool
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Templates == nil {
		return nil, fmt.Errorf("%w: missing templates", ErrInvalidPipeline)
	}
	if cfg.Generator == nil || cfg.Generator.Generator == nil {
		return nil, fmt.Errorf("%w: missing generator", ErrInvalidPipeline)
	}
	if err := cfg.Budget.Validate(); err != nil {
		return nil, err
	}
	if cfg.Policy.Hash == "" {
		return nil, fmt.Errorf("%w: policy not loaded", ErrInvalidPipeline)
	}
	if cfg.Validator == nil {
		v, err := schema.NewValidator(schema.Builtin()...)
		if err != nil {
			return nil, err
		}
		cfg.Validator = v
	}
	if len(cfg.Steps) == 0 {
		cfg.Steps = DefaultSteps()
	}
	if err := checkSteps(cfg.Steps, cfg.Templates, cfg.Validator); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	refs := make([]string, 0, len(cfg.Steps))
	params := make(map[string]generation.Parameters, len(cfg.Steps))
	for _, s := range cfg.Steps {
		refs = append(refs, s.ref())
		params[string(s.Task)] = cfg.Parameters[s.Task].WithDefaults()
	}
	in := decision.ConfigInput{
		Model:         cfg.Generator.Model(),
		TemplatesHash: cfg.Templates.Hash(),
		PolicyHash:    cfg.Policy.Hash,
		PolicyID:      cfg.Policy.Policy.PolicyID,
		PolicyVersion: cfg.Policy.Policy.PolicyVersion,
		Steps:         refs,
		Budget:        cfg.Budget,
		Parameters:    params,
	}
	settings, err := decision.ConfigSettings(in)
	if err != nil {
		return nil, err
	}
	digest, err := decision.ConfigDigest(in)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{cfg: cfg, configDigest: digest, settings: settings, needsContext: usesContext(cfg.Steps)}, nil
}

// ConfigDigest identifies the templates, policy, model, context budget and
// generation parameters behind every record this orchestrator produces.
func (o *Orchestrator) ConfigDigest() string {
	return o.configDigest
}

// Settings returns the canonical JSON ConfigDigest is computed over.
func (o *Orchestrator) Settings() []byte {
	return append([]byte(nil), o.settings...)
}

func (o *Orchestrator) Model() string {
	return o.cfg.Generator.Model()
}

// Process evaluates record and hands the audit record to the recorder.
// Exactly one record is stored per successful call and none on failure.
func (o *Orchestrator) Process(ctx context.Context, record types.ApplicationRecord) (types.AuditRecord, error) {
	if o.cfg.Recorder == nil {
		return types.AuditRecord{}, &Failure{ApplicationID: record.ApplicationID, Stage: StageRecord, Err: ErrNoRecorder}
	}
	rec, err := o.Evaluate(ctx, record)
	if err != nil {
		return types.AuditRecord{}, err
	}
	if err := o.cfg.Recorder.Record(ctx, rec); err != nil {
		return types.AuditRecord{}, &Failure{ApplicationID: record.ApplicationID, Stage: StageRecord, Err: err}
	}
	return rec, nil
}

// Evaluate runs the full pipeline and builds the audit record without
// recording it.
func (o *Orchestrator) Evaluate(ctx context.Context, record types.ApplicationRecord) (types.AuditRecord, error) {
	log := o.cfg.Logger.With(zap.String("application_id", record.ApplicationID))
	fail := func(stage string, task schema.TaskType, err error) (types.AuditRecord, error) {
		log.Warn("application failed", zap.String("stage", stage), zap.String("task", string(task)), zap.Error(err))
		return types.AuditRecord{}, &Failure{ApplicationID: record.ApplicationID, Stage: stage, Task: string(task), Err: err}
	}

	var built triagectx.Result
	if o.needsContext {
		var err error
		built, err = triagectx.Build(record, o.cfg.Budget)
		if err != nil {
			return fail(StageContext, "", err)
		}
	}

	results := make([]schema.Result, 0, len(o.cfg.Steps))
	byTask := map[schema.TaskType]schema.Result{}
	refs := make([]string, 0, len(o.cfg.Steps))
	attempts := 0
	var model string

	for _, step := range o.cfg.Steps {
		bindings, err := o.bind(step, record, built, byTask)
		if err != nil {
			return fail(StageRender, step.Task, err)
		}
		prompt, err := o.cfg.Templates.Render(step.Template, step.Version, bindings)
		if err != nil {
			return fail(StageRender, step.Task, err)
		}

		res, gen, stage, err := o.runStep(ctx, log, step, prompt)
		attempts += gen.Attempts
		if err != nil {
			return fail(stage, step.Task, err)
		}
		if gen.Model != "" {
			model = gen.Model
		}
		results = append(results, res)
		byTask[step.Task] = res
		refs = append(refs, step.ref())
	}

	merged, err := schema.Merge(results...)
	if err != nil {
		return fail(StageMerge, "", err)
	}

	escalation := o.cfg.Policy.Decide(merged, record.Flags)
	factors := decision.BuildFactors(decision.FactorInput{
		Decision:  merged,
		Policy:    escalation,
		Flags:     record.Flags,
		Dropped:   built.Dropped(),
		Truncated: built.Truncated(),
	})
	compliance := grade.Evaluate(grade.Input{
		Decision:    merged,
		Disposition: escalation.Disposition,
		PolicyHash:  escalation.PolicyHash,
		Factors:     factors,
	})

	var contextDigest string
	if o.needsContext {
		contextDigest, err = decision.ContextDigest([]string{built.Text})
		if err != nil {
			return fail(StageContext, "", err)
		}
	}

	last := o.cfg.Steps[len(o.cfg.Steps)-1]
	if model == "" {
		model = o.Model()
	}
	rec := types.AuditRecord{
		DecisionID:        o.cfg.NewID(),
		Timestamp:         o.cfg.Now().UTC().Format(time.RFC3339),
		ApplicationID:     record.ApplicationID,
		LicenseType:       record.LicenseType,
		Model:             model,
		TemplateName:      last.Template,
		PromptVersion:     last.Version,
		PromptTemplates:   refs,
		DecisionFactors:   factors,
		ConfidenceScore:   merged.Confidence,
		CompletenessScore: merged.CompletenessScore,
		RiskScore:         merged.RiskScore,
		RecommendedAction: merged.RecommendedAction,
		Disposition:       escalation.Disposition,
		MissingDocuments:  merged.MissingDocuments,
		ComplianceCheck:   compliance.String(),
		ContextDigest:     contextDigest,
		ConfigDigest:      o.configDigest,
		Attempts:          attempts,
	}

	log.Info("application evaluated",
		zap.String("decision_id", rec.DecisionID),
		zap.String("disposition", string(rec.Disposition)),
		zap.String("rule", escalation.MatchedRuleID),
		zap.Int("attempts", attempts),
	)
	return rec, nil
}

// runStep generates and validates one step. A validation failure earns one
// regeneration with the same prompt; a second failure is final.
func (o *Orchestrator) runStep(ctx context.Context, log *zap.Logger, step Step, prompt string) (schema.Result, generation.Result, string, error) {
	params := o.cfg.Parameters[step.Task].WithDefaults()
	total := generation.Result{Template: step.Template, Version: step.Version}

	for round := 1; ; round++ {
		gen, err := o.cfg.Generator.Do(ctx, prompt, params)
		total.Attempts += gen.Attempts
		if err != nil {
			return schema.Result{}, total, StageGenerate, err
		}
		total.Model = gen.Model

		res, err := o.cfg.Validator.Validate(step.Task, gen.Text)
		if err == nil {
			return res, total, "", nil
		}
		var verr *schema.ValidationError
		if !errors.As(err, &verr) || round == 2 {
			return schema.Result{}, total, StageValidate, err
		}
		log.Warn("generation output rejected, regenerating",
			zap.String("stage", StageValidate),
			zap.String("task", string(step.Task)),
			zap.Int("attempt", total.Attempts),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) bind(step Step, record types.ApplicationRecord, built triagectx.Result, results map[schema.TaskType]schema.Result) (map[string]string, error) {
	bindings := make(map[string]string, len(step.Bindings))
	for placeholder, source := range step.Bindings {
		switch source {
		case SourceContext:
			bindings[placeholder] = built.Text
		case SourceLicenseType:
			bindings[placeholder] = record.LicenseType
		case SourceApplicationID:
			bindings[placeholder] = record.ApplicationID
		default:
			task := schema.TaskType(source[len(SourceResultPrefix):])
			res, ok := results[task]
			if !ok {
				return nil, fmt.Errorf("%w: %s has no result yet", ErrInvalidPipeline, task)
			}
			canonical, err := res.Canonical()
			if err != nil {
				return nil, err
			}
			bindings[placeholder] = string(canonical)
		}
	}
	return bindings, nil
}
