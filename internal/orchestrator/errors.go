package orchestrator

import (
	"errors"
	"fmt"
)

// Pipeline stages reported on failure.
const (
	StageContext   = "context"
	StageRender    = "render"
	StageGenerate  = "generate"
	StageValidate  = "validate"
	StageMerge     = "merge"
	StageRecord    = "record"
	StageCancelled = "cancelled"
)

var ErrNoRecorder = errors.New("orchestrator: no recorder configured")

// Failure is the error for one application that produced no record.
type Failure struct {
	ApplicationID string
	Stage         string
	Task          string
	Err           error
}

func (f *Failure) Error() string {
	if f.Task != "" {
		return fmt.Sprintf("application %s: %s %s: %v", f.ApplicationID, f.Stage, f.Task, f.Err)
	}
	return fmt.Sprintf("application %s: %s: %v", f.ApplicationID, f.Stage, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
