package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/agentforge/agentforge/pkg/resilience"
	"github.com/agentforge/agentforge/pkg/unit"
)

// FailureHandlingMode governs what a strategy does when a unit fails
type FailureHandlingMode string

const (
	// FailFast aborts the workflow on the first unit failure
	FailFast FailureHandlingMode = "fail_fast"
	// ContinueOnFailure records the failure and keeps going
	ContinueOnFailure FailureHandlingMode = "continue"
	// RetryFailed retries a failing unit per the retry policy before
	// giving up on it
	RetryFailed FailureHandlingMode = "retry"
)

// ParseFailureHandlingMode maps a config string onto a mode, defaulting to
// fail-fast
func ParseFailureHandlingMode(s string) FailureHandlingMode {
	switch FailureHandlingMode(s) {
	case ContinueOnFailure:
		return ContinueOnFailure
	case RetryFailed:
		return RetryFailed
	default:
		return FailFast
	}
}

// Config carries the knobs shared by all execution strategies
type Config struct {
	Mode           FailureHandlingMode
	StepTimeout    time.Duration
	TotalTimeout   time.Duration
	MaxConcurrency int
	MaxIterations  int
	// RetryPolicy applies to individual steps when Mode is RetryFailed
	RetryPolicy resilience.RetryPolicy
}

// DefaultConfig returns a workable strategy configuration
func DefaultConfig() Config {
	return Config{
		Mode:           FailFast,
		StepTimeout:    5 * time.Minute,
		TotalTimeout:   10 * time.Minute,
		MaxConcurrency: 10,
		MaxIterations:  100,
		RetryPolicy:    resilience.DefaultRetryPolicy(),
	}
}

// StepResult records the outcome of one unit within a workflow run
type StepResult struct {
	Index    int
	UnitName string
	Events   []unit.Event
	Err      error
	Duration time.Duration
}

// Result is the outcome of a whole workflow run. Steps appear in execution
// order for sequential strategies and in slot order for parallel ones.
type Result struct {
	Strategy string
	Steps    []StepResult
	Duration time.Duration
}

// Failed returns the steps that ended in error
func (r *Result) Failed() []StepResult {
	var failed []StepResult
	for _, step := range r.Steps {
		if step.Err != nil {
			failed = append(failed, step)
		}
	}
	return failed
}

// LastContent returns the content of the final event produced by the run,
// empty when no step emitted anything
func (r *Result) LastContent() string {
	for i := len(r.Steps) - 1; i >= 0; i-- {
		events := r.Steps[i].Events
		if len(events) > 0 {
			return events[len(events)-1].Content
		}
	}
	return ""
}

// StepError identifies which unit of a workflow failed
type StepError struct {
	StepIndex int
	UnitName  string
	Cause     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow step %d (%s) failed: %v", e.StepIndex, e.UnitName, e.Cause)
}

func (e *StepError) Unwrap() error {
	return e.Cause
}

// ExecutionStrategy orchestrates a list of units through one concurrency
// topology. The returned Result is populated even when err is non-nil.
type ExecutionStrategy interface {
	Name() string
	Execute(ctx context.Context, units []unit.Unit, msg unit.Message) (*Result, error)
}
