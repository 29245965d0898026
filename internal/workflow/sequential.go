package workflow

import (
	"context"
	"time"

	"github.com/agentforge/agentforge/pkg/logging"
	"github.com/agentforge/agentforge/pkg/metrics"
	"github.com/agentforge/agentforge/pkg/resilience"
	"github.com/agentforge/agentforge/pkg/unit"
)

// Sequential runs units one after another. Each step receives the content of
// the previous step's last event as its input message.
type Sequential struct {
	config  Config
	metrics *metrics.Metrics
	logger  *logging.Logger
	stats   strategyStats
}

// NewSequential creates a sequential strategy. m may be nil.
func NewSequential(cfg Config, m *metrics.Metrics) *Sequential {
	return &Sequential{
		config:  cfg,
		metrics: m,
		logger:  logging.GetLogger(),
	}
}

func (s *Sequential) Name() string { return "sequential" }

// Execute runs the units in order under the configured failure handling.
// Under FailFast the first failure stops the run and later units never
// execute; under ContinueOnFailure every unit runs and failures are recorded;
// under RetryFailed a failing unit is retried per the policy and only an
// exhausted retry stops the run.
func (s *Sequential) Execute(ctx context.Context, units []unit.Unit, msg unit.Message) (*Result, error) {
	ctx, cancel := withTotalTimeout(ctx, s.config.TotalTimeout)
	defer cancel()

	start := time.Now()
	result := &Result{Strategy: s.Name()}
	current := msg

	var failure error
	for i, u := range units {
		if err := ctx.Err(); err != nil {
			failure = err
			break
		}

		step := s.runStep(ctx, i, u, current)
		result.Steps = append(result.Steps, step)
		recordStep(s.metrics, s.Name(), step.Err)

		if step.Err != nil {
			if s.config.Mode == ContinueOnFailure {
				s.logger.Warn("Workflow step failed, continuing",
					"strategy", s.Name(),
					"step", i,
					"unit", u.Name(),
					"error", step.Err.Error(),
				)
				continue
			}
			failure = &StepError{StepIndex: i, UnitName: u.Name(), Cause: step.Err}
			break
		}

		if len(step.Events) > 0 {
			current = unit.Message{
				Role:    "user",
				Content: step.Events[len(step.Events)-1].Content,
			}
		}
	}

	result.Duration = time.Since(start)
	s.stats.record(result, failure)
	recordWorkflow(s.metrics, s.Name(), failure, result.Duration)
	return result, failure
}

// Metrics returns the accumulated run totals for this strategy
func (s *Sequential) Metrics() StrategyMetrics {
	return s.stats.snapshot()
}

func (s *Sequential) runStep(ctx context.Context, index int, u unit.Unit, msg unit.Message) StepResult {
	if s.config.Mode == RetryFailed {
		return runStepWithRetry(ctx, s.config, index, u, msg)
	}
	return runStep(ctx, s.config.StepTimeout, index, u, msg)
}

// runStep executes one unit under the per-step timeout, collecting its events
func runStep(ctx context.Context, stepTimeout time.Duration, index int, u unit.Unit, msg unit.Message) StepResult {
	stepCtx, cancel := withTotalTimeout(ctx, stepTimeout)
	defer cancel()

	start := time.Now()
	var events []unit.Event
	err := u.Run(stepCtx, msg, func(e unit.Event) {
		events = append(events, e)
	})

	return StepResult{
		Index:    index,
		UnitName: u.Name(),
		Events:   events,
		Err:      err,
		Duration: time.Since(start),
	}
}

// runStepWithRetry wraps runStep in the configured retry policy; only the
// final attempt's events are kept
func runStepWithRetry(ctx context.Context, cfg Config, index int, u unit.Unit, msg unit.Message) StepResult {
	retrier := resilience.NewRetryExecutor(cfg.RetryPolicy)

	start := time.Now()
	var last StepResult
	err := retrier.Execute(ctx, func(ctx context.Context) error {
		last = runStep(ctx, cfg.StepTimeout, index, u, msg)
		return last.Err
	})

	last.Err = err
	last.Duration = time.Since(start)
	return last
}

// withTotalTimeout applies a timeout when positive, otherwise only
// cancellation
func withTotalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func recordStep(m *metrics.Metrics, strategy string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.RecordWorkflowStep(strategy, status)
}

func recordWorkflow(m *metrics.Metrics, strategy string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.RecordWorkflow(strategy, status, duration)
}
