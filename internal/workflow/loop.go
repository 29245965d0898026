package workflow

import (
	"context"
	"time"

	"github.com/agentforge/agentforge/pkg/logging"
	"github.com/agentforge/agentforge/pkg/metrics"
	"github.com/agentforge/agentforge/pkg/unit"
)

// Loop runs the unit list sequentially over and over, feeding each pass's
// output into the next, until a unit escalates, a failure stops the run, or
// MaxIterations is reached.
type Loop struct {
	config  Config
	metrics *metrics.Metrics
	logger  *logging.Logger
	stats   strategyStats
}

// NewLoop creates a loop strategy. m may be nil.
func NewLoop(cfg Config, m *metrics.Metrics) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 100
	}
	return &Loop{
		config:  cfg,
		metrics: m,
		logger:  logging.GetLogger(),
	}
}

func (l *Loop) Name() string { return "loop" }

// Execute iterates the unit list. An event with Escalate set stops the loop
// after the current step; failure handling within a pass matches the
// sequential strategy.
func (l *Loop) Execute(ctx context.Context, units []unit.Unit, msg unit.Message) (*Result, error) {
	ctx, cancel := withTotalTimeout(ctx, l.config.TotalTimeout)
	defer cancel()

	start := time.Now()
	result := &Result{Strategy: l.Name()}
	current := msg

	var failure error

iterations:
	for iteration := 0; iteration < l.config.MaxIterations; iteration++ {
		for _, u := range units {
			if err := ctx.Err(); err != nil {
				failure = err
				break iterations
			}

			index := len(result.Steps)
			var step StepResult
			if l.config.Mode == RetryFailed {
				step = runStepWithRetry(ctx, l.config, index, u, current)
			} else {
				step = runStep(ctx, l.config.StepTimeout, index, u, current)
			}
			result.Steps = append(result.Steps, step)
			recordStep(l.metrics, l.Name(), step.Err)

			if step.Err != nil {
				if l.config.Mode == ContinueOnFailure {
					l.logger.Warn("Loop step failed, continuing",
						"strategy", l.Name(),
						"iteration", iteration,
						"unit", u.Name(),
						"error", step.Err.Error(),
					)
					continue
				}
				failure = &StepError{StepIndex: index, UnitName: u.Name(), Cause: step.Err}
				break iterations
			}

			if len(step.Events) > 0 {
				current = unit.Message{
					Role:    "user",
					Content: step.Events[len(step.Events)-1].Content,
				}
			}

			for _, event := range step.Events {
				if event.Escalate {
					l.logger.Info("Loop stopped by escalation",
						"strategy", l.Name(),
						"iteration", iteration,
						"unit", u.Name(),
					)
					break iterations
				}
			}
		}
	}

	result.Duration = time.Since(start)
	l.stats.record(result, failure)
	recordWorkflow(l.metrics, l.Name(), failure, result.Duration)
	return result, failure
}

// Metrics returns the accumulated run totals for this strategy
func (l *Loop) Metrics() StrategyMetrics {
	return l.stats.snapshot()
}
