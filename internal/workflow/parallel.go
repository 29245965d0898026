package workflow

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/agentforge/agentforge/pkg/logging"
	"github.com/agentforge/agentforge/pkg/metrics"
	"github.com/agentforge/agentforge/pkg/unit"
)

// Parallel runs all units concurrently, bounded by MaxConcurrency. Every unit
// receives the same input message; step results keep their slot order.
type Parallel struct {
	config  Config
	metrics *metrics.Metrics
	logger  *logging.Logger
	stats   strategyStats
}

// NewParallel creates a parallel strategy. m may be nil.
func NewParallel(cfg Config, m *metrics.Metrics) *Parallel {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	return &Parallel{
		config:  cfg,
		metrics: m,
		logger:  logging.GetLogger(),
	}
}

func (p *Parallel) Name() string { return "parallel" }

// Execute fans the units out over at most MaxConcurrency goroutines. Under
// FailFast the first failure cancels the remaining units; under
// ContinueOnFailure and RetryFailed every unit gets its chance.
func (p *Parallel) Execute(ctx context.Context, units []unit.Unit, msg unit.Message) (*Result, error) {
	ctx, cancel := withTotalTimeout(ctx, p.config.TotalTimeout)
	defer cancel()

	start := time.Now()
	result := &Result{
		Strategy: p.Name(),
		Steps:    make([]StepResult, len(units)),
	}

	sem := semaphore.NewWeighted(int64(p.config.MaxConcurrency))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr *StepError
	)

	for i, u := range units {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancelled before this unit could start; record the slot so
			// the result stays index-aligned.
			result.Steps[i] = StepResult{Index: i, UnitName: u.Name(), Err: err}
			recordStep(p.metrics, p.Name(), err)
			continue
		}

		wg.Add(1)
		go func(index int, u unit.Unit) {
			defer wg.Done()
			defer sem.Release(1)

			var step StepResult
			if p.config.Mode == RetryFailed {
				step = runStepWithRetry(ctx, p.config, index, u, msg)
			} else {
				step = runStep(ctx, p.config.StepTimeout, index, u, msg)
			}
			result.Steps[index] = step
			recordStep(p.metrics, p.Name(), step.Err)

			if step.Err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = &StepError{StepIndex: index, UnitName: u.Name(), Cause: step.Err}
					if p.config.Mode == FailFast {
						cancel()
					}
				}
				mu.Unlock()
			}
		}(i, u)
	}

	wg.Wait()
	result.Duration = time.Since(start)

	var failure error
	if firstErr != nil && p.config.Mode != ContinueOnFailure {
		failure = firstErr
	}
	p.stats.record(result, failure)
	recordWorkflow(p.metrics, p.Name(), failure, result.Duration)
	return result, failure
}

// Metrics returns the accumulated run totals for this strategy
func (p *Parallel) Metrics() StrategyMetrics {
	return p.stats.snapshot()
}
