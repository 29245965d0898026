package workflow

import (
	"sync"
	"time"
)

// StrategyMetrics is an accumulated snapshot of a strategy's runs
type StrategyMetrics struct {
	Executions    int64
	Failures      int64
	Steps         int64
	StepFailures  int64
	TotalDuration time.Duration
}

// AverageDuration returns the mean run duration, zero before the first run
func (m StrategyMetrics) AverageDuration() time.Duration {
	if m.Executions == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(m.Executions)
}

// FailureRate returns failed runs over total runs, zero before the first run
func (m StrategyMetrics) FailureRate() float64 {
	if m.Executions == 0 {
		return 0
	}
	return float64(m.Failures) / float64(m.Executions)
}

// MetricsReporter is implemented by strategies that accumulate run totals
type MetricsReporter interface {
	Metrics() StrategyMetrics
}

// strategyStats accumulates run totals independently of the optional
// prometheus collectors, so the numbers exist even without a metrics sink
type strategyStats struct {
	mu      sync.Mutex
	metrics StrategyMetrics
}

func (s *strategyStats) record(result *Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.Executions++
	if err != nil {
		s.metrics.Failures++
	}
	s.metrics.Steps += int64(len(result.Steps))
	s.metrics.StepFailures += int64(len(result.Failed()))
	s.metrics.TotalDuration += result.Duration
}

func (s *strategyStats) snapshot() StrategyMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.metrics
}
