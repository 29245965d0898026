package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/agentforge/pkg/resilience"
	"github.com/agentforge/agentforge/pkg/unit"
)

func okUnit(name, output string) unit.UnitFunc {
	return unit.UnitFunc{
		UnitName: name,
		Fn: func(ctx context.Context, msg unit.Message, emit unit.EmitFunc) error {
			emit(unit.NewEvent(name, output))
			return nil
		},
	}
}

func failUnit(name string) unit.UnitFunc {
	return unit.UnitFunc{
		UnitName: name,
		Fn: func(ctx context.Context, msg unit.Message, emit unit.EmitFunc) error {
			return fmt.Errorf("unit %s failed", name)
		},
	}
}

func recordingUnit(name string, ran *[]string) unit.UnitFunc {
	return unit.UnitFunc{
		UnitName: name,
		Fn: func(ctx context.Context, msg unit.Message, emit unit.EmitFunc) error {
			*ran = append(*ran, name)
			emit(unit.NewEvent(name, msg.Content+"+"+name))
			return nil
		},
	}
}

func TestSequential_RunsInOrderAndChainsContent(t *testing.T) {
	var ran []string
	s := NewSequential(DefaultConfig(), nil)

	result, err := s.Execute(context.Background(),
		[]unit.Unit{recordingUnit("a", &ran), recordingUnit("b", &ran), recordingUnit("c", &ran)},
		unit.Message{Role: "user", Content: "start"},
	)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ran)
	require.Len(t, result.Steps, 3)
	// Each step saw the previous step's output
	assert.Equal(t, "start+a+b+c", result.LastContent())
	assert.Empty(t, result.Failed())
}

func TestSequential_FailFastStopsAtFailure(t *testing.T) {
	var ran []string
	cfg := DefaultConfig()
	cfg.Mode = FailFast
	s := NewSequential(cfg, nil)

	result, err := s.Execute(context.Background(),
		[]unit.Unit{recordingUnit("a", &ran), failUnit("b"), recordingUnit("c", &ran)},
		unit.Message{Content: "start"},
	)

	require.Error(t, err)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, stepErr.StepIndex)
	assert.Equal(t, "b", stepErr.UnitName)

	// C never ran
	assert.Equal(t, []string{"a"}, ran)
	assert.Len(t, result.Steps, 2)
}

func TestSequential_ContinueOnFailureRunsEverything(t *testing.T) {
	var ran []string
	cfg := DefaultConfig()
	cfg.Mode = ContinueOnFailure
	s := NewSequential(cfg, nil)

	result, err := s.Execute(context.Background(),
		[]unit.Unit{recordingUnit("a", &ran), failUnit("b"), recordingUnit("c", &ran)},
		unit.Message{Content: "start"},
	)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ran)
	require.Len(t, result.Steps, 3)

	failed := result.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].UnitName)
	assert.Equal(t, 1, failed[0].Index)
}

func TestSequential_RetryFailedRecoversFlakyStep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = RetryFailed
	cfg.RetryPolicy = resilience.RetryPolicy{
		MaxAttempts: 3,
		Strategy:    resilience.BackoffImmediate,
	}
	s := NewSequential(cfg, nil)

	attempts := 0
	flaky := unit.UnitFunc{
		UnitName: "flaky",
		Fn: func(ctx context.Context, msg unit.Message, emit unit.EmitFunc) error {
			attempts++
			if attempts < 3 {
				return fmt.Errorf("transient")
			}
			emit(unit.NewEvent("flaky", "recovered"))
			return nil
		},
	}

	result, err := s.Execute(context.Background(), []unit.Unit{flaky}, unit.Message{})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "recovered", result.LastContent())
}

func TestSequential_RetryFailedExhaustionStopsRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = RetryFailed
	cfg.RetryPolicy = resilience.RetryPolicy{
		MaxAttempts: 2,
		Strategy:    resilience.BackoffImmediate,
	}
	s := NewSequential(cfg, nil)

	var ran []string
	_, err := s.Execute(context.Background(),
		[]unit.Unit{failUnit("hopeless"), recordingUnit("after", &ran)},
		unit.Message{},
	)

	require.Error(t, err)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "hopeless", stepErr.UnitName)
	assert.Empty(t, ran)
}

func TestSequential_StepTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepTimeout = 20 * time.Millisecond
	s := NewSequential(cfg, nil)

	stuck := unit.UnitFunc{
		UnitName: "stuck",
		Fn: func(ctx context.Context, msg unit.Message, emit unit.EmitFunc) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}

	start := time.Now()
	_, err := s.Execute(context.Background(), []unit.Unit{stuck}, unit.Message{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSequential_MetricsAccumulate(t *testing.T) {
	s := NewSequential(DefaultConfig(), nil)

	_, err := s.Execute(context.Background(),
		[]unit.Unit{okUnit("a", "out"), okUnit("b", "out")},
		unit.Message{},
	)
	require.NoError(t, err)

	_, err = s.Execute(context.Background(), []unit.Unit{failUnit("x")}, unit.Message{})
	require.Error(t, err)

	m := s.Metrics()
	assert.Equal(t, int64(2), m.Executions)
	assert.Equal(t, int64(1), m.Failures)
	assert.Equal(t, int64(3), m.Steps)
	assert.Equal(t, int64(1), m.StepFailures)
	assert.Greater(t, m.TotalDuration, time.Duration(0))
	assert.Greater(t, m.AverageDuration(), time.Duration(0))
	assert.Equal(t, 0.5, m.FailureRate())
}

func TestSequential_EmptyUnitList(t *testing.T) {
	s := NewSequential(DefaultConfig(), nil)

	result, err := s.Execute(context.Background(), nil, unit.Message{})
	require.NoError(t, err)
	assert.Empty(t, result.Steps)
	assert.Equal(t, "", result.LastContent())
}
