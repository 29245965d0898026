package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/agentforge/pkg/unit"
)

func TestLoop_StopsAtMaxIterations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 4
	l := NewLoop(cfg, nil)

	passes := 0
	counter := unit.UnitFunc{
		UnitName: "counter",
		Fn: func(ctx context.Context, msg unit.Message, emit unit.EmitFunc) error {
			passes++
			emit(unit.NewEvent("counter", fmt.Sprintf("pass %d", passes)))
			return nil
		},
	}

	result, err := l.Execute(context.Background(), []unit.Unit{counter}, unit.Message{})
	require.NoError(t, err)
	assert.Equal(t, 4, passes)
	assert.Len(t, result.Steps, 4)
}

func TestLoop_EscalationStopsEarly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 100
	l := NewLoop(cfg, nil)

	passes := 0
	escalator := unit.UnitFunc{
		UnitName: "escalator",
		Fn: func(ctx context.Context, msg unit.Message, emit unit.EmitFunc) error {
			passes++
			event := unit.NewEvent("escalator", "working")
			if passes == 3 {
				event.Escalate = true
				event.Content = "done"
			}
			emit(event)
			return nil
		},
	}

	result, err := l.Execute(context.Background(), []unit.Unit{escalator}, unit.Message{})
	require.NoError(t, err)
	assert.Equal(t, 3, passes)
	assert.Equal(t, "done", result.LastContent())
}

func TestLoop_ChainsContentAcrossIterations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	l := NewLoop(cfg, nil)

	appender := unit.UnitFunc{
		UnitName: "appender",
		Fn: func(ctx context.Context, msg unit.Message, emit unit.EmitFunc) error {
			emit(unit.NewEvent("appender", msg.Content+"x"))
			return nil
		},
	}

	result, err := l.Execute(context.Background(), []unit.Unit{appender}, unit.Message{Content: ""})
	require.NoError(t, err)
	assert.Equal(t, "xxx", result.LastContent())
}

func TestLoop_FailFastStopsLoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 100
	l := NewLoop(cfg, nil)

	passes := 0
	failsOnSecond := unit.UnitFunc{
		UnitName: "fragile",
		Fn: func(ctx context.Context, msg unit.Message, emit unit.EmitFunc) error {
			passes++
			if passes == 2 {
				return fmt.Errorf("broke on pass %d", passes)
			}
			emit(unit.NewEvent("fragile", "ok"))
			return nil
		},
	}

	_, err := l.Execute(context.Background(), []unit.Unit{failsOnSecond}, unit.Message{})
	require.Error(t, err)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "fragile", stepErr.UnitName)
	assert.Equal(t, 2, passes)
}

func TestLoop_FailureIndexMatchesStepList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 100
	l := NewLoop(cfg, nil)

	passes := 0
	fragile := unit.UnitFunc{
		UnitName: "fragile",
		Fn: func(ctx context.Context, msg unit.Message, emit unit.EmitFunc) error {
			passes++
			if passes == 2 {
				return fmt.Errorf("broke on pass %d", passes)
			}
			emit(unit.NewEvent("fragile", "ok"))
			return nil
		},
	}

	var ran []string
	result, err := l.Execute(context.Background(),
		[]unit.Unit{recordingUnit("steady", &ran), fragile},
		unit.Message{Content: "s"},
	)

	require.Error(t, err)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)

	// Iteration 0 ran steps 0 and 1; the failure on iteration 1 is step 3
	assert.Equal(t, 3, stepErr.StepIndex)
	require.Len(t, result.Steps, 4)
	assert.Equal(t, "fragile", result.Steps[stepErr.StepIndex].UnitName)
	assert.Error(t, result.Steps[stepErr.StepIndex].Err)
}

func TestLoop_ContinueOnFailureKeepsLooping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ContinueOnFailure
	cfg.MaxIterations = 3
	l := NewLoop(cfg, nil)

	passes := 0
	flaky := unit.UnitFunc{
		UnitName: "flaky",
		Fn: func(ctx context.Context, msg unit.Message, emit unit.EmitFunc) error {
			passes++
			if passes%2 == 0 {
				return fmt.Errorf("even passes fail")
			}
			emit(unit.NewEvent("flaky", "ok"))
			return nil
		},
	}

	result, err := l.Execute(context.Background(), []unit.Unit{flaky}, unit.Message{})
	require.NoError(t, err)
	assert.Equal(t, 3, passes)
	assert.Len(t, result.Failed(), 1)
}

func TestLoop_MultipleUnitsPerIteration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 2
	l := NewLoop(cfg, nil)

	var ran []string
	result, err := l.Execute(context.Background(),
		[]unit.Unit{recordingUnit("a", &ran), recordingUnit("b", &ran)},
		unit.Message{Content: "s"},
	)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "a", "b"}, ran)
	assert.Len(t, result.Steps, 4)
	assert.Equal(t, "s+a+b+a+b", result.LastContent())
}
