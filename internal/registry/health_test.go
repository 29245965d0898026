package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthRecord_NewHealthyRecord(t *testing.T) {
	record := NewHealthRecord("item", HealthHealthy)

	assert.Equal(t, HealthHealthy, record.Status)
	assert.False(t, record.LastChecked.IsZero())
	assert.Equal(t, record.LastChecked, record.LastHealthy)
	assert.Equal(t, 0, record.ConsecutiveFailures)
}

func TestHealthRecord_NewUnknownRecordHasNoLastHealthy(t *testing.T) {
	record := NewHealthRecord("item", HealthUnknown)

	assert.Equal(t, HealthUnknown, record.Status)
	assert.True(t, record.LastHealthy.IsZero())
}

func TestHealthRecord_FailuresAccumulateAndReset(t *testing.T) {
	record := NewHealthRecord("item", HealthHealthy)

	record.UpdateStatus(HealthUnhealthy, map[string]interface{}{"error": "down"})
	record.UpdateStatus(HealthUnhealthy, nil)
	assert.Equal(t, 2, record.ConsecutiveFailures)

	record.UpdateStatus(HealthHealthy, nil)
	assert.Equal(t, 0, record.ConsecutiveFailures)
	assert.False(t, record.LastHealthy.IsZero())
}

func TestHealthRecord_DegradedDoesNotTouchFailureCount(t *testing.T) {
	record := NewHealthRecord("item", HealthHealthy)

	record.UpdateStatus(HealthUnhealthy, nil)
	record.UpdateStatus(HealthDegraded, nil)
	assert.Equal(t, 1, record.ConsecutiveFailures)
}

func TestHealthRecord_IsStale(t *testing.T) {
	record := NewHealthRecord("item", HealthHealthy)

	assert.False(t, record.IsStale(time.Minute))

	record.LastChecked = time.Now().Add(-2 * time.Minute)
	assert.True(t, record.IsStale(time.Minute))
}

func TestHealthRecord_CloneIsIndependent(t *testing.T) {
	record := NewHealthRecord("item", HealthHealthy)
	record.Details = map[string]interface{}{"latency_ms": 12}

	clone := record.Clone()
	clone.Details["latency_ms"] = 99
	clone.Status = HealthUnhealthy

	assert.Equal(t, 12, record.Details["latency_ms"])
	assert.Equal(t, HealthHealthy, record.Status)
}

func TestHealthStatus_GaugeValues(t *testing.T) {
	require.Equal(t, 0.0, HealthHealthy.GaugeValue())
	require.Equal(t, 1.0, HealthDegraded.GaugeValue())
	require.Equal(t, 2.0, HealthUnhealthy.GaugeValue())
	require.Equal(t, 3.0, HealthUnknown.GaugeValue())
}
