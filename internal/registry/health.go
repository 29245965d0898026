package registry

import "time"

// HealthStatus classifies an item's operational state
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// GaugeValue maps the status onto the metrics gauge scale
func (s HealthStatus) GaugeValue() float64 {
	switch s {
	case HealthHealthy:
		return 0
	case HealthDegraded:
		return 1
	case HealthUnhealthy:
		return 2
	default:
		return 3
	}
}

// HealthRecord tracks the probe history of one registered item. Records
// reference items by name only and never extend their lifetime.
type HealthRecord struct {
	ItemName            string                 `json:"item_name"`
	Status              HealthStatus           `json:"status"`
	LastChecked         time.Time              `json:"last_checked"`
	LastHealthy         time.Time              `json:"last_healthy,omitempty"`
	ConsecutiveFailures int                    `json:"consecutive_failures"`
	Details             map[string]interface{} `json:"details,omitempty"`
}

// NewHealthRecord creates a record in the given initial status
func NewHealthRecord(itemName string, status HealthStatus) *HealthRecord {
	record := &HealthRecord{
		ItemName:    itemName,
		Status:      status,
		LastChecked: time.Now(),
	}
	if status == HealthHealthy {
		record.LastHealthy = record.LastChecked
	}
	return record
}

// UpdateStatus applies a probe result. Healthy resets the consecutive failure
// counter; Unhealthy increments it.
func (r *HealthRecord) UpdateStatus(status HealthStatus, details map[string]interface{}) {
	now := time.Now()
	r.Status = status
	r.LastChecked = now
	r.Details = details

	switch status {
	case HealthHealthy:
		r.LastHealthy = now
		r.ConsecutiveFailures = 0
	case HealthUnhealthy:
		r.ConsecutiveFailures++
	}
}

// IsStale reports whether the record has not been refreshed within maxAge
func (r *HealthRecord) IsStale(maxAge time.Duration) bool {
	return time.Since(r.LastChecked) > maxAge
}

// Clone returns a copy safe to hand outside the registry lock
func (r *HealthRecord) Clone() *HealthRecord {
	clone := *r
	if r.Details != nil {
		clone.Details = make(map[string]interface{}, len(r.Details))
		for k, v := range r.Details {
			clone.Details[k] = v
		}
	}
	return &clone
}
