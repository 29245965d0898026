package registry

import (
	"time"
)

// Entry is a registered item. Entries are owned exclusively by their registry
// and mutated only under the registry mutex.
type Entry struct {
	Name         string                 `json:"name"`
	Payload      interface{}            `json:"-"`
	TypeTag      string                 `json:"type_tag"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	UsageCount   int64                  `json:"usage_count"`
	ErrorCount   int64                  `json:"error_count"`
	RegisteredAt time.Time              `json:"registered_at"`
	LastUsedAt   time.Time              `json:"last_used_at,omitempty"`
}

// NewEntry creates an entry for a freshly registered item
func NewEntry(name string, payload interface{}, typeTag string, metadata map[string]interface{}) *Entry {
	return &Entry{
		Name:         name,
		Payload:      payload,
		TypeTag:      typeTag,
		Metadata:     metadata,
		RegisteredAt: time.Now(),
	}
}

// MarkUsed records a successful use
func (e *Entry) MarkUsed() {
	e.UsageCount++
	e.LastUsedAt = time.Now()
}

// MarkError records a failed use. Errors count as usage for rate purposes.
func (e *Entry) MarkError() {
	e.UsageCount++
	e.ErrorCount++
	e.LastUsedAt = time.Now()
}

// ErrorRate returns the fraction of uses that failed, 0 when unused
func (e *Entry) ErrorRate() float64 {
	if e.UsageCount == 0 {
		return 0
	}
	return float64(e.ErrorCount) / float64(e.UsageCount)
}
