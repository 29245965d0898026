package unit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message is the input handed to a unit when it runs. Within sequential and
// loop workflows the content of a step's last event feeds the next step.
type Message struct {
	Role     string                 `json:"role"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Event is a single element of the finite event sequence a running unit
// produces. Escalate signals the enclosing workflow to stop looping.
type Event struct {
	ID        string                 `json:"id"`
	Author    string                 `json:"author"`
	Content   string                 `json:"content"`
	Escalate  bool                   `json:"escalate,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates an event authored by the named unit
func NewEvent(author, content string) Event {
	return Event{
		ID:        uuid.New().String(),
		Author:    author,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// EmitFunc receives events as a running unit produces them. Implementations
// supplied by workflow strategies are safe for use from a single goroutine
// only; the strategy serializes delivery across concurrent units.
type EmitFunc func(Event)

// Unit is a named executable orchestrated by a workflow strategy. Run emits
// zero or more events and returns when the sequence is exhausted; the
// returned error is the unit's outcome.
type Unit interface {
	Name() string
	Run(ctx context.Context, msg Message, emit EmitFunc) error
}

// Agent is a unit that can also report whether it is operational
type Agent interface {
	Unit

	// HealthCheck verifies the agent is operational
	HealthCheck(ctx context.Context) error
}

// Tool is a named callable producing a single result
type Tool interface {
	Name() string
	Execute(ctx context.Context, args interface{}) (interface{}, error)
}

// Toolset yields a named group of tools that register together under
// "toolset.tool" names
type Toolset interface {
	Name() string
	Tools(ctx context.Context) ([]Tool, error)
}

// Loader is a fallback source of agents consulted by the agent registry when
// a name is absent from its own map
type Loader interface {
	ListNames() []string
	Load(name string) (Agent, error)
}

// TypeTagged marks a payload with an explicit type tag. Strategy detection
// checks this marker before falling back to name heuristics.
type TypeTagged interface {
	TypeTag() string
}
