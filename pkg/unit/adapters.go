package unit

import "context"

// ToolFunc adapts a plain function into a Tool with an explicit type tag.
type ToolFunc struct {
	ToolName string
	Tag      string
	Fn       func(ctx context.Context, args interface{}) (interface{}, error)
}

func (t ToolFunc) Name() string { return t.ToolName }

func (t ToolFunc) Execute(ctx context.Context, args interface{}) (interface{}, error) {
	return t.Fn(ctx, args)
}

// TypeTag implements TypeTagged. Empty tags fall through to detection
// heuristics.
func (t ToolFunc) TypeTag() string { return t.Tag }

// UnitFunc adapts a plain function into a Unit.
type UnitFunc struct {
	UnitName string
	Fn       func(ctx context.Context, msg Message, emit EmitFunc) error
}

func (u UnitFunc) Name() string { return u.UnitName }

func (u UnitFunc) Run(ctx context.Context, msg Message, emit EmitFunc) error {
	return u.Fn(ctx, msg, emit)
}

// AgentFunc adapts a pair of functions into an Agent. A nil Health func
// reports healthy.
type AgentFunc struct {
	AgentName string
	Tag       string
	Fn        func(ctx context.Context, msg Message, emit EmitFunc) error
	Health    func(ctx context.Context) error
}

func (a AgentFunc) Name() string { return a.AgentName }

func (a AgentFunc) Run(ctx context.Context, msg Message, emit EmitFunc) error {
	return a.Fn(ctx, msg, emit)
}

func (a AgentFunc) HealthCheck(ctx context.Context) error {
	if a.Health == nil {
		return nil
	}
	return a.Health(ctx)
}

func (a AgentFunc) TypeTag() string { return a.Tag }
