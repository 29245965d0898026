package workflow

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agentforge/agentforge/pkg/logging"
	"github.com/agentforge/agentforge/pkg/unit"
)

// Well-known type tags resolved by DetectType
const (
	TypeFunction = "function"
	TypeMCP      = "mcp"
	TypeOpenAPI  = "openapi"
)

// StrategyManager maps type tags onto execution strategies with a default
// fallback
type StrategyManager struct {
	mu         sync.RWMutex
	strategies map[string]ExecutionStrategy
	defaultTag string
	logger     *logging.Logger
}

// NewStrategyManager creates an empty manager
func NewStrategyManager() *StrategyManager {
	return &StrategyManager{
		strategies: make(map[string]ExecutionStrategy),
		logger:     logging.GetLogger(),
	}
}

// Register binds a type tag to a strategy, replacing any previous binding.
// The first registration becomes the default until SetDefault overrides it.
func (m *StrategyManager) Register(tag string, strategy ExecutionStrategy) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.strategies[tag] = strategy
	if m.defaultTag == "" {
		m.defaultTag = tag
	}
}

// SetDefault selects the fallback tag. Unknown tags are rejected.
func (m *StrategyManager) SetDefault(tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.strategies[tag]; !ok {
		return fmt.Errorf("no strategy registered for tag %q", tag)
	}
	m.defaultTag = tag
	return nil
}

// Resolve returns the strategy for tag, falling back to the default. The
// second return is false when neither the tag nor a default is bound.
func (m *StrategyManager) Resolve(tag string) (ExecutionStrategy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if strategy, ok := m.strategies[tag]; ok {
		return strategy, true
	}
	if strategy, ok := m.strategies[m.defaultTag]; ok {
		return strategy, true
	}
	return nil, false
}

// List returns the registered tags in sorted order
func (m *StrategyManager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tags := make([]string, 0, len(m.strategies))
	for tag := range m.strategies {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Metrics returns accumulated run totals for every registered strategy that
// reports them, keyed by tag
func (m *StrategyManager) Metrics() map[string]StrategyMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]StrategyMetrics, len(m.strategies))
	for tag, strategy := range m.strategies {
		if reporter, ok := strategy.(MetricsReporter); ok {
			out[tag] = reporter.Metrics()
		}
	}
	return out
}

// DefaultTag returns the current fallback tag
func (m *StrategyManager) DefaultTag() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.defaultTag
}

// DetectType classifies a payload. An explicit type tag wins; otherwise the
// concrete type name is matched against known families, and anything
// unrecognized is treated as a plain function tool.
func DetectType(payload interface{}) string {
	if tagged, ok := payload.(unit.TypeTagged); ok {
		if tag := tagged.TypeTag(); tag != "" {
			return tag
		}
	}

	typeName := strings.ToLower(fmt.Sprintf("%T", payload))
	switch {
	case strings.Contains(typeName, "mcp"):
		return TypeMCP
	case strings.Contains(typeName, "openapi"),
		strings.Contains(typeName, "rest"),
		strings.Contains(typeName, "api"):
		return TypeOpenAPI
	default:
		return TypeFunction
	}
}
