package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/agentforge/agentforge/internal/workflow"
	"github.com/agentforge/agentforge/pkg/config"
	"github.com/agentforge/agentforge/pkg/errors"
	"github.com/agentforge/agentforge/pkg/logging"
	"github.com/agentforge/agentforge/pkg/metrics"
	"github.com/agentforge/agentforge/pkg/unit"
)

// Error-rate thresholds applied by the tool health probe
const (
	unhealthyErrorRate = 0.5
	degradedErrorRate  = 0.2
)

// ToolValidator checks a tool at registration time
type ToolValidator func(name string, tool unit.Tool) error

// ToolRegistry stores named tools and dispatches their execution through the
// strategy manager under a concurrency bound.
type ToolRegistry struct {
	*Base

	config     config.ToolRegistryConfig
	metrics    *metrics.Metrics
	logger     *logging.Logger
	strategies *workflow.StrategyManager
	sem        *semaphore.Weighted

	mu         sync.RWMutex
	entries    map[string]*Entry
	toolsets   map[string][]string
	validators map[string]ToolValidator
}

// NewToolRegistry creates a tool registry. strategies and m may be nil; with
// no strategy manager tools execute directly.
func NewToolRegistry(cfg config.ToolRegistryConfig, strategies *workflow.StrategyManager, m *metrics.Metrics) *ToolRegistry {
	maxConcurrent := cfg.MaxConcurrentExecutions
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}

	r := &ToolRegistry{
		config:     cfg,
		metrics:    m,
		logger:     logging.GetLogger(),
		strategies: strategies,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		entries:    make(map[string]*Entry),
		toolsets:   make(map[string][]string),
		validators: make(map[string]ToolValidator),
	}
	r.Base = NewBase(cfg.RegistryConfig, r, m)
	return r
}

// Register adds a tool under name with the same hot-swap and validation
// semantics as the agent registry
func (r *ToolRegistry) Register(name string, tool unit.Tool, metadata map[string]interface{}) error {
	if name == "" {
		return errors.NewValidationError("tool name cannot be empty")
	}
	if tool == nil {
		return errors.NewValidationError("tool cannot be nil").WithLocation(r.config.Name, name)
	}

	typeTag := workflow.DetectType(tool)
	if len(r.config.AllowedTypes) > 0 && !containsString(r.config.AllowedTypes, typeTag) {
		return errors.NewValidationError(fmt.Sprintf("tool type %q is not allowed", typeTag)).
			WithLocation(r.config.Name, name).
			WithDetail("allowed_types", fmt.Sprintf("%v", r.config.AllowedTypes))
	}

	if r.config.ValidateOnRegister {
		if err := r.runValidators(name, tool); err != nil {
			return err
		}
	}

	r.mu.Lock()
	existing, swap := r.entries[name]
	if swap && !r.config.EnableHotSwap {
		r.mu.Unlock()
		return errors.NewConflictError(fmt.Sprintf("tool %q is already registered and hot-swap is disabled", name)).
			WithLocation(r.config.Name, name)
	}
	if !swap && r.config.MaxTools > 0 && len(r.entries) >= r.config.MaxTools {
		r.mu.Unlock()
		return errors.NewValidationError(fmt.Sprintf("tool registry is full (max %d)", r.config.MaxTools)).
			WithLocation(r.config.Name, name)
	}

	entry := NewEntry(name, tool, typeTag, metadata)
	if swap && r.config.PreserveCountersOnSwap {
		entry.UsageCount = existing.UsageCount
		entry.ErrorCount = existing.ErrorCount
		entry.LastUsedAt = existing.LastUsedAt
		entry.RegisteredAt = existing.RegisteredAt
	}
	r.entries[name] = entry
	r.mu.Unlock()

	r.CachePut(name, tool)
	r.UpdateHealthStatus(name, HealthHealthy, nil)

	if r.metrics != nil {
		r.metrics.RecordRegistration(r.config.Name, typeTag)
		r.metrics.UpdateRegisteredItems(r.config.Name, r.Count())
	}

	if swap {
		r.logger.Info("Tool hot-swapped",
			"registry", r.config.Name,
			"tool", name,
			"type", typeTag,
			"counters_preserved", r.config.PreserveCountersOnSwap,
		)
		r.Publish(EventUpdated, name, existing.Payload, map[string]interface{}{
			"replaced": true,
			"type_tag": typeTag,
		})
	} else {
		r.logger.Info("Tool registered",
			"registry", r.config.Name,
			"tool", name,
			"type", typeTag,
		)
		r.Publish(EventRegistered, name, tool, map[string]interface{}{
			"type_tag": typeTag,
		})
	}
	return nil
}

// RegisterToolset bulk-registers every tool the toolset yields under
// "toolset.tool" names. Registration is all-or-nothing: a failing child rolls
// back the children registered before it.
func (r *ToolRegistry) RegisterToolset(ctx context.Context, name string, toolset unit.Toolset, metadata map[string]interface{}) error {
	if name == "" {
		return errors.NewValidationError("toolset name cannot be empty")
	}
	if toolset == nil {
		return errors.NewValidationError("toolset cannot be nil").WithLocation(r.config.Name, name)
	}

	r.mu.RLock()
	_, exists := r.toolsets[name]
	r.mu.RUnlock()
	if exists {
		return errors.NewConflictError(fmt.Sprintf("toolset %q is already registered", name)).
			WithLocation(r.config.Name, name)
	}

	tools, err := toolset.Tools(ctx)
	if err != nil {
		return errors.NewExternalError(name, fmt.Sprintf("toolset failed to yield tools: %v", err)).
			WithLocation(r.config.Name, name).
			WithCause(err)
	}

	var registered []string
	for _, tool := range tools {
		childName := fmt.Sprintf("%s.%s", name, tool.Name())
		childMeta := map[string]interface{}{"toolset": name}
		for k, v := range metadata {
			childMeta[k] = v
		}
		if err := r.Register(childName, tool, childMeta); err != nil {
			for _, prev := range registered {
				_ = r.Unregister(prev)
			}
			return errors.NewValidationError(fmt.Sprintf("toolset %q rolled back: child %q failed registration", name, childName)).
				WithLocation(r.config.Name, name).
				WithCause(err)
		}
		registered = append(registered, childName)
	}

	r.mu.Lock()
	r.toolsets[name] = registered
	r.mu.Unlock()

	r.logger.Info("Toolset registered",
		"registry", r.config.Name,
		"toolset", name,
		"tools", len(registered),
	)
	return nil
}

// UnregisterToolset removes every tool the toolset contributed
func (r *ToolRegistry) UnregisterToolset(name string) error {
	r.mu.Lock()
	children, ok := r.toolsets[name]
	if !ok {
		r.mu.Unlock()
		return errors.NewNotFoundError(fmt.Sprintf("toolset %q", name), r.toolsetNamesLocked()).
			WithLocation(r.config.Name, name)
	}
	delete(r.toolsets, name)
	r.mu.Unlock()

	for _, child := range children {
		_ = r.Unregister(child)
	}

	r.logger.Info("Toolset unregistered",
		"registry", r.config.Name,
		"toolset", name,
		"tools", len(children),
	)
	return nil
}

// ListToolsets returns the registered toolset names in sorted order
func (r *ToolRegistry) ListToolsets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.toolsetNamesLocked()
}

func (r *ToolRegistry) toolsetNamesLocked() []string {
	names := make([]string, 0, len(r.toolsets))
	for name := range r.toolsets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named tool through its resolved execution strategy,
// bounded by the registry's concurrency limit. Success and failure feed the
// entry counters and the tool's health record.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args interface{}) (interface{}, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.NewTimeoutError(fmt.Sprintf("acquiring execution slot for tool %q", name)).
			WithLocation(r.config.Name, name).
			WithCause(err)
	}
	defer r.sem.Release(1)

	tool, entry, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, execErr := r.dispatch(ctx, name, entry, tool, args)
	elapsed := time.Since(start)

	r.mu.Lock()
	if live, ok := r.entries[name]; ok {
		if execErr != nil {
			live.MarkError()
		} else {
			live.MarkUsed()
		}
	}
	r.mu.Unlock()

	status := "success"
	if execErr != nil {
		status = "failure"
		r.UpdateHealthStatus(name, r.healthForErrorRate(name), map[string]interface{}{
			"last_error": execErr.Error(),
		})
	} else {
		r.UpdateHealthStatus(name, HealthHealthy, nil)
	}

	if r.metrics != nil {
		r.metrics.RecordExecution(r.config.Name, name, status, elapsed)
	}

	return result, execErr
}

// lookup finds the tool payload, cache first
func (r *ToolRegistry) lookup(name string) (unit.Tool, *Entry, error) {
	if cached, ok := r.CacheGet(name); ok {
		if tool, ok := cached.(unit.Tool); ok {
			r.mu.RLock()
			entry := r.entries[name]
			r.mu.RUnlock()
			if entry != nil {
				return tool, entry, nil
			}
		}
	}

	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, errors.NewNotFoundError(fmt.Sprintf("tool %q", name), r.ListNames()).
			WithLocation(r.config.Name, name)
	}

	tool := entry.Payload.(unit.Tool)
	r.CachePut(name, tool)
	return tool, entry, nil
}

// dispatch resolves the entry's strategy and runs the tool through it as a
// single-unit workflow. Without a strategy manager the tool runs directly.
func (r *ToolRegistry) dispatch(ctx context.Context, name string, entry *Entry, tool unit.Tool, args interface{}) (interface{}, error) {
	if r.strategies == nil {
		return tool.Execute(ctx, args)
	}

	strategy, ok := r.strategies.Resolve(r.strategyTag(entry))
	if !ok {
		return tool.Execute(ctx, args)
	}

	var result interface{}
	wrapped := unit.UnitFunc{
		UnitName: name,
		Fn: func(ctx context.Context, msg unit.Message, emit unit.EmitFunc) error {
			out, err := tool.Execute(ctx, args)
			if err != nil {
				return err
			}
			result = out
			event := unit.NewEvent(name, fmt.Sprintf("%v", out))
			emit(event)
			return nil
		},
	}

	_, err := strategy.Execute(ctx, []unit.Unit{wrapped}, unit.Message{
		Role:    "user",
		Content: fmt.Sprintf("%v", args),
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// strategyTag resolves the tag used to pick an execution strategy: an
// explicit strategy in the entry metadata wins, then the entry's type tag,
// then the manager default (handled by Resolve).
func (r *ToolRegistry) strategyTag(entry *Entry) string {
	if entry.Metadata != nil {
		if tag, ok := entry.Metadata["strategy"].(string); ok && tag != "" {
			return tag
		}
	}
	if entry.TypeTag != "" {
		return entry.TypeTag
	}
	return r.config.DefaultStrategy
}

// Unregister removes the named tool together with its health record and
// cache slot
func (r *ToolRegistry) Unregister(name string) error {
	r.mu.Lock()
	entry, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return errors.NewNotFoundError(fmt.Sprintf("tool %q", name), r.listNamesLocked()).
			WithLocation(r.config.Name, name)
	}
	delete(r.entries, name)
	r.mu.Unlock()

	r.CacheRemove(name)
	r.RemoveHealthRecord(name)

	if r.metrics != nil {
		r.metrics.RecordUnregistration(r.config.Name)
		r.metrics.UpdateRegisteredItems(r.config.Name, r.Count())
	}

	r.logger.Info("Tool unregistered", "registry", r.config.Name, "tool", name)
	r.Publish(EventUnregistered, name, entry.Payload, nil)
	return nil
}

// IsRegistered reports whether name has a live entry
func (r *ToolRegistry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[name]
	return ok
}

// Count returns the number of registered tools
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// ListNames returns all registered names in sorted order
func (r *ToolRegistry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.listNamesLocked()
}

func (r *ToolRegistry) listNamesLocked() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetEntry returns a copy of the entry for name
func (r *ToolRegistry) GetEntry(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// FindByType returns the sorted names of tools whose type tag matches
func (r *ToolRegistry) FindByType(typeTag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, entry := range r.entries {
		if entry.TypeTag == typeTag {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// FindByStrategy returns the sorted names of tools that resolve to the given
// strategy tag
func (r *ToolRegistry) FindByStrategy(tag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, entry := range r.entries {
		if r.strategyTag(entry) == tag {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// FindByMetadata returns the sorted names of tools whose metadata contains
// every filter key with an equal value
func (r *ToolRegistry) FindByMetadata(filters map[string]interface{}) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, entry := range r.entries {
		if metadataMatches(entry.Metadata, filters) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// AddValidator registers a named validation callback
func (r *ToolRegistry) AddValidator(name string, validator ToolValidator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.validators[name] = validator
}

// RemoveValidator removes a validation callback by name
func (r *ToolRegistry) RemoveValidator(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.validators, name)
}

func (r *ToolRegistry) runValidators(name string, tool unit.Tool) error {
	r.mu.RLock()
	validators := make([]ToolValidator, 0, len(r.validators))
	for _, v := range r.validators {
		validators = append(validators, v)
	}
	r.mu.RUnlock()

	for _, validator := range validators {
		if err := validator(name, tool); err != nil {
			return errors.NewValidationError(fmt.Sprintf("tool %q failed validation: %v", name, err)).
				WithLocation(r.config.Name, name).
				WithCause(err)
		}
	}
	return nil
}

// healthForErrorRate maps an entry's error rate onto a health status
func (r *ToolRegistry) healthForErrorRate(name string) HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return HealthUnknown
	}
	rate := entry.ErrorRate()
	switch {
	case rate > unhealthyErrorRate:
		return HealthUnhealthy
	case rate > degradedErrorRate:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// Stats returns the base counters plus tool specifics
func (r *ToolRegistry) Stats() map[string]interface{} {
	stats := r.Base.Stats()
	r.mu.RLock()
	stats["tool_count"] = len(r.entries)
	stats["toolset_count"] = len(r.toolsets)
	r.mu.RUnlock()
	stats["max_tools"] = r.config.MaxTools
	stats["hot_swap_enabled"] = r.config.EnableHotSwap
	stats["max_concurrent_executions"] = r.config.MaxConcurrentExecutions
	return stats
}

// ItemsForHealthCheck implements ItemSource
func (r *ToolRegistry) ItemsForHealthCheck() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make(map[string]interface{}, len(r.entries))
	for name, entry := range r.entries {
		items[name] = entry.Payload
	}
	return items
}

// CheckItemHealth implements ItemSource. Tool health derives from the entry's
// execution error rate.
func (r *ToolRegistry) CheckItemHealth(ctx context.Context, name string, item interface{}) (HealthStatus, map[string]interface{}) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	if !ok {
		r.mu.RUnlock()
		return HealthUnknown, nil
	}
	rate := entry.ErrorRate()
	usage := entry.UsageCount
	errCount := entry.ErrorCount
	r.mu.RUnlock()

	details := map[string]interface{}{
		"error_rate":  rate,
		"usage_count": usage,
		"error_count": errCount,
	}

	switch {
	case rate > unhealthyErrorRate:
		return HealthUnhealthy, details
	case rate > degradedErrorRate:
		return HealthDegraded, details
	default:
		return HealthHealthy, details
	}
}
