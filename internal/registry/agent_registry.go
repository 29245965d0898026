package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agentforge/agentforge/pkg/config"
	"github.com/agentforge/agentforge/pkg/errors"
	"github.com/agentforge/agentforge/pkg/logging"
	"github.com/agentforge/agentforge/pkg/metrics"
	"github.com/agentforge/agentforge/pkg/unit"
)

// AgentValidator checks an agent at registration time and during ValidateAll
type AgentValidator func(name string, agent unit.Agent) error

// AgentRegistry stores named agents with type and capacity validation,
// hot-swap, discovery queries and background health probing.
type AgentRegistry struct {
	*Base

	config  config.AgentRegistryConfig
	metrics *metrics.Metrics
	logger  *logging.Logger
	loader  unit.Loader

	mu         sync.RWMutex
	entries    map[string]*Entry
	validators map[string]AgentValidator
}

// NewAgentRegistry creates an agent registry. loader and m may be nil.
func NewAgentRegistry(cfg config.AgentRegistryConfig, loader unit.Loader, m *metrics.Metrics) *AgentRegistry {
	r := &AgentRegistry{
		config:     cfg,
		metrics:    m,
		logger:     logging.GetLogger(),
		loader:     loader,
		entries:    make(map[string]*Entry),
		validators: make(map[string]AgentValidator),
	}
	r.Base = NewBase(cfg.RegistryConfig, r, m)
	return r
}

// Register adds an agent under name. Re-registering an existing name is a
// hot-swap: the payload is replaced, counters survive per configuration, and
// an Updated event carrying the replaced agent is emitted instead of
// Registered. Validation failures leave the registry untouched.
func (r *AgentRegistry) Register(name string, agent unit.Agent, metadata map[string]interface{}) error {
	if name == "" {
		return errors.NewValidationError("agent name cannot be empty")
	}
	if agent == nil {
		return errors.NewValidationError("agent cannot be nil").WithLocation(r.config.Name, name)
	}

	typeTag := detectTypeTag(agent)
	if len(r.config.AllowedTypes) > 0 && !containsString(r.config.AllowedTypes, typeTag) {
		return errors.NewValidationError(fmt.Sprintf("agent type %q is not allowed", typeTag)).
			WithLocation(r.config.Name, name).
			WithDetail("allowed_types", fmt.Sprintf("%v", r.config.AllowedTypes))
	}

	if r.config.ValidateOnRegister {
		if err := r.runValidators(name, agent); err != nil {
			return err
		}
	}

	r.mu.Lock()
	existing, swap := r.entries[name]
	if swap && !r.config.EnableHotSwap {
		r.mu.Unlock()
		return errors.NewConflictError(fmt.Sprintf("agent %q is already registered and hot-swap is disabled", name)).
			WithLocation(r.config.Name, name)
	}
	// Capacity applies to new names only; swapping at capacity is always
	// allowed.
	if !swap && r.config.MaxAgents > 0 && len(r.entries) >= r.config.MaxAgents {
		r.mu.Unlock()
		return errors.NewValidationError(fmt.Sprintf("agent registry is full (max %d)", r.config.MaxAgents)).
			WithLocation(r.config.Name, name)
	}

	entry := NewEntry(name, agent, typeTag, metadata)
	if swap && r.config.PreserveCountersOnSwap {
		entry.UsageCount = existing.UsageCount
		entry.ErrorCount = existing.ErrorCount
		entry.LastUsedAt = existing.LastUsedAt
		entry.RegisteredAt = existing.RegisteredAt
	}
	r.entries[name] = entry
	r.mu.Unlock()

	r.CachePut(name, agent)
	r.UpdateHealthStatus(name, HealthHealthy, nil)

	if r.metrics != nil {
		r.metrics.RecordRegistration(r.config.Name, typeTag)
		r.metrics.UpdateRegisteredItems(r.config.Name, r.Count())
	}

	if swap {
		r.logger.Info("Agent hot-swapped",
			"registry", r.config.Name,
			"agent", name,
			"type", typeTag,
			"counters_preserved", r.config.PreserveCountersOnSwap,
		)
		r.Publish(EventUpdated, name, existing.Payload, map[string]interface{}{
			"replaced": true,
			"type_tag": typeTag,
		})
	} else {
		r.logger.Info("Agent registered",
			"registry", r.config.Name,
			"agent", name,
			"type", typeTag,
		)
		r.Publish(EventRegistered, name, agent, map[string]interface{}{
			"type_tag": typeTag,
		})
	}
	return nil
}

// Load returns the agent registered under name, consulting the cache first,
// then the entry map, then the configured loader fallback.
func (r *AgentRegistry) Load(name string) (unit.Agent, error) {
	if cached, ok := r.CacheGet(name); ok {
		if agent, ok := cached.(unit.Agent); ok {
			return agent, nil
		}
	}

	r.mu.Lock()
	if entry, ok := r.entries[name]; ok {
		entry.MarkUsed()
		agent := entry.Payload.(unit.Agent)
		r.mu.Unlock()
		r.CachePut(name, agent)
		return agent, nil
	}
	r.mu.Unlock()

	if r.loader != nil {
		agent, err := r.loader.Load(name)
		if err == nil && agent != nil {
			if regErr := r.Register(name, agent, map[string]interface{}{"source": "loader"}); regErr != nil {
				return nil, regErr
			}
			return agent, nil
		}
	}

	return nil, errors.NewNotFoundError(fmt.Sprintf("agent %q", name), r.ListNames()).
		WithLocation(r.config.Name, name)
}

// Unregister removes the named agent. The entry, its health record and its
// cache slot go together; no orphaned state survives.
func (r *AgentRegistry) Unregister(name string) error {
	r.mu.Lock()
	entry, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return errors.NewNotFoundError(fmt.Sprintf("agent %q", name), r.listNamesLocked()).
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

	r.logger.Info("Agent unregistered", "registry", r.config.Name, "agent", name)
	r.Publish(EventUnregistered, name, entry.Payload, nil)
	return nil
}

// IsRegistered reports whether name has a live entry
func (r *AgentRegistry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[name]
	return ok
}

// Count returns the number of registered agents
func (r *AgentRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// ListNames returns all registered names in sorted order
func (r *AgentRegistry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.listNamesLocked()
}

func (r *AgentRegistry) listNamesLocked() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetEntry returns a copy of the entry for name
func (r *AgentRegistry) GetEntry(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// FindByType returns the sorted names of agents whose type tag matches
func (r *AgentRegistry) FindByType(typeTag string) []string {
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

// FindByMetadata returns the sorted names of agents whose metadata contains
// every filter key with an equal value
func (r *AgentRegistry) FindByMetadata(filters map[string]interface{}) []string {
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
func (r *AgentRegistry) AddValidator(name string, validator AgentValidator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.validators[name] = validator
}

// RemoveValidator removes a validation callback by name
func (r *AgentRegistry) RemoveValidator(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.validators, name)
}

// ValidateAll runs every validator against every registered agent and
// returns the failures keyed by agent name
func (r *AgentRegistry) ValidateAll() map[string]error {
	r.mu.RLock()
	agents := make(map[string]unit.Agent, len(r.entries))
	for name, entry := range r.entries {
		agents[name] = entry.Payload.(unit.Agent)
	}
	r.mu.RUnlock()

	failures := make(map[string]error)
	for name, agent := range agents {
		if err := r.runValidators(name, agent); err != nil {
			failures[name] = err
		}
	}
	return failures
}

func (r *AgentRegistry) runValidators(name string, agent unit.Agent) error {
	r.mu.RLock()
	validators := make([]AgentValidator, 0, len(r.validators))
	for _, v := range r.validators {
		validators = append(validators, v)
	}
	r.mu.RUnlock()

	for _, validator := range validators {
		if err := validator(name, agent); err != nil {
			return errors.NewValidationError(fmt.Sprintf("agent %q failed validation: %v", name, err)).
				WithLocation(r.config.Name, name).
				WithCause(err)
		}
	}
	return nil
}

// Stats returns the base counters plus agent specifics
func (r *AgentRegistry) Stats() map[string]interface{} {
	stats := r.Base.Stats()
	stats["agent_count"] = r.Count()
	stats["max_agents"] = r.config.MaxAgents
	stats["hot_swap_enabled"] = r.config.EnableHotSwap
	stats["loader_attached"] = r.loader != nil
	return stats
}

// ItemsForHealthCheck implements ItemSource
func (r *AgentRegistry) ItemsForHealthCheck() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make(map[string]interface{}, len(r.entries))
	for name, entry := range r.entries {
		items[name] = entry.Payload
	}
	return items
}

// CheckItemHealth implements ItemSource. A failed HealthCheck marks the agent
// unhealthy; a validator failure on an otherwise reachable agent degrades it.
func (r *AgentRegistry) CheckItemHealth(ctx context.Context, name string, item interface{}) (HealthStatus, map[string]interface{}) {
	agent, ok := item.(unit.Agent)
	if !ok {
		return HealthUnknown, map[string]interface{}{"error": "payload is not an agent"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout())
	defer cancel()

	if err := agent.HealthCheck(probeCtx); err != nil {
		return HealthUnhealthy, map[string]interface{}{"error": err.Error()}
	}

	if err := r.runValidators(name, agent); err != nil {
		return HealthDegraded, map[string]interface{}{"validation_error": err.Error()}
	}

	return HealthHealthy, nil
}

func (r *AgentRegistry) probeTimeout() time.Duration {
	if r.config.HealthProbeTimeout > 0 {
		return r.config.HealthProbeTimeout
	}
	return 30 * time.Second
}

// detectTypeTag returns the payload's explicit type tag, empty when the
// payload declares none
func detectTypeTag(payload interface{}) string {
	if tagged, ok := payload.(unit.TypeTagged); ok {
		return tagged.TypeTag()
	}
	return ""
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func metadataMatches(metadata, filters map[string]interface{}) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}
