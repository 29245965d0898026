package registry

import (
	"context"
	"sync"
	"time"

	"github.com/agentforge/agentforge/pkg/config"
	"github.com/agentforge/agentforge/pkg/logging"
	"github.com/agentforge/agentforge/pkg/metrics"
)

// ItemSource supplies the items the health loop probes. Registries implement
// it over their own entry maps.
type ItemSource interface {
	// ItemsForHealthCheck returns a snapshot of name -> payload for every
	// live item
	ItemsForHealthCheck() map[string]interface{}
	// CheckItemHealth probes one item and returns its status plus details
	CheckItemHealth(ctx context.Context, name string, item interface{}) (HealthStatus, map[string]interface{})
}

// Base composes the lookup cache, event bus, health records and lifecycle
// shared by all registries.
type Base struct {
	config  config.RegistryConfig
	source  ItemSource
	cache   *TTLCache[interface{}]
	bus     *EventBus
	metrics *metrics.Metrics
	logger  *logging.Logger

	mu      sync.RWMutex
	health  map[string]*HealthRecord
	started bool

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastCleanup time.Time
}

// NewBase creates the shared registry core. metrics may be nil.
func NewBase(cfg config.RegistryConfig, source ItemSource, m *metrics.Metrics) *Base {
	return &Base{
		config:  cfg,
		source:  source,
		cache:   NewTTLCache[interface{}](cfg.CacheTTL),
		bus:     NewEventBus(),
		metrics: m,
		logger:  logging.GetLogger(),
		health:  make(map[string]*HealthRecord),
	}
}

// Name returns the registry name
func (b *Base) Name() string {
	return b.config.Name
}

// Startup starts the background health loop. Calling it on a started
// registry logs and no-ops.
func (b *Base) Startup() {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		b.logger.Debug("Registry already started", "registry", b.config.Name)
		return
	}
	b.started = true

	var ctx context.Context
	ctx, b.cancel = context.WithCancel(context.Background())

	if b.config.EnableHealthMonitoring {
		b.wg.Add(1)
		go b.healthLoop(ctx)
	}
	b.mu.Unlock()

	b.logger.Info("Registry started",
		"registry", b.config.Name,
		"health_monitoring", b.config.EnableHealthMonitoring,
		"caching", b.config.EnableCaching,
	)
	b.publish(EventStartup, "", nil, nil)
}

// Shutdown stops the health loop, waits for the current iteration and clears
// the cache. Safe to call on a registry that never started.
func (b *Base) Shutdown() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
	b.cache.Clear()

	b.logger.Info("Registry stopped", "registry", b.config.Name)
	b.publish(EventShutdown, "", nil, nil)
}

// Started reports whether the registry lifecycle is active
func (b *Base) Started() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.started
}

// Subscribe adds an event listener and returns its id
func (b *Base) Subscribe(listener Listener) string {
	return b.bus.Subscribe(listener)
}

// Unsubscribe removes an event listener
func (b *Base) Unsubscribe(id string) {
	b.bus.Unsubscribe(id)
}

// Cache exposes the lookup cache to the embedding registry
func (b *Base) Cache() *TTLCache[interface{}] {
	return b.cache
}

// CacheGet consults the cache when caching is enabled, recording hit/miss
// metrics
func (b *Base) CacheGet(key string) (interface{}, bool) {
	if !b.config.EnableCaching {
		return nil, false
	}
	value, ok := b.cache.Get(key)
	if b.metrics != nil {
		if ok {
			b.metrics.RecordCacheHit(b.config.Name)
		} else {
			b.metrics.RecordCacheMiss(b.config.Name)
		}
	}
	return value, ok
}

// CachePut stores a value when caching is enabled
func (b *Base) CachePut(key string, value interface{}) {
	if !b.config.EnableCaching {
		return
	}
	b.cache.Put(key, value)
}

// CacheRemove drops a key from the cache
func (b *Base) CacheRemove(key string) {
	b.cache.Remove(key)
}

// publish emits a registry event when events are enabled
func (b *Base) publish(eventType EventType, itemName string, payload interface{}, metadata map[string]interface{}) {
	if !b.config.EnableEvents {
		return
	}
	b.bus.Publish(Event{
		Type:         eventType,
		RegistryName: b.config.Name,
		ItemName:     itemName,
		Payload:      payload,
		Timestamp:    time.Now(),
		Metadata:     metadata,
	})
}

// Publish lets the embedding registry emit its own lifecycle events
func (b *Base) Publish(eventType EventType, itemName string, payload interface{}, metadata map[string]interface{}) {
	b.publish(eventType, itemName, payload, metadata)
}

// UpdateHealthStatus applies a probe result for an item, creating the record
// on first use. HealthChanged is emitted only on a status transition.
func (b *Base) UpdateHealthStatus(itemName string, status HealthStatus, details map[string]interface{}) {
	b.applyHealthStatus(itemName, status, details, true)
}

// refreshHealthStatus applies a probe result only to an existing record. The
// health loop uses it so an item unregistered after the pass snapshotted its
// targets stays gone instead of getting its record recreated.
func (b *Base) refreshHealthStatus(itemName string, status HealthStatus, details map[string]interface{}) {
	b.applyHealthStatus(itemName, status, details, false)
}

func (b *Base) applyHealthStatus(itemName string, status HealthStatus, details map[string]interface{}, createMissing bool) {
	b.mu.Lock()
	record, ok := b.health[itemName]
	if !ok {
		if !createMissing {
			b.mu.Unlock()
			return
		}
		record = NewHealthRecord(itemName, status)
		record.Details = details
		b.health[itemName] = record
		b.mu.Unlock()

		if b.metrics != nil {
			b.metrics.UpdateHealthStatus(b.config.Name, itemName, status.GaugeValue())
		}
		return
	}

	previous := record.Status
	record.UpdateStatus(status, details)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.UpdateHealthStatus(b.config.Name, itemName, status.GaugeValue())
	}

	if previous != status {
		b.logger.Info("Item health changed",
			"registry", b.config.Name,
			"item_name", itemName,
			"from", string(previous),
			"to", string(status),
		)
		b.publish(EventHealthChanged, itemName, nil, map[string]interface{}{
			"previous_status": string(previous),
			"current_status":  string(status),
		})
	}
}

// RemoveHealthRecord drops an item's health record
func (b *Base) RemoveHealthRecord(itemName string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.health, itemName)
}

// GetHealthInfo returns a copy of an item's health record
func (b *Base) GetHealthInfo(itemName string) (*HealthRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	record, ok := b.health[itemName]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// GetAllHealthInfo returns a copy of every health record keyed by item name
func (b *Base) GetAllHealthInfo() map[string]*HealthRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]*HealthRecord, len(b.health))
	for name, record := range b.health {
		out[name] = record.Clone()
	}
	return out
}

// Stats returns operational counters for the registry core
func (b *Base) Stats() map[string]interface{} {
	b.mu.RLock()
	buckets := map[HealthStatus]int{}
	for _, record := range b.health {
		buckets[record.Status]++
	}
	started := b.started
	healthCount := len(b.health)
	b.mu.RUnlock()

	return map[string]interface{}{
		"registry":            b.config.Name,
		"started":             started,
		"cache_size":          b.cache.Size(),
		"health_records":      healthCount,
		"healthy":             buckets[HealthHealthy],
		"degraded":            buckets[HealthDegraded],
		"unhealthy":           buckets[HealthUnhealthy],
		"unknown":             buckets[HealthUnknown],
		"events_enabled":      b.config.EnableEvents,
		"caching_enabled":     b.config.EnableCaching,
		"health_monitoring":   b.config.EnableHealthMonitoring,
		"health_interval_sec": b.config.HealthCheckInterval.Seconds(),
	}
}

func (b *Base) healthLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.config.HealthCheckInterval)
	defer ticker.Stop()

	b.lastCleanup = time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.runHealthChecks(ctx)
		}
	}
}

// runHealthChecks probes every live item, drops records for items that no
// longer exist, and sweeps the cache on its own cadence.
func (b *Base) runHealthChecks(ctx context.Context) {
	items := b.source.ItemsForHealthCheck()

	for name, item := range items {
		if ctx.Err() != nil {
			return
		}
		status, details := b.source.CheckItemHealth(ctx, name, item)
		b.refreshHealthStatus(name, status, details)
	}

	b.mu.Lock()
	for name := range b.health {
		if _, live := items[name]; !live {
			delete(b.health, name)
		}
	}
	b.mu.Unlock()

	if time.Since(b.lastCleanup) >= b.config.CacheCleanupInterval {
		removed := b.cache.Cleanup()
		b.lastCleanup = time.Now()
		if removed > 0 {
			b.logger.Debug("Cache cleanup removed expired entries",
				"registry", b.config.Name,
				"removed", removed,
			)
		}
	}
}
