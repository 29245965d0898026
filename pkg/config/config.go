package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig        `json:"server"`
	Redis      RedisConfig         `json:"redis"`
	Agents     AgentRegistryConfig `json:"agents"`
	Tools      ToolRegistryConfig  `json:"tools"`
	Workflow   WorkflowConfig      `json:"workflow"`
	Resilience ResilienceConfig    `json:"resilience"`
	Logging    LoggingConfig       `json:"logging"`
}

// ServerConfig contains HTTP server configuration for the daemon surface
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// RedisConfig contains Redis connection configuration for the event publisher
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Enabled  bool   `json:"enabled"`
}

// RegistryConfig contains settings shared by all registries
type RegistryConfig struct {
	Name                   string        `json:"name"`
	CacheTTL               time.Duration `json:"cache_ttl"`
	CacheCleanupInterval   time.Duration `json:"cache_cleanup_interval"`
	HealthCheckInterval    time.Duration `json:"health_check_interval"`
	EnableEvents           bool          `json:"enable_events"`
	EnableCaching          bool          `json:"enable_caching"`
	EnableHealthMonitoring bool          `json:"enable_health_monitoring"`
}

// AgentRegistryConfig contains agent registry configuration
type AgentRegistryConfig struct {
	RegistryConfig
	MaxAgents              int           `json:"max_agents"`
	AllowedTypes           []string      `json:"allowed_types"`
	EnableHotSwap          bool          `json:"enable_hot_swap"`
	PreserveCountersOnSwap bool          `json:"preserve_counters_on_swap"`
	ValidateOnRegister     bool          `json:"validate_on_register"`
	HealthProbeTimeout     time.Duration `json:"health_probe_timeout"`
}

// ToolRegistryConfig contains tool registry configuration
type ToolRegistryConfig struct {
	RegistryConfig
	MaxTools                int      `json:"max_tools"`
	AllowedTypes            []string `json:"allowed_types"`
	EnableHotSwap           bool     `json:"enable_hot_swap"`
	PreserveCountersOnSwap  bool     `json:"preserve_counters_on_swap"`
	ValidateOnRegister      bool     `json:"validate_on_register"`
	MaxConcurrentExecutions int      `json:"max_concurrent_executions"`
	DefaultStrategy         string   `json:"default_strategy"`
}

// WorkflowConfig contains workflow execution configuration
type WorkflowConfig struct {
	FailureHandling string        `json:"failure_handling"`
	StepTimeout     time.Duration `json:"step_timeout"`
	TotalTimeout    time.Duration `json:"total_timeout"`
	MaxConcurrency  int           `json:"max_concurrency"`
	MaxIterations   int           `json:"max_iterations"`
}

// ResilienceConfig contains circuit breaker and retry configuration
type ResilienceConfig struct {
	FailureThreshold  int           `json:"failure_threshold"`
	RecoveryTimeout   time.Duration `json:"recovery_timeout"`
	SuccessThreshold  int           `json:"success_threshold"`
	HalfOpenMaxCalls  int           `json:"half_open_max_calls"`
	RetryMaxAttempts  int           `json:"retry_max_attempts"`
	RetryBaseDelay    time.Duration `json:"retry_base_delay"`
	RetryMaxDelay     time.Duration `json:"retry_max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	Jitter            bool          `json:"jitter"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnvString("REDIS_ADDR", "localhost:6379"),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_EVENTS_ENABLED", false),
		},
		Agents: AgentRegistryConfig{
			RegistryConfig: RegistryConfig{
				Name:                   getEnvString("AGENT_REGISTRY_NAME", "agents"),
				CacheTTL:               getEnvDuration("AGENT_CACHE_TTL", 5*time.Minute),
				CacheCleanupInterval:   getEnvDuration("AGENT_CACHE_CLEANUP_INTERVAL", time.Minute),
				HealthCheckInterval:    getEnvDuration("AGENT_HEALTH_CHECK_INTERVAL", time.Minute),
				EnableEvents:           getEnvBool("AGENT_EVENTS_ENABLED", true),
				EnableCaching:          getEnvBool("AGENT_CACHING_ENABLED", true),
				EnableHealthMonitoring: getEnvBool("AGENT_HEALTH_MONITORING_ENABLED", true),
			},
			MaxAgents:              getEnvInt("AGENT_MAX_AGENTS", 0),
			AllowedTypes:           getEnvStringSlice("AGENT_ALLOWED_TYPES", nil),
			EnableHotSwap:          getEnvBool("AGENT_HOT_SWAP_ENABLED", true),
			PreserveCountersOnSwap: getEnvBool("AGENT_PRESERVE_COUNTERS_ON_SWAP", true),
			ValidateOnRegister:     getEnvBool("AGENT_VALIDATE_ON_REGISTER", true),
			HealthProbeTimeout:     getEnvDuration("AGENT_HEALTH_PROBE_TIMEOUT", 30*time.Second),
		},
		Tools: ToolRegistryConfig{
			RegistryConfig: RegistryConfig{
				Name:                   getEnvString("TOOL_REGISTRY_NAME", "tools"),
				CacheTTL:               getEnvDuration("TOOL_CACHE_TTL", 5*time.Minute),
				CacheCleanupInterval:   getEnvDuration("TOOL_CACHE_CLEANUP_INTERVAL", time.Minute),
				HealthCheckInterval:    getEnvDuration("TOOL_HEALTH_CHECK_INTERVAL", time.Minute),
				EnableEvents:           getEnvBool("TOOL_EVENTS_ENABLED", true),
				EnableCaching:          getEnvBool("TOOL_CACHING_ENABLED", true),
				EnableHealthMonitoring: getEnvBool("TOOL_HEALTH_MONITORING_ENABLED", true),
			},
			MaxTools:                getEnvInt("TOOL_MAX_TOOLS", 0),
			AllowedTypes:            getEnvStringSlice("TOOL_ALLOWED_TYPES", nil),
			EnableHotSwap:           getEnvBool("TOOL_HOT_SWAP_ENABLED", true),
			PreserveCountersOnSwap:  getEnvBool("TOOL_PRESERVE_COUNTERS_ON_SWAP", true),
			ValidateOnRegister:      getEnvBool("TOOL_VALIDATE_ON_REGISTER", true),
			MaxConcurrentExecutions: getEnvInt("TOOL_MAX_CONCURRENT_EXECUTIONS", 10),
			DefaultStrategy:         getEnvString("TOOL_DEFAULT_STRATEGY", "sequential"),
		},
		Workflow: WorkflowConfig{
			FailureHandling: getEnvString("WORKFLOW_FAILURE_HANDLING", "fail_fast"),
			StepTimeout:     getEnvDuration("WORKFLOW_STEP_TIMEOUT", 5*time.Minute),
			TotalTimeout:    getEnvDuration("WORKFLOW_TOTAL_TIMEOUT", 10*time.Minute),
			MaxConcurrency:  getEnvInt("WORKFLOW_MAX_CONCURRENCY", 10),
			MaxIterations:   getEnvInt("WORKFLOW_MAX_ITERATIONS", 100),
		},
		Resilience: ResilienceConfig{
			FailureThreshold:  getEnvInt("RESILIENCE_FAILURE_THRESHOLD", 5),
			RecoveryTimeout:   getEnvDuration("RESILIENCE_RECOVERY_TIMEOUT", 30*time.Second),
			SuccessThreshold:  getEnvInt("RESILIENCE_SUCCESS_THRESHOLD", 2),
			HalfOpenMaxCalls:  getEnvInt("RESILIENCE_HALF_OPEN_MAX_CALLS", 3),
			RetryMaxAttempts:  getEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 3),
			RetryBaseDelay:    getEnvDuration("RESILIENCE_RETRY_BASE_DELAY", 100*time.Millisecond),
			RetryMaxDelay:     getEnvDuration("RESILIENCE_RETRY_MAX_DELAY", 30*time.Second),
			BackoffMultiplier: getEnvFloat("RESILIENCE_BACKOFF_MULTIPLIER", 2.0),
			Jitter:            getEnvBool("RESILIENCE_JITTER", true),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration. Validation happens once at load;
// the core components trust the values they are constructed with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if err := c.Agents.RegistryConfig.validate(); err != nil {
		return fmt.Errorf("agent registry: %w", err)
	}
	if err := c.Tools.RegistryConfig.validate(); err != nil {
		return fmt.Errorf("tool registry: %w", err)
	}
	if c.Agents.MaxAgents < 0 {
		return fmt.Errorf("max agents must not be negative")
	}
	if c.Tools.MaxTools < 0 {
		return fmt.Errorf("max tools must not be negative")
	}
	if c.Tools.MaxConcurrentExecutions <= 0 {
		return fmt.Errorf("max concurrent executions must be positive")
	}
	for _, t := range append(append([]string{}, c.Agents.AllowedTypes...), c.Tools.AllowedTypes...) {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("allowed types must be non-empty strings")
		}
	}
	switch c.Workflow.FailureHandling {
	case "fail_fast", "continue", "retry":
	default:
		return fmt.Errorf("unknown failure handling mode: %s", c.Workflow.FailureHandling)
	}
	if c.Workflow.MaxConcurrency <= 0 {
		return fmt.Errorf("workflow max concurrency must be positive")
	}
	if c.Workflow.MaxIterations <= 0 {
		return fmt.Errorf("workflow max iterations must be positive")
	}
	if c.Resilience.FailureThreshold <= 0 {
		return fmt.Errorf("failure threshold must be positive")
	}
	if c.Resilience.SuccessThreshold <= 0 {
		return fmt.Errorf("success threshold must be positive")
	}
	if c.Resilience.RetryMaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive")
	}
	if c.Resilience.BackoffMultiplier <= 0 {
		return fmt.Errorf("backoff multiplier must be positive")
	}
	return nil
}

func (rc *RegistryConfig) validate() error {
	if rc.Name == "" {
		return fmt.Errorf("registry name cannot be empty")
	}
	if rc.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if rc.HealthCheckInterval <= 0 {
		return fmt.Errorf("health check interval must be positive")
	}
	return nil
}

// Helper functions for reading environment variables

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}
