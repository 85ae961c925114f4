package config

import (
	"fmt"
	"os"

	"market-pipeline/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config instance from a YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyDefaults fills zero-valued tunables with working defaults so a minimal
// YAML file still boots.
func (c *Config) applyDefaults() {
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 1000
	}
	if c.Cache.DefaultTTLSeconds == 0 {
		c.Cache.DefaultTTLSeconds = 300
	}
	if c.Cache.CleanupIntervalSeconds == 0 {
		c.Cache.CleanupIntervalSeconds = 60
	}

	if c.Resilience.Breaker.FailureRateThreshold == 0 {
		c.Resilience.Breaker.FailureRateThreshold = 0.5
	}
	if c.Resilience.Breaker.MonitoringWindowSeconds == 0 {
		c.Resilience.Breaker.MonitoringWindowSeconds = 60
	}
	if c.Resilience.Breaker.ResetTimeoutSeconds == 0 {
		c.Resilience.Breaker.ResetTimeoutSeconds = 30
	}
	if c.Resilience.Breaker.MinimumCalls == 0 {
		c.Resilience.Breaker.MinimumCalls = 5
	}
	if c.Resilience.Retry.MaxAttempts == 0 {
		c.Resilience.Retry.MaxAttempts = 3
	}
	if c.Resilience.Retry.BaseDelayMs == 0 {
		c.Resilience.Retry.BaseDelayMs = 1000
	}
	if c.Resilience.Retry.MaxDelayMs == 0 {
		c.Resilience.Retry.MaxDelayMs = 30000
	}
	if c.Resilience.Retry.BackoffMultiplier == 0 {
		c.Resilience.Retry.BackoffMultiplier = 2
	}
	if c.Resilience.Bulkhead.MaxConcurrent == 0 {
		c.Resilience.Bulkhead.MaxConcurrent = 10
	}
	if c.Resilience.Bulkhead.MaxQueueSize == 0 {
		c.Resilience.Bulkhead.MaxQueueSize = 50
	}
	if c.Resilience.Bulkhead.TimeoutMs == 0 {
		c.Resilience.Bulkhead.TimeoutMs = 10000
	}
	if c.Resilience.HealthIntervalSeconds == 0 {
		c.Resilience.HealthIntervalSeconds = 30
	}

	if c.Broadcast.MaxConnections == 0 {
		c.Broadcast.MaxConnections = 1000
	}
	if c.Broadcast.SendBufferSize == 0 {
		c.Broadcast.SendBufferSize = 256
	}
	if c.Broadcast.HeartbeatSeconds == 0 {
		c.Broadcast.HeartbeatSeconds = 30
	}
	if c.Broadcast.BatchFlushMs == 0 {
		c.Broadcast.BatchFlushMs = 100
	}
	if c.Broadcast.ThrottleCooldownMs == 0 {
		c.Broadcast.ThrottleCooldownMs = 1000
	}
	if c.Broadcast.InboundRatePerSec == 0 {
		c.Broadcast.InboundRatePerSec = 10
	}
	if c.Broadcast.InboundBurst == 0 {
		c.Broadcast.InboundBurst = 20
	}

	if c.Processor.SignificantChangeThreshold == 0 {
		c.Processor.SignificantChangeThreshold = 5
	}
	if c.Processor.EventBufferSize == 0 {
		c.Processor.EventBufferSize = 256
	}

	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = 30
	}
	if c.Network.RequestTimeout == 0 {
		c.Network.RequestTimeout = 10
	}
	if c.Network.ConcurrentRequests == 0 {
		c.Network.ConcurrentRequests = 5
	}
	if c.DataSource.CryptoIntervalSeconds == 0 {
		c.DataSource.CryptoIntervalSeconds = 30
	}
	if c.DataSource.StockIntervalSeconds == 0 {
		c.DataSource.StockIntervalSeconds = 60
	}
	if c.DataSource.ReconfigureIntervalSeconds == 0 {
		c.DataSource.ReconfigureIntervalSeconds = 300
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Storage configuration
	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	// Validate DataSource configuration
	if len(c.DataSource.Sources) == 0 {
		return fmt.Errorf("at least one data source must be configured")
	}
	for i, src := range c.DataSource.Sources {
		if src.Name == "" {
			return fmt.Errorf("source %d must have a name", i)
		}
		if src.Type != "crypto" && src.Type != "stock" {
			return fmt.Errorf("source '%s' has unknown type '%s'", src.Name, src.Type)
		}
		if len(src.Symbols) == 0 {
			return fmt.Errorf("source '%s' must have at least one symbol", src.Name)
		}
	}

	// Validate Rate limits
	for i, rl := range c.RateLimits {
		if rl.Name == "" {
			return fmt.Errorf("rate limit %d must have a name", i)
		}
		if rl.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate limit '%s' must allow at least one request per minute", rl.Name)
		}
	}

	// Validate Markets
	for name, m := range c.Markets {
		if m.AlwaysOpen {
			continue
		}
		if m.Timezone == "" {
			return fmt.Errorf("market '%s' must have a timezone", name)
		}
		if m.Open == "" || m.Close == "" {
			return fmt.Errorf("market '%s' must have open and close times", name)
		}
	}

	// Validate Processor configuration
	if c.Processor.SignificantChangeThreshold < 0 {
		return fmt.Errorf("significant change threshold cannot be negative")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
