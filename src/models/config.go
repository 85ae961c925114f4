package models

// MConfig Structure
type MConfig struct {
	Name       string                   `yaml:"name"`
	Host       string                   `yaml:"host"`
	Port       int                      `yaml:"port"`
	LogLevel   string                   `yaml:"log_level"`
	Storage    MStorageConfig           `yaml:"storage"`
	Network    MNetworkConfig           `yaml:"network"`
	DataSource MDataSourceConfig        `yaml:"data_source"`
	Cache      MCacheConfig             `yaml:"cache"`
	RateLimits []MRateLimitConfig       `yaml:"rate_limits"`
	Resilience MResilienceConfig        `yaml:"resilience"`
	Markets    map[string]MMarketConfig `yaml:"markets"`
	Broadcast  MBroadcastConfig         `yaml:"broadcast"`
	Processor  MProcessorConfig         `yaml:"processor"`
	Companies  []MCompanyConfig         `yaml:"companies"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	RetentionDays      int    `yaml:"retention_days"`
}

type MNetworkConfig struct {
	RequestTimeout     int    `yaml:"timeout"`
	ConcurrentRequests int    `yaml:"concurrent_requests"`
	UserAgent          string `yaml:"user_agent"`
}

type MDataSourceConfig struct {
	CryptoIntervalSeconds      int             `yaml:"crypto_interval_seconds"`
	StockIntervalSeconds       int             `yaml:"stock_interval_seconds"`
	ReconfigureIntervalSeconds int             `yaml:"reconfigure_interval_seconds"`
	Sources                    []MSourceConfig `yaml:"sources"`
}

type MSourceConfig struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"` // "crypto" or "stock"
	URL     string   `yaml:"url"`
	Symbols []string `yaml:"symbols"`
	Market  string   `yaml:"market"`
	APIKey  string   `yaml:"api_key"` // Optional
}

type MCacheConfig struct {
	MaxEntries             int `yaml:"max_entries"`
	DefaultTTLSeconds      int `yaml:"default_ttl_seconds"`
	CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds"`
}

type MRateLimitConfig struct {
	Name              string `yaml:"name"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type MResilienceConfig struct {
	Breaker               MBreakerConfig  `yaml:"circuit_breaker"`
	Retry                 MRetryConfig    `yaml:"retry"`
	Bulkhead              MBulkheadConfig `yaml:"bulkhead"`
	HealthIntervalSeconds int             `yaml:"health_interval_seconds"`
}

type MBreakerConfig struct {
	FailureRateThreshold    float64 `yaml:"failure_rate_threshold"`
	MonitoringWindowSeconds int     `yaml:"monitoring_window_seconds"`
	ResetTimeoutSeconds     int     `yaml:"reset_timeout_seconds"`
	MinimumCalls            int     `yaml:"minimum_calls"`
}

type MRetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	BaseDelayMs       int     `yaml:"base_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	Jitter            bool    `yaml:"jitter"`
}

type MBulkheadConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
	MaxQueueSize  int `yaml:"max_queue_size"`
	TimeoutMs     int `yaml:"timeout_ms"`
}

type MMarketConfig struct {
	Timezone    string              `yaml:"timezone"`
	Open        string              `yaml:"open"`  // "09:30"
	Close       string              `yaml:"close"` // "16:00"
	TradingDays []string            `yaml:"trading_days"`
	Holidays    []string            `yaml:"holidays"` // "2026-01-01"
	MIC         string              `yaml:"mic"`      // optional exchange calendar code
	AlwaysOpen  bool                `yaml:"always_open"`
	Multipliers MSessionMultipliers `yaml:"multipliers"`
}

type MSessionMultipliers struct {
	Market      float64 `yaml:"market"`
	PreMarket   float64 `yaml:"premarket"`
	AfterMarket float64 `yaml:"aftermarket"`
	Closed      float64 `yaml:"closed"`
	Weekend     float64 `yaml:"weekend"`
	Holiday     float64 `yaml:"holiday"`
}

type MBroadcastConfig struct {
	MaxConnections     int `yaml:"max_connections"`
	SendBufferSize     int `yaml:"send_buffer_size"`
	HeartbeatSeconds   int `yaml:"heartbeat_seconds"`
	BatchFlushMs       int `yaml:"batch_flush_ms"`
	ThrottleCooldownMs int `yaml:"throttle_cooldown_ms"`
	InboundRatePerSec  int `yaml:"inbound_rate_per_sec"`
	InboundBurst       int `yaml:"inbound_burst"`
}

type MProcessorConfig struct {
	SignificantChangeThreshold float64 `yaml:"significant_change_threshold"`
	EventBufferSize            int     `yaml:"event_buffer_size"`
}

type MCompanyConfig struct {
	Ticker            string  `yaml:"ticker"`
	Name              string  `yaml:"name"`
	CryptoSymbol      string  `yaml:"crypto_symbol"`
	CryptoHoldings    float64 `yaml:"crypto_holdings"`
	SharesOutstanding float64 `yaml:"shares_outstanding"`
	TotalDebt         float64 `yaml:"total_debt"`
	CostBasis         float64 `yaml:"cost_basis"`
}
