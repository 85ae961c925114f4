package models

import "time"

// MHealthCheckResult is the last observed outcome of one named check.
type MHealthCheckResult struct {
	Name      string        `json:"name"`
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency_ns"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// MMarketStatus is derived on demand, never stored.
type MMarketStatus struct {
	Market     string        `json:"market"`
	Open       bool          `json:"open"`
	Session    string        `json:"session"` // market / premarket / aftermarket / closed
	NextOpen   time.Time     `json:"next_open,omitempty"`
	TimeToOpen time.Duration `json:"time_to_open,omitempty"`
}

// MJobExecution records one run of a scheduled job.
type MJobExecution struct {
	Job        string    `json:"job"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Manual     bool      `json:"manual"`
}

// MJobStatus is the scheduler's view of one registered job.
type MJobStatus struct {
	Name     string          `json:"name"`
	Interval time.Duration   `json:"interval_ns"`
	Running  bool            `json:"running"`
	Enabled  bool            `json:"enabled"`
	History  []MJobExecution `json:"history,omitempty"`
}

// MCacheStats is a point-in-time snapshot of cache counters.
type MCacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Expired   int64 `json:"expired"`
	Size      int   `json:"size"`
	MaxSize   int   `json:"max_size"`
}

// MPipelineStatus aggregates component state for the operational API.
type MPipelineStatus struct {
	Running       bool                     `json:"running"`
	StartedAt     time.Time                `json:"started_at"`
	Healthy       bool                     `json:"healthy"`
	Checks        []MHealthCheckResult     `json:"checks"`
	BreakerStates map[string]string        `json:"breaker_states"`
	Jobs          []MJobStatus             `json:"jobs"`
	Markets       map[string]MMarketStatus `json:"markets"`
	Connections   int                      `json:"connections"`
}

// MPipelineMetrics aggregates counters for the operational API.
type MPipelineMetrics struct {
	Cache              MCacheStats      `json:"cache"`
	Connections        int              `json:"connections"`
	MessagesSent       int64            `json:"messages_sent"`
	BroadcastFailures  int64            `json:"broadcast_failures"`
	EventsProcessed    int64            `json:"events_processed"`
	SignificantChanges int64            `json:"significant_changes"`
	ValidationFailures int64            `json:"validation_failures"`
	JobExecutions      map[string]int64 `json:"job_executions"`
}
