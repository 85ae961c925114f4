package models

// -----------------------------------------------------------------------------
// Pipeline Events
// -----------------------------------------------------------------------------

const (
	EventDataProcessed     = "dataProcessed"
	EventSignificantChange = "significantChange"
)

// MFieldChange describes one field's movement between two snapshots.
type MFieldChange struct {
	Field        string  `json:"field"`
	OldValue     float64 `json:"old_value"`
	NewValue     float64 `json:"new_value"`
	PercentDelta float64 `json:"percent_delta"`
	Significant  bool    `json:"significant"`
}

// MPipelineEvent is the tagged union the processor emits. Kind selects which
// payload pointer is set; AssetClass is "crypto" or "stocks".
type MPipelineEvent struct {
	Kind       string           `json:"kind"`
	AssetClass string           `json:"asset_class"`
	Symbol     string           `json:"symbol"`
	Crypto     *MCryptoPrice    `json:"crypto,omitempty"`
	Stock      *MStockQuote     `json:"stock,omitempty"`
	Metrics    *MDerivedMetrics `json:"metrics,omitempty"`
	Changes    []MFieldChange   `json:"changes,omitempty"`
	Timestamp  int64            `json:"timestamp"`
}
