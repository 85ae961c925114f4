package models

// MCryptoPrice is the normalized crypto record supplied by providers.
type MCryptoPrice struct {
	Symbol           string  `json:"symbol"`
	Price            float64 `json:"price"`
	Change24h        float64 `json:"change24h"`
	Change24hPercent float64 `json:"change24hPercent"`
	Volume24h        float64 `json:"volume24h"`
	MarketCap        float64 `json:"marketCap,omitempty"`
	Timestamp        int64   `json:"timestamp"`
	FetchedAt        int64   `json:"fetched_at,omitempty"`
}

// MStockQuote is the normalized stock record supplied by providers.
type MStockQuote struct {
	Ticker    string  `json:"ticker"`
	Price     float64 `json:"price"`
	High24h   float64 `json:"high24h"`
	Low24h    float64 `json:"low24h"`
	Volume24h float64 `json:"volume24h"`
	Timestamp int64   `json:"timestamp"`
	FetchedAt int64   `json:"fetched_at,omitempty"`
}

// MCompany is the persisted company state the processor combines with
// incoming records to compute derived metrics.
type MCompany struct {
	Ticker            string  `json:"ticker"`
	Name              string  `json:"name"`
	CryptoSymbol      string  `json:"crypto_symbol"`
	CryptoHoldings    float64 `json:"crypto_holdings"`
	SharesOutstanding float64 `json:"shares_outstanding"`
	TotalDebt         float64 `json:"total_debt"`
	CostBasis         float64 `json:"cost_basis"`
}

// MDerivedMetrics holds the metrics computed per processed record.
type MDerivedMetrics struct {
	Ticker        string  `json:"ticker"`
	CryptoSymbol  string  `json:"crypto_symbol"`
	TreasuryValue float64 `json:"treasury_value"`
	NAVPerShare   float64 `json:"nav_per_share"`
	PremiumToNAV  float64 `json:"premium_to_nav"`
	CryptoYield   float64 `json:"crypto_yield"`
	Dilution      float64 `json:"dilution"`
	Timestamp     int64   `json:"timestamp"`
}
