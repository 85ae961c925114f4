package processor

import (
	"fmt"
	"math"

	"market-pipeline/src/models"
)

// -----------------------------------------------------------------------------
// Record validation. Errors fail the record closed; warnings are logged by the
// processor and never block.
// -----------------------------------------------------------------------------

type validationResult struct {
	errors   []string
	warnings []string
}

func (r validationResult) ok() bool { return len(r.errors) == 0 }

// -----------------------------------------------------------------------------

// implausibleSwingPercent flags 24h moves that are probably provider glitches.
const implausibleSwingPercent = 50.0

func validateCryptoPrice(p models.MCryptoPrice) validationResult {
	var r validationResult

	if p.Symbol == "" {
		r.errors = append(r.errors, "symbol is empty")
	}
	if p.Price <= 0 {
		r.errors = append(r.errors, fmt.Sprintf("price must be positive, got %v", p.Price))
	}
	if p.Timestamp <= 0 {
		r.errors = append(r.errors, "timestamp is missing")
	}
	if p.Volume24h < 0 {
		r.errors = append(r.errors, fmt.Sprintf("volume cannot be negative, got %v", p.Volume24h))
	}

	if math.Abs(p.Change24hPercent) > implausibleSwingPercent {
		r.warnings = append(r.warnings,
			fmt.Sprintf("implausible 24h swing of %.2f%% for %s", p.Change24hPercent, p.Symbol))
	}

	return r
}

// -----------------------------------------------------------------------------

func validateStockQuote(q models.MStockQuote) validationResult {
	var r validationResult

	if q.Ticker == "" {
		r.errors = append(r.errors, "ticker is empty")
	}
	if q.Price <= 0 {
		r.errors = append(r.errors, fmt.Sprintf("price must be positive, got %v", q.Price))
	}
	if q.Timestamp <= 0 {
		r.errors = append(r.errors, "timestamp is missing")
	}
	if q.Volume24h < 0 {
		r.errors = append(r.errors, fmt.Sprintf("volume cannot be negative, got %v", q.Volume24h))
	}
	if q.High24h > 0 && q.Low24h > 0 && q.High24h < q.Low24h {
		r.errors = append(r.errors, fmt.Sprintf("high %v below low %v", q.High24h, q.Low24h))
	}

	if q.Low24h > 0 && (q.High24h-q.Low24h)/q.Low24h*100 > implausibleSwingPercent {
		r.warnings = append(r.warnings,
			fmt.Sprintf("implausible 24h range for %s (low %v, high %v)", q.Ticker, q.Low24h, q.High24h))
	}

	return r
}
