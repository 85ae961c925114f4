package interfaces

import (
	"context"

	"market-pipeline/src/models"
)

// -----------------------------------------------------------------------------
// Data source contracts. Sources are pull-based: the job scheduler drives the
// polling cadence, the sources only know how to fetch one batch.
// -----------------------------------------------------------------------------

type ICryptoSource interface {
	Name() string
	Symbols() []string
	FetchPrices(ctx context.Context) ([]models.MCryptoPrice, error)
}

type IStockSource interface {
	Name() string
	Symbols() []string
	FetchQuotes(ctx context.Context) ([]models.MStockQuote, error)
}
