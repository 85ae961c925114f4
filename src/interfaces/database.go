package interfaces

import "market-pipeline/src/models"

// -----------------------------------------------------------------------------
// IDatabase defines the contract for storage operations.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// UpsertCryptoPrice writes the latest normalized crypto record.
	UpsertCryptoPrice(price models.MCryptoPrice) error

	// UpsertStockQuote writes the latest normalized stock record.
	UpsertStockQuote(quote models.MStockQuote) error

	// SaveDerivedMetrics appends a computed metrics row.
	SaveDerivedMetrics(metrics models.MDerivedMetrics) error

	// -----------------------------------------------------------------------------

	// UpsertCompany writes company treasury state.
	UpsertCompany(company models.MCompany) error

	// GetCompany reads company state by ticker.
	GetCompany(ticker string) (*models.MCompany, error)

	// GetCompanyByCryptoSymbol reads company state by its treasury asset.
	GetCompanyByCryptoSymbol(symbol string) (*models.MCompany, error)

	// ListCompanies returns all company rows.
	ListCompanies() ([]models.MCompany, error)

	// -----------------------------------------------------------------------------

	// CleanupOldData removes rows older than the retention policy.
	CleanupOldData() error

	// Close the database connection
	Close() error
}
