package orchestrator

import (
	"context"
	"testing"
	"time"

	"market-pipeline/src/logger"
	"market-pipeline/src/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// In-memory database stand-in
// -----------------------------------------------------------------------------

type stubDB struct {
	companies []models.MCompany
}

func (s *stubDB) Initialize() error                                  { return nil }
func (s *stubDB) UpsertCryptoPrice(p models.MCryptoPrice) error      { return nil }
func (s *stubDB) UpsertStockQuote(q models.MStockQuote) error        { return nil }
func (s *stubDB) SaveDerivedMetrics(m models.MDerivedMetrics) error  { return nil }
func (s *stubDB) UpsertCompany(c models.MCompany) error              { return nil }
func (s *stubDB) GetCompany(ticker string) (*models.MCompany, error) { return nil, nil }
func (s *stubDB) GetCompanyByCryptoSymbol(symbol string) (*models.MCompany, error) {
	return nil, nil
}
func (s *stubDB) ListCompanies() ([]models.MCompany, error) { return s.companies, nil }
func (s *stubDB) CleanupOldData() error                     { return nil }
func (s *stubDB) Close() error                              { return nil }

// -----------------------------------------------------------------------------

func testOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	cfg := &models.MConfig{
		Name:     "test",
		Host:     "127.0.0.1",
		Port:     8080,
		LogLevel: "ERROR",
		DataSource: models.MDataSourceConfig{
			CryptoIntervalSeconds:      30,
			StockIntervalSeconds:       60,
			ReconfigureIntervalSeconds: 300,
			Sources: []models.MSourceConfig{
				{Name: "cg", Type: "crypto", Symbols: []string{"BTC"}},
				{Name: "st", Type: "stock", Symbols: []string{"MSTR"}},
			},
		},
		Processor: models.MProcessorConfig{
			SignificantChangeThreshold: 5.0,
			EventBufferSize:            16,
		},
		Broadcast: models.MBroadcastConfig{
			MaxConnections: 10,
			SendBufferSize: 4,
		},
	}
	o, err := NewOrchestrator(cfg, &stubDB{}, logger.NewLogger("ERROR", "test"))
	require.NoError(t, err)
	return o
}

// -----------------------------------------------------------------------------

func TestNewOrchestratorRegistersJobs(t *testing.T) {
	o := testOrchestrator(t)

	names := make([]string, 0)
	for _, job := range o.Scheduler.Jobs() {
		names = append(names, job.Name)
	}
	assert.ElementsMatch(t,
		[]string{"refresh:cg", "refresh:st", "reconfigure", "storage-cleanup"}, names)
}

func TestCacheMetricsWired(t *testing.T) {
	o := testOrchestrator(t)

	o.Cache.Set("k", 1)
	o.Cache.Get("k")
	o.Cache.Get("missing")

	assert.Equal(t, 1.0, testutil.ToFloat64(o.Metrics.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.Metrics.CacheMisses))
}

func TestValidationFailureMetricWired(t *testing.T) {
	o := testOrchestrator(t)

	bad := models.MCryptoPrice{Symbol: "BTC", Price: -1, Timestamp: time.Now().UnixMilli()}
	require.Error(t, o.Processor.ProcessCryptoPrice(context.Background(), bad))

	assert.Equal(t, 1.0, testutil.ToFloat64(o.Metrics.ValidationFailures))
}
