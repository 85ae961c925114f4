package processor

import (
	"context"
	"testing"
	"time"

	"market-pipeline/src/cache"
	"market-pipeline/src/helpers"
	"market-pipeline/src/logger"
	"market-pipeline/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// In-memory database stand-in
// -----------------------------------------------------------------------------

type fakeDB struct {
	companies    map[string]models.MCompany
	cryptoSaves  []models.MCryptoPrice
	stockSaves   []models.MStockQuote
	metricsSaves []models.MDerivedMetrics
}

func newFakeDB() *fakeDB {
	return &fakeDB{companies: make(map[string]models.MCompany)}
}

func (f *fakeDB) Initialize() error { return nil }
func (f *fakeDB) UpsertCryptoPrice(p models.MCryptoPrice) error {
	f.cryptoSaves = append(f.cryptoSaves, p)
	return nil
}
func (f *fakeDB) UpsertStockQuote(q models.MStockQuote) error {
	f.stockSaves = append(f.stockSaves, q)
	return nil
}
func (f *fakeDB) SaveDerivedMetrics(m models.MDerivedMetrics) error {
	f.metricsSaves = append(f.metricsSaves, m)
	return nil
}
func (f *fakeDB) UpsertCompany(c models.MCompany) error {
	f.companies[c.Ticker] = c
	return nil
}
func (f *fakeDB) GetCompany(ticker string) (*models.MCompany, error) {
	if c, ok := f.companies[ticker]; ok {
		return &c, nil
	}
	return nil, nil
}
func (f *fakeDB) GetCompanyByCryptoSymbol(symbol string) (*models.MCompany, error) {
	for _, c := range f.companies {
		if c.CryptoSymbol == symbol {
			return &c, nil
		}
	}
	return nil, nil
}
func (f *fakeDB) ListCompanies() ([]models.MCompany, error) {
	out := make([]models.MCompany, 0, len(f.companies))
	for _, c := range f.companies {
		out = append(out, c)
	}
	return out, nil
}
func (f *fakeDB) CleanupOldData() error { return nil }
func (f *fakeDB) Close() error          { return nil }

// -----------------------------------------------------------------------------

func testProcessor(t *testing.T) (*DataProcessor, *fakeDB) {
	t.Helper()
	cfg := &models.MConfig{
		Processor: models.MProcessorConfig{
			SignificantChangeThreshold: 5.0,
			EventBufferSize:            64,
		},
	}
	db := newFakeDB()
	log := logger.NewLogger("ERROR", "test")
	c := cache.NewIntelligentCache(100, 5*time.Minute, time.Minute, log)
	return NewDataProcessor(cfg, db, c, log), db
}

func drainEvents(p *DataProcessor) []models.MPipelineEvent {
	var out []models.MPipelineEvent
	for {
		select {
		case e := <-p.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func btc(price, volume float64) models.MCryptoPrice {
	return models.MCryptoPrice{
		Symbol:    "BTC",
		Price:     price,
		Volume24h: volume,
		Timestamp: time.Now().UnixMilli(),
	}
}

// -----------------------------------------------------------------------------

func TestProcessCryptoFirstRecordHasNoChanges(t *testing.T) {
	p, _ := testProcessor(t)

	require.NoError(t, p.ProcessCryptoPrice(context.Background(), btc(45000, 1e9)))

	events := drainEvents(p)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventDataProcessed, events[0].Kind)
	assert.Empty(t, events[0].Changes)
}

func TestProcessCryptoSignificantMove(t *testing.T) {
	p, _ := testProcessor(t)
	ctx := context.Background()

	require.NoError(t, p.ProcessCryptoPrice(ctx, btc(45000, 1e9)))
	drainEvents(p)

	// 6.7% move crosses the 5% threshold
	require.NoError(t, p.ProcessCryptoPrice(ctx, btc(48000, 1e9)))

	events := drainEvents(p)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventDataProcessed, events[0].Kind)
	assert.Equal(t, models.EventSignificantChange, events[1].Kind)

	require.NotEmpty(t, events[1].Changes)
	priceChange := events[1].Changes[0]
	assert.Equal(t, "price", priceChange.Field)
	assert.True(t, priceChange.Significant)
	assert.InDelta(t, 6.67, priceChange.PercentDelta, 0.01)
}

func TestProcessCryptoSmallMove(t *testing.T) {
	p, _ := testProcessor(t)
	ctx := context.Background()

	require.NoError(t, p.ProcessCryptoPrice(ctx, btc(45000, 1e9)))
	drainEvents(p)

	// 1% move stays below the threshold
	require.NoError(t, p.ProcessCryptoPrice(ctx, btc(45450, 1e9)))

	events := drainEvents(p)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventDataProcessed, events[0].Kind)
	require.NotEmpty(t, events[0].Changes)
	assert.False(t, events[0].Changes[0].Significant)
}

func TestProcessCryptoValidationFailClosed(t *testing.T) {
	p, db := testProcessor(t)
	ctx := context.Background()

	require.NoError(t, p.ProcessCryptoPrice(ctx, btc(45000, 1e9)))
	drainEvents(p)

	bad := btc(-1, 1e9)
	err := p.ProcessCryptoPrice(ctx, bad)
	require.Error(t, err)
	var vErr *helpers.ValidationError
	assert.ErrorAs(t, err, &vErr)

	// Nothing persisted, no events, snapshot untouched
	assert.Len(t, db.cryptoSaves, 1)
	assert.Empty(t, drainEvents(p))

	// The next good record diffs against the pre-failure snapshot
	require.NoError(t, p.ProcessCryptoPrice(ctx, btc(45450, 1e9)))
	events := drainEvents(p)
	require.Len(t, events, 1)
	require.NotEmpty(t, events[0].Changes)
	assert.InDelta(t, 1.0, events[0].Changes[0].PercentDelta, 0.01)

	_, _, failures, _ := p.Stats()
	assert.Equal(t, int64(1), failures)
}

func TestProcessCryptoComputesDerivedMetrics(t *testing.T) {
	p, db := testProcessor(t)
	ctx := context.Background()

	db.UpsertCompany(models.MCompany{
		Ticker:            "MSTR",
		CryptoSymbol:      "BTC",
		CryptoHoldings:    1000,
		SharesOutstanding: 10000,
		TotalDebt:         1_000_000,
		CostBasis:         30000,
	})

	require.NoError(t, p.ProcessCryptoPrice(ctx, btc(45000, 1e9)))

	events := drainEvents(p)
	require.Len(t, events, 1)
	m := events[0].Metrics
	require.NotNil(t, m)
	assert.Equal(t, "MSTR", m.Ticker)
	assert.InDelta(t, 45_000_000.0, m.TreasuryValue, 0.001)
	assert.InDelta(t, 4400.0, m.NAVPerShare, 0.001)
	assert.InDelta(t, 50.0, m.CryptoYield, 0.001)

	require.Len(t, db.metricsSaves, 1)
}

func TestCompanyLookupReadsWarmedCache(t *testing.T) {
	p, db := testProcessor(t)

	// The cached list is authoritative over storage while it is live
	db.UpsertCompany(models.MCompany{Ticker: "MSTR", CryptoSymbol: "BTC", CryptoHoldings: 1000})
	p.Cache.SetTTL(CompaniesKey, []models.MCompany{
		{Ticker: "MSTR", CryptoSymbol: "BTC", CryptoHoldings: 2000},
	}, time.Minute)

	require.NoError(t, p.ProcessCryptoPrice(context.Background(), btc(45000, 1e9)))

	events := drainEvents(p)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Metrics)
	assert.InDelta(t, 90_000_000.0, events[0].Metrics.TreasuryValue, 0.001)
}

func TestCompanyLookupMissPopulatesCache(t *testing.T) {
	p, db := testProcessor(t)
	db.UpsertCompany(models.MCompany{Ticker: "MSTR", CryptoSymbol: "BTC", CryptoHoldings: 1000})

	require.NoError(t, p.ProcessCryptoPrice(context.Background(), btc(45000, 1e9)))

	v, ok := p.Cache.Get(CompaniesKey)
	require.True(t, ok)
	companies := v.([]models.MCompany)
	require.Len(t, companies, 1)
	assert.Equal(t, "MSTR", companies[0].Ticker)
}

func TestValidationFailureNotification(t *testing.T) {
	p, _ := testProcessor(t)
	fired := 0
	p.OnValidationFailure = func() { fired++ }

	require.Error(t, p.ProcessCryptoPrice(context.Background(), btc(-1, 1e9)))
	assert.Equal(t, 1, fired)
}

func TestProcessStockQuote(t *testing.T) {
	p, db := testProcessor(t)
	ctx := context.Background()

	db.UpsertCompany(models.MCompany{
		Ticker:         "MSTR",
		CryptoSymbol:   "BTC",
		CryptoHoldings: 1000,
	})

	// Counterpart crypto snapshot enables derived metrics for the stock record
	require.NoError(t, p.ProcessCryptoPrice(ctx, btc(45000, 1e9)))
	drainEvents(p)

	quote := models.MStockQuote{
		Ticker:    "MSTR",
		Price:     350,
		High24h:   360,
		Low24h:    340,
		Volume24h: 5e6,
		Timestamp: time.Now().UnixMilli(),
	}
	require.NoError(t, p.ProcessStockQuote(ctx, quote))

	events := drainEvents(p)
	require.Len(t, events, 1)
	assert.Equal(t, "stocks", events[0].AssetClass)
	require.NotNil(t, events[0].Metrics)
	assert.InDelta(t, 45_000_000.0, events[0].Metrics.TreasuryValue, 0.001)
	assert.Len(t, db.stockSaves, 1)
}

func TestProcessStockHighBelowLowRejected(t *testing.T) {
	p, _ := testProcessor(t)

	quote := models.MStockQuote{
		Ticker:    "MSTR",
		Price:     350,
		High24h:   340,
		Low24h:    360,
		Timestamp: time.Now().UnixMilli(),
	}
	err := p.ProcessStockQuote(context.Background(), quote)
	assert.Error(t, err)
	assert.Empty(t, drainEvents(p))
}

func TestSnapshotKey(t *testing.T) {
	assert.Equal(t, "crypto:BTC", SnapshotKey("crypto", "BTC"))
	assert.Equal(t, "stocks:MSTR", SnapshotKey("stocks", "MSTR"))
}
