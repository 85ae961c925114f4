package processor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"market-pipeline/src/cache"
	"market-pipeline/src/helpers"
	"market-pipeline/src/interfaces"
	"market-pipeline/src/logger"
	"market-pipeline/src/models"
)

// -----------------------------------------------------------------------------
// Data Processor
//
// For each raw record: validate (fail closed), diff against the last cached
// snapshot, compute derived metrics from persisted company state, write
// through to storage and cache, and emit events on a bounded channel. A
// validation failure aborts the record and leaves the previous snapshot
// untouched.
// -----------------------------------------------------------------------------

type DataProcessor struct {
	Config *models.MConfig
	DB     interfaces.IDatabase
	Cache  *cache.IntelligentCache
	Logger *logger.Logger

	// Optional notification fired alongside the validation failure counter.
	OnValidationFailure func()

	events chan models.MPipelineEvent

	eventsProcessed    atomic.Int64
	significantChanges atomic.Int64
	validationFailures atomic.Int64
	eventsDropped      atomic.Int64
}

// -----------------------------------------------------------------------------

func NewDataProcessor(cfg *models.MConfig, db interfaces.IDatabase, c *cache.IntelligentCache, log *logger.Logger) *DataProcessor {
	return &DataProcessor{
		Config: cfg,
		DB:     db,
		Cache:  c,
		Logger: log,
		events: make(chan models.MPipelineEvent, cfg.Processor.EventBufferSize),
	}
}

// -----------------------------------------------------------------------------

// Events is the bounded outbound channel consumed by the orchestrator's pump.
func (p *DataProcessor) Events() <-chan models.MPipelineEvent {
	return p.events
}

// -----------------------------------------------------------------------------

// SnapshotKey names the cache entry holding the last processed record for a
// symbol. It doubles as the broadcast channel name.
func SnapshotKey(assetClass, symbol string) string {
	return assetClass + ":" + symbol
}

// CompaniesKey names the cache entry listing every tracked company. Company
// lookups read through it, and the orchestrator keeps it warm.
const CompaniesKey = "companies"

const companiesTTL = 10 * time.Minute

// -----------------------------------------------------------------------------

// ProcessCryptoPrice runs the full pipeline for one crypto record.
func (p *DataProcessor) ProcessCryptoPrice(ctx context.Context, price models.MCryptoPrice) error {
	// 1. Validate (fail closed)
	result := validateCryptoPrice(price)
	for _, w := range result.warnings {
		p.Logger.Warning("Crypto validation: %s", w)
	}
	if !result.ok() {
		p.recordValidationFailure()
		return helpers.NewValidationError(
			fmt.Sprintf("invalid crypto record for '%s': %v", price.Symbol, result.errors), nil)
	}

	key := SnapshotKey("crypto", price.Symbol)

	// 2. Diff against the last snapshot
	threshold := p.Config.Processor.SignificantChangeThreshold
	var changes []models.MFieldChange
	if prev, ok := p.Cache.Get(key); ok {
		if old, ok := prev.(models.MCryptoPrice); ok {
			changes = detectChanges([]trackedField{
				{name: "price", oldValue: old.Price, newValue: price.Price, threshold: threshold},
				{name: "volume24h", oldValue: old.Volume24h, newValue: price.Volume24h, threshold: threshold * 2},
			})
		}
	}

	// 3. Derived metrics from company state
	var metrics *models.MDerivedMetrics
	company, err := p.companyByCryptoSymbol(price.Symbol)
	if err != nil {
		p.Logger.Error("Failed to load company for %s: %v", price.Symbol, err)
	} else if company != nil {
		stockPrice := p.lastStockPrice(company.Ticker)
		m := computeDerivedMetrics(*company, price.Price, stockPrice, price.Timestamp)
		metrics = &m
	}

	// 4. Persist
	if err := p.DB.UpsertCryptoPrice(price); err != nil {
		return helpers.NewDatabaseError(fmt.Sprintf("failed to save crypto price for '%s'", price.Symbol), err)
	}
	if metrics != nil {
		if err := p.DB.SaveDerivedMetrics(*metrics); err != nil {
			p.Logger.Error("Failed to save derived metrics for %s: %v", metrics.Ticker, err)
		}
	}

	// 5. New snapshot supersedes the one used for diffing
	p.Cache.Set(key, price)

	// 6. Emit
	p.emit(models.MPipelineEvent{
		Kind:       models.EventDataProcessed,
		AssetClass: "crypto",
		Symbol:     price.Symbol,
		Crypto:     &price,
		Metrics:    metrics,
		Changes:    changes,
		Timestamp:  time.Now().UnixMilli(),
	})
	if anySignificant(changes) {
		p.significantChanges.Add(1)
		p.emit(models.MPipelineEvent{
			Kind:       models.EventSignificantChange,
			AssetClass: "crypto",
			Symbol:     price.Symbol,
			Crypto:     &price,
			Metrics:    metrics,
			Changes:    changes,
			Timestamp:  time.Now().UnixMilli(),
		})
	}

	p.eventsProcessed.Add(1)
	return nil
}

// -----------------------------------------------------------------------------

// ProcessStockQuote runs the full pipeline for one stock record.
func (p *DataProcessor) ProcessStockQuote(ctx context.Context, quote models.MStockQuote) error {
	result := validateStockQuote(quote)
	for _, w := range result.warnings {
		p.Logger.Warning("Stock validation: %s", w)
	}
	if !result.ok() {
		p.recordValidationFailure()
		return helpers.NewValidationError(
			fmt.Sprintf("invalid stock record for '%s': %v", quote.Ticker, result.errors), nil)
	}

	key := SnapshotKey("stocks", quote.Ticker)

	threshold := p.Config.Processor.SignificantChangeThreshold
	var changes []models.MFieldChange
	if prev, ok := p.Cache.Get(key); ok {
		if old, ok := prev.(models.MStockQuote); ok {
			changes = detectChanges([]trackedField{
				{name: "price", oldValue: old.Price, newValue: quote.Price, threshold: threshold},
				{name: "volume24h", oldValue: old.Volume24h, newValue: quote.Volume24h, threshold: threshold * 2},
			})
		}
	}

	var metrics *models.MDerivedMetrics
	company, err := p.companyByTicker(quote.Ticker)
	if err != nil {
		p.Logger.Error("Failed to load company %s: %v", quote.Ticker, err)
	} else if company != nil && company.CryptoSymbol != "" {
		cryptoPrice := p.lastCryptoPrice(company.CryptoSymbol)
		if cryptoPrice > 0 {
			m := computeDerivedMetrics(*company, cryptoPrice, quote.Price, quote.Timestamp)
			metrics = &m
		}
	}

	if err := p.DB.UpsertStockQuote(quote); err != nil {
		return helpers.NewDatabaseError(fmt.Sprintf("failed to save stock quote for '%s'", quote.Ticker), err)
	}
	if metrics != nil {
		if err := p.DB.SaveDerivedMetrics(*metrics); err != nil {
			p.Logger.Error("Failed to save derived metrics for %s: %v", metrics.Ticker, err)
		}
	}

	p.Cache.Set(key, quote)

	p.emit(models.MPipelineEvent{
		Kind:       models.EventDataProcessed,
		AssetClass: "stocks",
		Symbol:     quote.Ticker,
		Stock:      &quote,
		Metrics:    metrics,
		Changes:    changes,
		Timestamp:  time.Now().UnixMilli(),
	})
	if anySignificant(changes) {
		p.significantChanges.Add(1)
		p.emit(models.MPipelineEvent{
			Kind:       models.EventSignificantChange,
			AssetClass: "stocks",
			Symbol:     quote.Ticker,
			Stock:      &quote,
			Metrics:    metrics,
			Changes:    changes,
			Timestamp:  time.Now().UnixMilli(),
		})
	}

	p.eventsProcessed.Add(1)
	return nil
}

// -----------------------------------------------------------------------------

// loadCompanies reads the full company list through the cache, producing it
// from storage on a miss. The warmed entry makes this a hit in steady state.
func (p *DataProcessor) loadCompanies() ([]models.MCompany, error) {
	v, err := p.Cache.GetOrSet(CompaniesKey, func() (interface{}, error) {
		return p.DB.ListCompanies()
	}, companiesTTL)
	if err != nil {
		return nil, err
	}
	companies, _ := v.([]models.MCompany)
	return companies, nil
}

func (p *DataProcessor) companyByCryptoSymbol(symbol string) (*models.MCompany, error) {
	companies, err := p.loadCompanies()
	if err != nil {
		return nil, err
	}
	for i := range companies {
		if companies[i].CryptoSymbol == symbol {
			c := companies[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (p *DataProcessor) companyByTicker(ticker string) (*models.MCompany, error) {
	companies, err := p.loadCompanies()
	if err != nil {
		return nil, err
	}
	for i := range companies {
		if companies[i].Ticker == ticker {
			c := companies[i]
			return &c, nil
		}
	}
	return nil, nil
}

// -----------------------------------------------------------------------------

func (p *DataProcessor) lastStockPrice(ticker string) float64 {
	if v, ok := p.Cache.Get(SnapshotKey("stocks", ticker)); ok {
		if q, ok := v.(models.MStockQuote); ok {
			return q.Price
		}
	}
	return 0
}

func (p *DataProcessor) lastCryptoPrice(symbol string) float64 {
	if v, ok := p.Cache.Get(SnapshotKey("crypto", symbol)); ok {
		if c, ok := v.(models.MCryptoPrice); ok {
			return c.Price
		}
	}
	return 0
}

// -----------------------------------------------------------------------------

// emit sends on the bounded event channel. A full channel drops the event
// rather than stalling ingestion; the drop is counted and logged.
func (p *DataProcessor) emit(event models.MPipelineEvent) {
	select {
	case p.events <- event:
	default:
		p.eventsDropped.Add(1)
		p.Logger.Warning("Event buffer full, dropped %s for %s", event.Kind, event.Symbol)
	}
}

// -----------------------------------------------------------------------------

func (p *DataProcessor) recordValidationFailure() {
	p.validationFailures.Add(1)
	if p.OnValidationFailure != nil {
		p.OnValidationFailure()
	}
}

// -----------------------------------------------------------------------------

// Stats reports processing counters for the metrics endpoint.
func (p *DataProcessor) Stats() (processed, significant, validationFailures, dropped int64) {
	return p.eventsProcessed.Load(), p.significantChanges.Load(),
		p.validationFailures.Load(), p.eventsDropped.Load()
}
