package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"market-pipeline/src/helpers"
	"market-pipeline/src/interfaces"
	"market-pipeline/src/logger"
	"market-pipeline/src/models"
)

// -----------------------------------------------------------------------------
// HTTPStockSource pulls normalized stock quotes from a provider endpoint.
// -----------------------------------------------------------------------------

type HTTPStockSource struct {
	Config       *models.MConfig
	SourceConfig models.MSourceConfig
	Network      interfaces.INetworkManager
	Logger       *logger.Logger
}

// -----------------------------------------------------------------------------

func NewHTTPStockSource(cfg *models.MConfig, sourceCfg models.MSourceConfig, netMgr interfaces.INetworkManager, log *logger.Logger) *HTTPStockSource {
	return &HTTPStockSource{
		Config:       cfg,
		SourceConfig: sourceCfg,
		Network:      netMgr,
		Logger:       log.Named("StockSource-" + sourceCfg.Name),
	}
}

// -----------------------------------------------------------------------------

func (s *HTTPStockSource) Name() string { return s.SourceConfig.Name }

func (s *HTTPStockSource) Symbols() []string { return s.SourceConfig.Symbols }

// -----------------------------------------------------------------------------

// FetchQuotes fetches the latest quote for every configured ticker.
func (s *HTTPStockSource) FetchQuotes(ctx context.Context) ([]models.MStockQuote, error) {
	symbols := s.SourceConfig.Symbols
	if len(symbols) == 0 {
		return nil, nil
	}

	var (
		results  []models.MStockQuote
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures int
	)

	sem := make(chan struct{}, s.Config.Network.ConcurrentRequests)

	for _, ticker := range symbols {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			quote, err := s.fetchTicker(ctx, ticker)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				s.Logger.Warning("Fetch failed for %s: %v", ticker, err)
				return
			}
			results = append(results, *quote)
		}(ticker)
	}
	wg.Wait()

	if failures == len(symbols) {
		return nil, helpers.NewDataSourceError(
			fmt.Sprintf("source '%s': all %d tickers failed", s.SourceConfig.Name, failures), nil)
	}
	return results, nil
}

// -----------------------------------------------------------------------------

func (s *HTTPStockSource) fetchTicker(ctx context.Context, ticker string) (*models.MStockQuote, error) {
	params := map[string]string{"ticker": ticker}
	if s.SourceConfig.APIKey != "" {
		params["api_key"] = s.SourceConfig.APIKey
	}

	body, err := s.Network.Get(ctx, s.SourceConfig.URL, params)
	if err != nil {
		return nil, err
	}

	var quote models.MStockQuote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, helpers.NewDataSourceError("failed to decode stock record", err)
	}
	if quote.Ticker == "" {
		quote.Ticker = ticker
	}
	quote.FetchedAt = time.Now().Unix()
	return &quote, nil
}
