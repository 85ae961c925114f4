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
// HTTPCryptoSource pulls normalized crypto records from a provider endpoint.
// One request per symbol, fanned out under a concurrency semaphore.
// -----------------------------------------------------------------------------

type HTTPCryptoSource struct {
	Config       *models.MConfig
	SourceConfig models.MSourceConfig
	Network      interfaces.INetworkManager
	Logger       *logger.Logger
}

// -----------------------------------------------------------------------------

func NewHTTPCryptoSource(cfg *models.MConfig, sourceCfg models.MSourceConfig, netMgr interfaces.INetworkManager, log *logger.Logger) *HTTPCryptoSource {
	return &HTTPCryptoSource{
		Config:       cfg,
		SourceConfig: sourceCfg,
		Network:      netMgr,
		Logger:       log.Named("CryptoSource-" + sourceCfg.Name),
	}
}

// -----------------------------------------------------------------------------

func (s *HTTPCryptoSource) Name() string { return s.SourceConfig.Name }

func (s *HTTPCryptoSource) Symbols() []string { return s.SourceConfig.Symbols }

// -----------------------------------------------------------------------------

// FetchPrices fetches the latest record for every configured symbol. Partial
// results are returned when some symbols fail; an error is returned only when
// every symbol failed.
func (s *HTTPCryptoSource) FetchPrices(ctx context.Context) ([]models.MCryptoPrice, error) {
	symbols := s.SourceConfig.Symbols
	if len(symbols) == 0 {
		return nil, nil
	}

	var (
		results  []models.MCryptoPrice
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures int
	)

	sem := make(chan struct{}, s.Config.Network.ConcurrentRequests)

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			price, err := s.fetchSymbol(ctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				s.Logger.Warning("Fetch failed for %s: %v", symbol, err)
				return
			}
			results = append(results, *price)
		}(symbol)
	}
	wg.Wait()

	if failures == len(symbols) {
		return nil, helpers.NewDataSourceError(
			fmt.Sprintf("source '%s': all %d symbols failed", s.SourceConfig.Name, failures), nil)
	}
	return results, nil
}

// -----------------------------------------------------------------------------

func (s *HTTPCryptoSource) fetchSymbol(ctx context.Context, symbol string) (*models.MCryptoPrice, error) {
	params := map[string]string{"symbol": symbol}
	if s.SourceConfig.APIKey != "" {
		params["api_key"] = s.SourceConfig.APIKey
	}

	body, err := s.Network.Get(ctx, s.SourceConfig.URL, params)
	if err != nil {
		return nil, err
	}

	var price models.MCryptoPrice
	if err := json.Unmarshal(body, &price); err != nil {
		return nil, helpers.NewDataSourceError("failed to decode crypto record", err)
	}
	if price.Symbol == "" {
		price.Symbol = symbol
	}
	price.FetchedAt = time.Now().Unix()
	return &price, nil
}
