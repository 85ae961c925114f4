package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"market-pipeline/src/cache"
	"market-pipeline/src/datasource"
	"market-pipeline/src/helpers"
	"market-pipeline/src/interfaces"
	"market-pipeline/src/logger"
	"market-pipeline/src/markethours"
	"market-pipeline/src/metrics"
	"market-pipeline/src/models"
	"market-pipeline/src/network"
	"market-pipeline/src/processor"
	"market-pipeline/src/ratelimit"
	"market-pipeline/src/resilience"
	"market-pipeline/src/scheduler"
	"market-pipeline/src/server"
)

// -----------------------------------------------------------------------------
// Orchestrator
//
// Owns every component, wires them together, and runs the refresh jobs that
// pull data through the resilience stack into the processor. Components never
// reach around it to talk to each other.
// -----------------------------------------------------------------------------

type Orchestrator struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	DB          interfaces.IDatabase
	Cache       *cache.IntelligentCache
	RateLimiter *ratelimit.RateLimiter
	Markets     *markethours.Service
	Processor   *processor.DataProcessor
	Scheduler   *scheduler.JobScheduler
	Health      *resilience.HealthChecker
	Server      *server.BroadcastServer

	breakers map[string]*resilience.CircuitBreaker
	retry    resilience.RetryPolicy
	bulkhead *resilience.Bulkhead

	cryptoSources map[string]sourceBinding[interfaces.ICryptoSource]
	stockSources  map[string]sourceBinding[interfaces.IStockSource]

	running   bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
}

type sourceBinding[T any] struct {
	source T
	config models.MSourceConfig
}

// -----------------------------------------------------------------------------

func NewOrchestrator(cfg *models.MConfig, db interfaces.IDatabase, log *logger.Logger) (*Orchestrator, error) {
	marketSvc, err := markethours.NewService(cfg.Markets, log.Named("markets"))
	if err != nil {
		return nil, err
	}

	limits := make(map[string]int, len(cfg.RateLimits))
	for _, rl := range cfg.RateLimits {
		limits[rl.Name] = rl.RequestsPerMinute
	}

	m := metrics.New("market_pipeline")

	dataCache := cache.NewIntelligentCache(
		cfg.Cache.MaxEntries,
		time.Duration(cfg.Cache.DefaultTTLSeconds)*time.Second,
		time.Duration(cfg.Cache.CleanupIntervalSeconds)*time.Second,
		log.Named("cache"),
	)

	o := &Orchestrator{
		Config:      cfg,
		Logger:      log,
		Metrics:     m,
		DB:          db,
		Cache:       dataCache,
		RateLimiter: ratelimit.NewRateLimiter(limits, log.Named("ratelimit")),
		Markets:     marketSvc,
		Scheduler:   scheduler.NewJobScheduler(log.Named("scheduler")),
		Health: resilience.NewHealthChecker(
			time.Duration(cfg.Resilience.HealthIntervalSeconds)*time.Second, log.Named("health")),
		breakers:      make(map[string]*resilience.CircuitBreaker),
		cryptoSources: make(map[string]sourceBinding[interfaces.ICryptoSource]),
		stockSources:  make(map[string]sourceBinding[interfaces.IStockSource]),
	}

	o.Processor = processor.NewDataProcessor(cfg, db, dataCache, log.Named("processor"))
	o.Server = server.NewBroadcastServer(cfg, log.Named("server"), m)

	dataCache.OnHit = m.CacheHits.Inc
	dataCache.OnMiss = m.CacheMisses.Inc
	o.Processor.OnValidationFailure = m.ValidationFailures.Inc

	o.retry = resilience.RetryPolicy{
		MaxAttempts:       cfg.Resilience.Retry.MaxAttempts,
		BaseDelay:         time.Duration(cfg.Resilience.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:          time.Duration(cfg.Resilience.Retry.MaxDelayMs) * time.Millisecond,
		BackoffMultiplier: cfg.Resilience.Retry.BackoffMultiplier,
		Jitter:            cfg.Resilience.Retry.Jitter,
		// Rejections from the resilience layer itself are not worth retrying
		RetryCondition: func(err error) bool { return !helpers.IsRejection(err) },
	}
	o.bulkhead = resilience.NewBulkhead("fetch", resilience.BulkheadConfig{
		MaxConcurrent: cfg.Resilience.Bulkhead.MaxConcurrent,
		MaxQueueSize:  cfg.Resilience.Bulkhead.MaxQueueSize,
		Timeout:       time.Duration(cfg.Resilience.Bulkhead.TimeoutMs) * time.Millisecond,
	}, log.Named("bulkhead"))

	netMgr := network.NewNetworkManager(cfg, log.Named("network"))
	o.buildSources(netMgr)
	o.registerJobs()
	o.registerHealthChecks()
	o.registerWarming()
	o.wireServer()

	return o, nil
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) buildSources(netMgr interfaces.INetworkManager) {
	for _, src := range o.Config.DataSource.Sources {
		breaker := resilience.NewCircuitBreaker(src.Name, resilience.CircuitBreakerConfig{
			FailureRateThreshold: o.Config.Resilience.Breaker.FailureRateThreshold,
			MonitoringWindow:     time.Duration(o.Config.Resilience.Breaker.MonitoringWindowSeconds) * time.Second,
			ResetTimeout:         time.Duration(o.Config.Resilience.Breaker.ResetTimeoutSeconds) * time.Second,
			MinimumCalls:         o.Config.Resilience.Breaker.MinimumCalls,
			ExpectedErrors: func(err error) bool {
				return errors.Is(err, context.Canceled)
			},
		}, o.Logger.Named("breaker"))
		breaker.OnStateChange = o.onBreakerStateChange
		o.breakers[src.Name] = breaker

		switch src.Type {
		case "crypto":
			o.cryptoSources[src.Name] = sourceBinding[interfaces.ICryptoSource]{
				source: datasource.NewHTTPCryptoSource(o.Config, src, netMgr, o.Logger.Named("source")),
				config: src,
			}
		case "stock":
			o.stockSources[src.Name] = sourceBinding[interfaces.IStockSource]{
				source: datasource.NewHTTPStockSource(o.Config, src, netMgr, o.Logger.Named("source")),
				config: src,
			}
		default:
			o.Logger.Warning("Unknown source type '%s' for '%s', skipping", src.Type, src.Name)
		}
	}
}

// -----------------------------------------------------------------------------
// Jobs
// -----------------------------------------------------------------------------

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

func refreshJobName(sourceName string) string { return "refresh:" + sourceName }

func (o *Orchestrator) registerJobs() {
	cryptoBase := time.Duration(o.Config.DataSource.CryptoIntervalSeconds) * time.Second
	stockBase := time.Duration(o.Config.DataSource.StockIntervalSeconds) * time.Second

	for name, binding := range o.cryptoSources {
		src := binding
		o.registerJob(funcJob{
			name: refreshJobName(name),
			fn:   func(ctx context.Context) error { return o.refreshCrypto(ctx, src) },
		}, o.adaptiveInterval(cryptoBase, src.config.Market))
	}
	for name, binding := range o.stockSources {
		src := binding
		o.registerJob(funcJob{
			name: refreshJobName(name),
			fn:   func(ctx context.Context) error { return o.refreshStock(ctx, src) },
		}, o.adaptiveInterval(stockBase, src.config.Market))
	}

	o.registerJob(funcJob{
		name: "reconfigure",
		fn:   o.reconfigureIntervals,
	}, time.Duration(o.Config.DataSource.ReconfigureIntervalSeconds)*time.Second)

	o.registerJob(funcJob{
		name: "storage-cleanup",
		fn: func(ctx context.Context) error {
			return o.DB.CleanupOldData()
		},
	}, 24*time.Hour)
}

func (o *Orchestrator) registerJob(job scheduler.Job, interval time.Duration) {
	if err := o.Scheduler.Register(job, interval); err != nil {
		o.Logger.Error("Job registration failed: %v", err)
	}
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) adaptiveInterval(base time.Duration, marketName string) time.Duration {
	if marketName == "" {
		return base
	}
	return o.Markets.CalculateAdaptiveInterval(base, marketName, time.Now())
}

// reconfigureIntervals recomputes each refresh job's cadence from the current
// market session.
func (o *Orchestrator) reconfigureIntervals(ctx context.Context) error {
	cryptoBase := time.Duration(o.Config.DataSource.CryptoIntervalSeconds) * time.Second
	stockBase := time.Duration(o.Config.DataSource.StockIntervalSeconds) * time.Second

	for name, binding := range o.cryptoSources {
		o.Scheduler.UpdateJobInterval(refreshJobName(name), o.adaptiveInterval(cryptoBase, binding.config.Market))
	}
	for name, binding := range o.stockSources {
		o.Scheduler.UpdateJobInterval(refreshJobName(name), o.adaptiveInterval(stockBase, binding.config.Market))
	}
	return nil
}

// -----------------------------------------------------------------------------
// Refresh pipeline
//
// rate limit -> bulkhead -> retry -> circuit breaker -> fetch. The breaker
// sits innermost so every attempt records an outcome; rejections short the
// retry loop through RetryCondition.
// -----------------------------------------------------------------------------

func (o *Orchestrator) refreshCrypto(ctx context.Context, binding sourceBinding[interfaces.ICryptoSource]) error {
	name := binding.source.Name()
	var prices []models.MCryptoPrice

	err := o.guardedFetch(ctx, name, func(ctx context.Context) error {
		fetched, err := binding.source.FetchPrices(ctx)
		if err != nil {
			return err
		}
		prices = fetched
		return nil
	})
	if err != nil {
		return err
	}

	for _, price := range prices {
		if err := o.Processor.ProcessCryptoPrice(ctx, price); err != nil {
			o.Logger.Warning("Processing failed for %s: %v", price.Symbol, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) refreshStock(ctx context.Context, binding sourceBinding[interfaces.IStockSource]) error {
	name := binding.source.Name()
	var quotes []models.MStockQuote

	err := o.guardedFetch(ctx, name, func(ctx context.Context) error {
		fetched, err := binding.source.FetchQuotes(ctx)
		if err != nil {
			return err
		}
		quotes = fetched
		return nil
	})
	if err != nil {
		return err
	}

	for _, quote := range quotes {
		if err := o.Processor.ProcessStockQuote(ctx, quote); err != nil {
			o.Logger.Warning("Processing failed for %s: %v", quote.Ticker, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) guardedFetch(ctx context.Context, sourceName string, fetch func(ctx context.Context) error) error {
	if !o.RateLimiter.CheckRateLimit(sourceName) {
		o.Logger.Warning("Rate limit reached for '%s', skipping cycle", sourceName)
		return helpers.NewNetworkError(fmt.Sprintf("rate limit reached for '%s'", sourceName), helpers.ErrRateLimited)
	}

	breaker := o.breakers[sourceName]
	start := time.Now()

	err := o.bulkhead.Execute(ctx, func(ctx context.Context) error {
		return o.retry.Do(ctx, func(ctx context.Context) error {
			return breaker.Execute(ctx, fetch)
		})
	})

	o.Metrics.FetchDuration.WithLabelValues(sourceName).Observe(time.Since(start).Seconds())
	result := "success"
	if err != nil {
		result = "failure"
	}
	o.Metrics.JobRuns.WithLabelValues(refreshJobName(sourceName), result).Inc()
	return err
}

// -----------------------------------------------------------------------------
// Wiring
// -----------------------------------------------------------------------------

func (o *Orchestrator) onBreakerStateChange(name string, from, to resilience.State) {
	o.Metrics.BreakerState.WithLabelValues(name).Set(float64(to))

	status := "healthy"
	if to != resilience.StateClosed {
		status = "degraded"
	}
	o.Server.PublishHealth(models.MHealthUpdatePayload{
		Status: status,
		Detail: fmt.Sprintf("circuit breaker '%s' moved %s -> %s", name, from, to),
	})
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) registerHealthChecks() {
	o.Health.Register("database", func(ctx context.Context) error {
		_, err := o.DB.ListCompanies()
		return err
	})
	o.Health.Register("system_resources", resilience.SystemResourcesCheck(90, 95))
	o.Health.Register("circuit_breakers", func(ctx context.Context) error {
		for name, breaker := range o.breakers {
			if breaker.State() == resilience.StateOpen {
				return fmt.Errorf("circuit breaker '%s' is open", name)
			}
		}
		return nil
	})
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) registerWarming() {
	// The processor reads this key on every processed record, keep it warm
	o.Cache.RegisterWarming(processor.CompaniesKey, func(ctx context.Context) (interface{}, error) {
		companies, err := o.DB.ListCompanies()
		if err != nil {
			return nil, err
		}
		return companies, nil
	}, 5*time.Minute, 10*time.Minute)
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) wireServer() {
	o.Server.StatusFunc = o.GetStatus
	o.Server.MetricsFunc = o.GetMetrics
	o.Server.HealthFunc = o.healthPayload
	o.Server.RefreshFunc = o.TriggerDataRefresh
	o.Server.ClearCacheFn = o.ClearCache
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("orchestrator already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.running = true
	o.startedAt = time.Now()
	o.mu.Unlock()

	if err := o.DB.Initialize(); err != nil {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		cancel()
		return helpers.NewDatabaseError("database initialization failed", err)
	}

	o.Cache.Start(ctx)
	o.Health.Start(ctx)
	o.Scheduler.Start(ctx)

	o.wg.Add(1)
	go o.pumpEvents(ctx)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.Server.Start(); err != nil {
			o.Logger.Error("Broadcast server stopped: %v", err)
		}
	}()

	o.Logger.Info("Pipeline '%s' started", o.Config.Name)
	return nil
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()

	o.shutdown()
	o.Logger.Info("Pipeline '%s' stopped", o.Config.Name)
}

// Restart tears the pipeline down and brings it back up with the same wiring.
// Storage reconnects on Start, so a restart survives a closed database handle.
func (o *Orchestrator) Restart() error {
	o.Stop()
	return o.Start()
}

func (o *Orchestrator) shutdown() {
	o.Scheduler.Stop()
	o.Health.Stop()
	o.Cache.Stop()
	if err := o.Server.Stop(); err != nil {
		o.Logger.Warning("Server shutdown: %v", err)
	}
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
	if err := o.DB.Close(); err != nil {
		o.Logger.Warning("Database close: %v", err)
	}
}

// -----------------------------------------------------------------------------

// pumpEvents moves processor output into the broadcast layer.
func (o *Orchestrator) pumpEvents(ctx context.Context) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-o.Processor.Events():
			if !ok {
				return
			}
			switch event.Kind {
			case models.EventDataProcessed:
				o.Metrics.EventsProcessed.Inc()
			case models.EventSignificantChange:
				o.Metrics.SignificantChanges.Inc()
			}
			o.Server.PublishEvent(event)
		}
	}
}

// -----------------------------------------------------------------------------
// Operations
// -----------------------------------------------------------------------------

// TriggerDataRefresh runs the refresh jobs for the given source types
// ("crypto", "stock") immediately. An empty list refreshes everything.
func (o *Orchestrator) TriggerDataRefresh(types []string) error {
	wantAll := len(types) == 0
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[strings.ToLower(t)] = true
	}

	triggered := 0
	for name := range o.cryptoSources {
		if wantAll || want["crypto"] {
			go o.Scheduler.TriggerJob(refreshJobName(name))
			triggered++
		}
	}
	for name := range o.stockSources {
		if wantAll || want["stock"] || want["stocks"] {
			go o.Scheduler.TriggerJob(refreshJobName(name))
			triggered++
		}
	}

	if triggered == 0 {
		return fmt.Errorf("no sources match types %v", types)
	}
	return nil
}

// -----------------------------------------------------------------------------

// ClearCache removes entries matching the regular expression pattern.
func (o *Orchestrator) ClearCache(pattern string) (int, error) {
	return o.Cache.InvalidatePattern(pattern)
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) GetStatus() models.MPipelineStatus {
	o.mu.Lock()
	running, startedAt := o.running, o.startedAt
	o.mu.Unlock()

	breakerStates := make(map[string]string, len(o.breakers))
	for name, breaker := range o.breakers {
		breakerStates[name] = breaker.State().String()
	}

	marketStatuses := make(map[string]models.MMarketStatus, len(o.Config.Markets))
	now := time.Now()
	for _, name := range o.Markets.Markets() {
		if status, err := o.Markets.GetMarketStatus(name, now); err == nil {
			marketStatuses[name] = status
		}
	}

	return models.MPipelineStatus{
		Running:       running,
		StartedAt:     startedAt,
		Healthy:       o.Health.Healthy(),
		Checks:        o.Health.Results(),
		BreakerStates: breakerStates,
		Jobs:          o.Scheduler.Jobs(),
		Markets:       marketStatuses,
		Connections:   o.Server.ConnectionCount(),
	}
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) GetMetrics() models.MPipelineMetrics {
	processed, significant, validationFailures, _ := o.Processor.Stats()
	sent, dropped := o.Server.Hub().Counters()

	return models.MPipelineMetrics{
		Cache:              o.Cache.Stats(),
		Connections:        o.Server.ConnectionCount(),
		MessagesSent:       sent,
		BroadcastFailures:  dropped,
		EventsProcessed:    processed,
		SignificantChanges: significant,
		ValidationFailures: validationFailures,
		JobExecutions:      o.Scheduler.ExecutionCounts(),
	}
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) healthPayload() models.MHealthUpdatePayload {
	status := "healthy"
	if !o.Health.Healthy() {
		status = "degraded"
	}
	return models.MHealthUpdatePayload{
		Status: status,
		Checks: o.Health.Results(),
	}
}
