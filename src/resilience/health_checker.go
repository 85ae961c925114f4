package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"market-pipeline/src/logger"
	"market-pipeline/src/models"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// -----------------------------------------------------------------------------
// Health Checker
//
// Runs named checks on a fixed interval and keeps only the last result per
// check, overwritten each cycle.
// -----------------------------------------------------------------------------

type CheckFunc func(ctx context.Context) error

type HealthChecker struct {
	interval time.Duration
	Logger   *logger.Logger

	checks  map[string]CheckFunc
	results map[string]models.MHealthCheckResult
	mu      sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// -----------------------------------------------------------------------------

func NewHealthChecker(interval time.Duration, log *logger.Logger) *HealthChecker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthChecker{
		interval: interval,
		Logger:   log,
		checks:   make(map[string]CheckFunc),
		results:  make(map[string]models.MHealthCheckResult),
	}
}

// -----------------------------------------------------------------------------

// Register adds a named check. Registering an existing name replaces it.
func (hc *HealthChecker) Register(name string, fn CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = fn
}

// -----------------------------------------------------------------------------

// Start launches the periodic check loop.
func (hc *HealthChecker) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	hc.cancel = cancel

	hc.wg.Add(1)
	go func() {
		defer hc.wg.Done()
		ticker := time.NewTicker(hc.interval)
		defer ticker.Stop()

		hc.RunChecks(ctx)
		for {
			select {
			case <-ticker.C:
				hc.RunChecks(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the loop and waits for it.
func (hc *HealthChecker) Stop() {
	if hc.cancel != nil {
		hc.cancel()
	}
	hc.wg.Wait()
}

// -----------------------------------------------------------------------------

// RunChecks executes every registered check once and overwrites results.
func (hc *HealthChecker) RunChecks(ctx context.Context) {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checks))
	fns := make([]CheckFunc, 0, len(hc.checks))
	for name, fn := range hc.checks {
		names = append(names, name)
		fns = append(fns, fn)
	}
	hc.mu.RUnlock()

	for i, fn := range fns {
		start := time.Now()
		err := fn(ctx)
		result := models.MHealthCheckResult{
			Name:      names[i],
			Healthy:   err == nil,
			Latency:   time.Since(start),
			Timestamp: time.Now(),
		}
		if err != nil {
			result.Error = err.Error()
			hc.Logger.Warning("Health check '%s' failed: %v", names[i], err)
		}

		hc.mu.Lock()
		hc.results[names[i]] = result
		hc.mu.Unlock()
	}
}

// -----------------------------------------------------------------------------

// Results returns the last result of every check.
func (hc *HealthChecker) Results() []models.MHealthCheckResult {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	out := make([]models.MHealthCheckResult, 0, len(hc.results))
	for _, r := range hc.results {
		out = append(out, r)
	}
	return out
}

// Healthy reports whether every last result passed.
func (hc *HealthChecker) Healthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	for _, r := range hc.results {
		if !r.Healthy {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------

// SystemResourcesCheck probes memory and CPU pressure via gopsutil.
func SystemResourcesCheck(maxMemoryPercent, maxCPUPercent float64) CheckFunc {
	return func(ctx context.Context) error {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return fmt.Errorf("memory probe: %w", err)
		}
		if vm.UsedPercent > maxMemoryPercent {
			return fmt.Errorf("memory usage %.1f%% above %.1f%%", vm.UsedPercent, maxMemoryPercent)
		}

		percents, err := cpu.PercentWithContext(ctx, 0, false)
		if err != nil {
			return fmt.Errorf("cpu probe: %w", err)
		}
		if len(percents) > 0 && percents[0] > maxCPUPercent {
			return fmt.Errorf("cpu usage %.1f%% above %.1f%%", percents[0], maxCPUPercent)
		}
		return nil
	}
}
