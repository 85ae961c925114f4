package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"market-pipeline/src/logger"
	"market-pipeline/src/models"

	"github.com/robfig/cron/v3"
)

// -----------------------------------------------------------------------------
// Job Scheduler
//
// Named recurring jobs on independent cron timers. Intervals are mutable at
// runtime (adaptive reconfiguration re-schedules the entry); manual triggers
// run out-of-band and never disturb the timer. Jobs are registered once and
// live for the process lifetime.
// -----------------------------------------------------------------------------

// Job is the closed contract every scheduled handler implements.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

const historyLimit = 50

type jobEntry struct {
	job      Job
	interval time.Duration
	entryID  cron.EntryID
	enabled  bool
	running  bool
	history  []models.MJobExecution
}

type JobScheduler struct {
	cron   *cron.Cron
	jobs   map[string]*jobEntry
	Logger *logger.Logger

	ctx     context.Context
	started bool
	mu      sync.Mutex
}

// -----------------------------------------------------------------------------

func NewJobScheduler(log *logger.Logger) *JobScheduler {
	return &JobScheduler{
		cron:   cron.New(),
		jobs:   make(map[string]*jobEntry),
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

// Register adds a job with its initial interval. Registering after Start
// schedules it immediately.
func (s *JobScheduler) Register(job Job, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job '%s' already registered", name)
	}

	entry := &jobEntry{job: job, interval: interval, enabled: true}
	s.jobs[name] = entry

	if s.started {
		entry.entryID = s.schedule(name, interval)
	}

	s.Logger.Info("Registered job '%s' (every %v)", name, interval)
	return nil
}

// -----------------------------------------------------------------------------

// schedule creates the cron entry. Caller holds the lock.
func (s *JobScheduler) schedule(name string, interval time.Duration) cron.EntryID {
	return s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		s.execute(name, false)
	}))
}

// -----------------------------------------------------------------------------

// Start begins all enabled jobs' timers.
func (s *JobScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.ctx = ctx
	for name, entry := range s.jobs {
		if entry.enabled {
			entry.entryID = s.schedule(name, entry.interval)
		}
	}
	s.cron.Start()
	s.started = true
	s.Logger.Info("Scheduler started with %d jobs", len(s.jobs))
}

// -----------------------------------------------------------------------------

// Stop clears all timers and waits for in-flight runs.
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	for _, entry := range s.jobs {
		s.cron.Remove(entry.entryID)
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.Logger.Info("Scheduler stopped")
}

// -----------------------------------------------------------------------------

// TriggerJob runs a job's handler immediately, out-of-band from its timer,
// and returns the handler's error.
func (s *JobScheduler) TriggerJob(name string) error {
	s.mu.Lock()
	_, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("job '%s' not found", name)
	}
	return s.execute(name, true)
}

// -----------------------------------------------------------------------------

// UpdateJobInterval reschedules a job by clearing and recreating its timer.
// In-flight executions are unaffected.
func (s *JobScheduler) UpdateJobInterval(name string, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("job '%s' not found", name)
	}
	if entry.interval == interval {
		return nil
	}

	entry.interval = interval
	if s.started && entry.enabled {
		s.cron.Remove(entry.entryID)
		entry.entryID = s.schedule(name, interval)
	}

	s.Logger.Info("Job '%s' rescheduled to every %v", name, interval)
	return nil
}

// -----------------------------------------------------------------------------

func (s *JobScheduler) execute(name string, manual bool) error {
	s.mu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("job '%s' not found", name)
	}
	if entry.running && !manual {
		// Timer fired while the previous run is still going; skip the overlap
		s.mu.Unlock()
		s.Logger.Warning("Job '%s' still running, skipping tick", name)
		return nil
	}
	entry.running = true
	job := entry.job
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	record := models.MJobExecution{Job: name, StartedAt: time.Now(), Manual: manual}
	err := job.Run(ctx)
	record.FinishedAt = time.Now()
	record.Success = err == nil
	if err != nil {
		record.Error = err.Error()
		s.Logger.Error("Job '%s' failed: %v", name, err)
	} else {
		s.Logger.Debug("Job '%s' completed in %v", name, record.FinishedAt.Sub(record.StartedAt))
	}

	s.mu.Lock()
	entry.running = false
	entry.history = append(entry.history, record)
	if len(entry.history) > historyLimit {
		entry.history = entry.history[len(entry.history)-historyLimit:]
	}
	s.mu.Unlock()

	return err
}

// -----------------------------------------------------------------------------

// Jobs reports every registered job's status and history.
func (s *JobScheduler) Jobs() []models.MJobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.MJobStatus, 0, len(s.jobs))
	for name, entry := range s.jobs {
		history := make([]models.MJobExecution, len(entry.history))
		copy(history, entry.history)
		out = append(out, models.MJobStatus{
			Name:     name,
			Interval: entry.interval,
			Running:  entry.running,
			Enabled:  entry.enabled,
			History:  history,
		})
	}
	return out
}

// -----------------------------------------------------------------------------

// ExecutionCounts returns total recorded runs per job.
func (s *JobScheduler) ExecutionCounts() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int64, len(s.jobs))
	for name, entry := range s.jobs {
		out[name] = int64(len(entry.history))
	}
	return out
}
