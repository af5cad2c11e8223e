package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/trafficlens/trafficlens/internal/featureflags"
)

// NetworkRefresher reloads the network model. Satisfied by
// *ingest.Service.
type NetworkRefresher interface {
	LoadNetwork(ctx context.Context) error
	LoadedAt() time.Time
}

// CachePruner removes expired entries from the network document cache.
// Satisfied by *netcache.Cache.
type CachePruner interface {
	Prune(ctx context.Context) (int64, error)
}

// FlagWarmer re-reads feature flags from the repository. Satisfied by
// *featureflags.Service.
type FlagWarmer interface {
	InvalidateCache()
	GetAllFlags(ctx context.Context) map[string]*featureflags.Flag
}

// MaintenanceJob runs periodic housekeeping: cache pruning, network
// model refresh and flag cache warming.
type MaintenanceJob struct {
	config MaintenanceConfig
	logger zerolog.Logger

	// Dependencies (optional, nil skips the corresponding task)
	pipeline NetworkRefresher
	cache    CachePruner
	flags    FlagWarmer

	// Metrics
	metrics *MaintenanceMetrics
}

// MaintenanceMetrics tracks maintenance job statistics.
type MaintenanceMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns        int64
	SuccessfulTasks  int64
	FailedTasks      int64
	SkippedTasks     int64
	NetworkRefreshes int64
	CachePrunes      int64
	FlagWarms        int64
	PrunedEntries    int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// MaintenanceJobConfig holds configuration for creating a MaintenanceJob.
type MaintenanceJobConfig struct {
	Config   MaintenanceConfig
	Logger   zerolog.Logger
	Pipeline NetworkRefresher
	Cache    CachePruner
	Flags    FlagWarmer
}

// NewMaintenanceJob creates a new maintenance job processor.
func NewMaintenanceJob(cfg MaintenanceJobConfig) *MaintenanceJob {
	config := cfg.Config
	if len(config.Tasks) == 0 {
		config.Tasks = DefaultMaintenanceTasks()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultMaintenanceConfig().Concurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultMaintenanceConfig().Timeout
	}

	return &MaintenanceJob{
		config:   config,
		logger:   cfg.Logger,
		pipeline: cfg.Pipeline,
		cache:    cfg.Cache,
		flags:    cfg.Flags,
		metrics:  &MaintenanceMetrics{},
	}
}

// MaintenanceResult contains the result of a maintenance run.
type MaintenanceResult struct {
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
	TotalTasks    int
	Successful    int
	Failed        int
	Skipped       int
	PrunedEntries int64
	Errors        []TaskError
}

// TaskError represents an error during a maintenance task.
type TaskError struct {
	Task  Task
	Error string
}

// Run executes all configured maintenance tasks.
func (j *MaintenanceJob) Run(ctx context.Context) *MaintenanceResult {
	startTime := time.Now()
	result := &MaintenanceResult{
		StartTime:  startTime,
		TotalTasks: j.config.TotalTasks(),
	}

	j.logger.Info().
		Int("total_tasks", result.TotalTasks).
		Int("concurrency", j.config.Concurrency).
		Msg("starting maintenance job")

	// Create work channels
	tasksChan := make(chan Task, len(j.config.Tasks))
	resultsChan := make(chan taskResult, len(j.config.Tasks))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			j.taskWorker(ctx, workerID, tasksChan, resultsChan)
		}(i)
	}

	// Send tasks to workers
	for _, task := range j.config.Tasks {
		tasksChan <- task
	}
	close(tasksChan)

	// Wait for workers to complete
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Collect results
	for tr := range resultsChan {
		switch {
		case tr.skipped:
			result.Skipped++
		case tr.err != nil:
			result.Failed++
			result.Errors = append(result.Errors, TaskError{
				Task:  tr.task,
				Error: tr.err.Error(),
			})
		default:
			result.Successful++
		}
		result.PrunedEntries += tr.pruned
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	// Update metrics
	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Int64("pruned_entries", result.PrunedEntries).
		Msg("maintenance job completed")

	return result
}

type taskResult struct {
	task    Task
	err     error
	skipped bool
	pruned  int64
}

func (j *MaintenanceJob) taskWorker(ctx context.Context, _ int, tasks <-chan Task, results chan<- taskResult) {
	for task := range tasks {
		select {
		case <-ctx.Done():
			return
		default:
			results <- j.runTask(ctx, task)
		}
	}
}

func (j *MaintenanceJob) runTask(ctx context.Context, task Task) taskResult {
	taskCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	switch task {
	case TaskPruneCache:
		return j.pruneCache(taskCtx)
	case TaskRefreshNetwork:
		return j.refreshNetwork(taskCtx)
	case TaskWarmFlags:
		return j.warmFlags(taskCtx)
	default:
		return taskResult{task: task, err: fmt.Errorf("unknown maintenance task %q", task)}
	}
}

func (j *MaintenanceJob) pruneCache(ctx context.Context) taskResult {
	if j.cache == nil {
		return taskResult{task: TaskPruneCache, skipped: true}
	}

	removed, err := j.cache.Prune(ctx)
	if err != nil {
		return taskResult{task: TaskPruneCache, err: err}
	}

	atomic.AddInt64(&j.metrics.CachePrunes, 1)
	j.logger.Debug().Int64("removed", removed).Msg("pruned network document cache")
	return taskResult{task: TaskPruneCache, pruned: removed}
}

func (j *MaintenanceJob) refreshNetwork(ctx context.Context) taskResult {
	if j.pipeline == nil {
		return taskResult{task: TaskRefreshNetwork, skipped: true}
	}

	// A freshly loaded model does not need another fetch+parse cycle.
	if j.config.NetworkStaleAfter > 0 {
		loadedAt := j.pipeline.LoadedAt()
		if !loadedAt.IsZero() && time.Since(loadedAt) < j.config.NetworkStaleAfter {
			j.logger.Debug().
				Time("loaded_at", loadedAt).
				Msg("network model still fresh, skipping refresh")
			return taskResult{task: TaskRefreshNetwork, skipped: true}
		}
	}

	if err := j.pipeline.LoadNetwork(ctx); err != nil {
		return taskResult{task: TaskRefreshNetwork, err: err}
	}

	atomic.AddInt64(&j.metrics.NetworkRefreshes, 1)
	return taskResult{task: TaskRefreshNetwork}
}

func (j *MaintenanceJob) warmFlags(ctx context.Context) taskResult {
	if j.flags == nil {
		return taskResult{task: TaskWarmFlags, skipped: true}
	}

	j.flags.InvalidateCache()
	flags := j.flags.GetAllFlags(ctx)

	atomic.AddInt64(&j.metrics.FlagWarms, 1)
	j.logger.Debug().Int("flags", len(flags)).Msg("rewarmed feature flag cache")
	return taskResult{task: TaskWarmFlags}
}

func (j *MaintenanceJob) updateMetrics(result *MaintenanceResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.SuccessfulTasks += int64(result.Successful)
	j.metrics.FailedTasks += int64(result.Failed)
	j.metrics.SkippedTasks += int64(result.Skipped)
	j.metrics.PrunedEntries += result.PrunedEntries
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *MaintenanceJob) GetMetrics() MaintenanceMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return MaintenanceMetrics{
		TotalRuns:        j.metrics.TotalRuns,
		SuccessfulTasks:  j.metrics.SuccessfulTasks,
		FailedTasks:      j.metrics.FailedTasks,
		SkippedTasks:     j.metrics.SkippedTasks,
		NetworkRefreshes: j.metrics.NetworkRefreshes,
		CachePrunes:      j.metrics.CachePrunes,
		FlagWarms:        j.metrics.FlagWarms,
		PrunedEntries:    j.metrics.PrunedEntries,
		LastRunAt:        j.metrics.LastRunAt,
		LastRunDuration:  j.metrics.LastRunDuration,
		TotalDuration:    j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *MaintenanceJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":        m.TotalRuns,
		"successful_tasks":  m.SuccessfulTasks,
		"failed_tasks":      m.FailedTasks,
		"skipped_tasks":     m.SkippedTasks,
		"network_refreshes": m.NetworkRefreshes,
		"cache_prunes":      m.CachePrunes,
		"flag_warms":        m.FlagWarms,
		"pruned_entries":    m.PrunedEntries,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}
