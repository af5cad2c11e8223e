// Package worker provides background maintenance jobs for TrafficLens.
package worker

import (
	"time"
)

// Task names a single maintenance operation.
type Task string

const (
	// TaskPruneCache removes expired network documents from the on-disk
	// cache.
	TaskPruneCache Task = "cache_prune"

	// TaskRefreshNetwork re-fetches and re-parses the network document,
	// swapping the in-memory model on success.
	TaskRefreshNetwork Task = "network_refresh"

	// TaskWarmFlags drops the feature flag cache and re-reads all flags
	// from the repository.
	TaskWarmFlags Task = "flag_warm"
)

// MaintenanceConfig holds configuration for the maintenance job.
type MaintenanceConfig struct {
	// Tasks are the operations to run. If empty, uses
	// DefaultMaintenanceTasks.
	Tasks []Task

	// Concurrency is the number of concurrent task workers.
	// Default: 2
	Concurrency int

	// Timeout is the timeout for each task. The network refresh can
	// spend up to two minutes in the parser, so the default leaves
	// headroom beyond that.
	// Default: 3 minutes
	Timeout time.Duration

	// NetworkStaleAfter skips the network refresh when the current
	// model is younger than this. Zero refreshes unconditionally.
	NetworkStaleAfter time.Duration
}

// DefaultMaintenanceConfig returns the default maintenance configuration.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		Tasks:             DefaultMaintenanceTasks(),
		Concurrency:       2,
		Timeout:           3 * time.Minute,
		NetworkStaleAfter: 0,
	}
}

// DefaultMaintenanceTasks returns every maintenance task in its default
// order. Order only matters for single-worker runs; the pool otherwise
// interleaves them.
func DefaultMaintenanceTasks() []Task {
	return []Task{
		TaskPruneCache,
		TaskRefreshNetwork,
		TaskWarmFlags,
	}
}

// TotalTasks returns the number of tasks the job will attempt.
func (c MaintenanceConfig) TotalTasks() int {
	return len(c.Tasks)
}
