package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficlens/trafficlens/internal/featureflags"
)

// The dispatch logic runs against a handler with no live Pub/Sub
// client; only Start and Close touch the wire.

type stubRefresher struct {
	err   error
	calls atomic.Int64
}

func (s *stubRefresher) LoadNetwork(context.Context) error {
	s.calls.Add(1)
	return s.err
}

func (s *stubRefresher) LoadedAt() time.Time { return time.Time{} }

type stubPruner struct {
	calls atomic.Int64
}

func (s *stubPruner) Prune(context.Context) (int64, error) {
	s.calls.Add(1)
	return 2, nil
}

type stubFlags struct {
	reads atomic.Int64
}

func (s *stubFlags) InvalidateCache() {}

func (s *stubFlags) GetAllFlags(context.Context) map[string]*featureflags.Flag {
	s.reads.Add(1)
	return nil
}

func newStubHandler(refresher *stubRefresher, pruner *stubPruner, flags *stubFlags) *PubSubHandler {
	return &PubSubHandler{
		maintenanceJob: NewMaintenanceJob(MaintenanceJobConfig{
			Logger:   zerolog.Nop(),
			Pipeline: refresher,
			Cache:    pruner,
			Flags:    flags,
		}),
		logger: zerolog.Nop(),
	}
}

func TestHandleMaintenance_RunsConfiguredTasks(t *testing.T) {
	refresher := &stubRefresher{}
	pruner := &stubPruner{}
	flags := &stubFlags{}
	h := newStubHandler(refresher, pruner, flags)

	err := h.handleMaintenance(t.Context(), MaintenanceMessage{JobType: "maintenance"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), refresher.calls.Load())
	assert.Equal(t, int64(1), pruner.calls.Load())
	assert.Equal(t, int64(1), flags.reads.Load())
}

func TestHandleMaintenance_TaskSubset(t *testing.T) {
	refresher := &stubRefresher{}
	pruner := &stubPruner{}
	flags := &stubFlags{}
	h := newStubHandler(refresher, pruner, flags)

	err := h.handleMaintenance(t.Context(), MaintenanceMessage{
		JobType: "maintenance",
		Tasks:   []string{string(TaskPruneCache)},
	})
	require.NoError(t, err)

	// Only the requested task ran; the job's full set stays intact for
	// the next message.
	assert.Equal(t, int64(1), pruner.calls.Load())
	assert.Zero(t, refresher.calls.Load())
	assert.Zero(t, flags.reads.Load())
	assert.Equal(t, DefaultMaintenanceTasks(), h.maintenanceJob.config.Tasks)
}

func TestHandleMaintenance_FailureSurfacesForNack(t *testing.T) {
	refresher := &stubRefresher{err: errors.New("document fetch failed")}
	h := newStubHandler(refresher, &stubPruner{}, &stubFlags{})

	err := h.handleMaintenance(t.Context(), MaintenanceMessage{JobType: "maintenance"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maintenance failures")
}

func TestHandleHealthCheck_WarmsFlagsOnly(t *testing.T) {
	refresher := &stubRefresher{}
	flags := &stubFlags{}
	h := newStubHandler(refresher, &stubPruner{}, flags)

	err := h.handleHealthCheck(t.Context())
	require.NoError(t, err)

	assert.Equal(t, int64(1), flags.reads.Load())
	assert.Zero(t, refresher.calls.Load())
}
