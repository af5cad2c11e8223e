package settings

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Repository errors.
var (
	ErrSettingsNotFound = errors.New("map settings not found")
)

// Repository defines the interface for settings and audit persistence.
type Repository interface {
	// GetSettings retrieves an operator's map settings.
	GetSettings(ctx context.Context, operatorID string) (*MapSettings, error)

	// UpsertSettings creates or replaces an operator's map settings.
	UpsertSettings(ctx context.Context, s *MapSettings) error

	// AppendAudit writes one audit entry.
	AppendAudit(ctx context.Context, entry *AuditEntry) error

	// ListAudit returns the most recent audit entries, newest first.
	ListAudit(ctx context.Context, limit int) ([]AuditEntry, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for tests and single-node deployments.
type InMemoryRepository struct {
	mu       sync.RWMutex
	settings map[string]*MapSettings
	audit    []AuditEntry
}

// NewInMemoryRepository creates a new in-memory settings repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		settings: make(map[string]*MapSettings),
	}
}

// GetSettings retrieves an operator's map settings.
func (r *InMemoryRepository) GetSettings(_ context.Context, operatorID string) (*MapSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.settings[operatorID]
	if !ok {
		return nil, ErrSettingsNotFound
	}
	copied := *s
	return &copied, nil
}

// UpsertSettings creates or replaces an operator's map settings.
func (r *InMemoryRepository) UpsertSettings(_ context.Context, s *MapSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *s
	r.settings[s.OperatorID] = &copied
	return nil
}

// AppendAudit writes one audit entry.
func (r *InMemoryRepository) AppendAudit(_ context.Context, entry *AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.audit = append(r.audit, *entry)
	return nil
}

// ListAudit returns the most recent audit entries, newest first.
func (r *InMemoryRepository) ListAudit(_ context.Context, limit int) ([]AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AuditEntry, len(r.audit))
	copy(out, r.audit)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ensure InMemoryRepository implements Repository.
var _ Repository = (*InMemoryRepository)(nil)
