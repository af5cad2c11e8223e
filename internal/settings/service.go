package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the settings service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger
}

// Service provides map settings read/write with audited changes.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new settings service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}
}

// Get retrieves an operator's map settings, falling back to defaults
// when none are saved yet.
func (s *Service) Get(ctx context.Context, operatorID string) (*MapSettings, error) {
	saved, err := s.repo.GetSettings(ctx, operatorID)
	if err == nil {
		return saved, nil
	}
	if err != ErrSettingsNotFound {
		return nil, fmt.Errorf("loading map settings: %w", err)
	}
	return &MapSettings{
		OperatorID:    operatorID,
		Zoom:          14,
		ShowSignals:   true,
		ShowEmergency: true,
	}, nil
}

// Update validates and saves an operator's map settings, writing an
// audit entry for the change.
func (s *Service) Update(ctx context.Context, actor string, updated *MapSettings) error {
	if updated.OperatorID == "" {
		return fmt.Errorf("map settings require an operator id")
	}
	if updated.Zoom < 0 || updated.Zoom > 22 {
		return fmt.Errorf("zoom %.1f out of range", updated.Zoom)
	}
	if updated.Center != nil && !updated.Center.Valid() {
		return fmt.Errorf("map center is not a finite point")
	}

	updated.UpdatedAt = time.Now()
	if err := s.repo.UpsertSettings(ctx, updated); err != nil {
		return fmt.Errorf("saving map settings: %w", err)
	}

	s.audit(ctx, actor, ActionSettingsUpdated, updated)

	s.logger.Info().
		Str("operator_id", updated.OperatorID).
		Str("actor", actor).
		Msg("map settings updated")
	return nil
}

// RecordOverride audits an intersection override command. The command
// itself is pass-through; only the fact that it happened is stored.
func (s *Service) RecordOverride(ctx context.Context, actor string, detail any) {
	s.audit(ctx, actor, ActionIntersectionOverride, detail)
}

// AuditTrail returns the most recent audit entries, newest first.
func (s *Service) AuditTrail(ctx context.Context, limit int) ([]AuditEntry, error) {
	return s.repo.ListAudit(ctx, limit)
}

func (s *Service) audit(ctx context.Context, actor, action string, detail any) {
	payload, err := json.Marshal(detail)
	if err != nil {
		payload = nil
	}
	entry := &AuditEntry{
		ID:        uuid.New().String(),
		Actor:     actor,
		Action:    action,
		Detail:    string(payload),
		CreatedAt: time.Now(),
	}
	// Audit failures are logged, not surfaced; the operation itself
	// already succeeded.
	if err := s.repo.AppendAudit(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("failed to write audit entry")
	}
}
