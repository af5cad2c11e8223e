package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trafficlens/trafficlens/pkg/geometry"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL settings repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetSettings retrieves an operator's map settings.
func (r *PostgresRepository) GetSettings(ctx context.Context, operatorID string) (*MapSettings, error) {
	query := `
		SELECT
			operator_id, center_lat, center_lng, zoom,
			show_internal_lanes, show_signals, show_emergency,
			congestion_policy, updated_at
		FROM map_settings
		WHERE operator_id = $1
	`

	var (
		s                  MapSettings
		centerLat, centerLng *float64
	)

	err := r.pool.QueryRow(ctx, query, operatorID).Scan(
		&s.OperatorID,
		&centerLat,
		&centerLng,
		&s.Zoom,
		&s.ShowInternalLanes,
		&s.ShowSignals,
		&s.ShowEmergency,
		&s.CongestionPolicy,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}

	if centerLat != nil && centerLng != nil {
		s.Center = &geometry.Point{Lat: *centerLat, Lng: *centerLng}
	}
	return &s, nil
}

// UpsertSettings creates or replaces an operator's map settings.
func (r *PostgresRepository) UpsertSettings(ctx context.Context, s *MapSettings) error {
	query := `
		INSERT INTO map_settings (
			operator_id, center_lat, center_lng, zoom,
			show_internal_lanes, show_signals, show_emergency,
			congestion_policy, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (operator_id) DO UPDATE SET
			center_lat = EXCLUDED.center_lat,
			center_lng = EXCLUDED.center_lng,
			zoom = EXCLUDED.zoom,
			show_internal_lanes = EXCLUDED.show_internal_lanes,
			show_signals = EXCLUDED.show_signals,
			show_emergency = EXCLUDED.show_emergency,
			congestion_policy = EXCLUDED.congestion_policy,
			updated_at = EXCLUDED.updated_at
	`

	var centerLat, centerLng *float64
	if s.Center != nil {
		centerLat = &s.Center.Lat
		centerLng = &s.Center.Lng
	}

	_, err := r.pool.Exec(ctx, query,
		s.OperatorID,
		centerLat,
		centerLng,
		s.Zoom,
		s.ShowInternalLanes,
		s.ShowSignals,
		s.ShowEmergency,
		s.CongestionPolicy,
		s.UpdatedAt,
	)
	return err
}

// AppendAudit writes one audit entry.
func (r *PostgresRepository) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	query := `
		INSERT INTO audit_log (id, actor, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.Actor,
		entry.Action,
		entry.Detail,
		entry.CreatedAt,
	)
	return err
}

// ListAudit returns the most recent audit entries, newest first.
func (r *PostgresRepository) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, actor, action, detail, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ensure PostgresRepository implements Repository.
var _ Repository = (*PostgresRepository)(nil)
