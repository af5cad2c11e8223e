// Package netcache persists parsed network models between reloads. The
// cache is an explicit object with per-entry expiry and a format-version
// tag: entries are invalidated on version mismatch or expiry, never on a
// heuristic.
package netcache

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/trafficlens/trafficlens/internal/network"
)

// FormatVersion tags stored models. Bump whenever the parsed model shape
// changes; older entries then read as misses.
const FormatVersion = 1

// DefaultTTL is how long a parsed model stays servable.
const DefaultTTL = 6 * time.Hour

//go:embed schema.sql
var schemaSQL string

// Config holds cache configuration.
type Config struct {
	// Path is the sqlite database file. ":memory:" works for tests.
	Path string

	// TTL is the entry lifetime. Default: DefaultTTL.
	TTL time.Duration

	Logger zerolog.Logger

	// now is overridable for tests.
	now func() time.Time
}

// Cache is a sqlite-backed store of parsed network models keyed by
// document URL.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens (or creates) the cache database and ensures the schema.
func Open(cfg Config) (*Cache, error) {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	dsn := cfg.Path + "?_journal=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening network cache: %w", err)
	}

	// sqlite allows one writer; a single connection avoids nested
	// transaction errors without a separate write mutex.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging network cache: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring network cache schema: %w", err)
	}

	return &Cache{
		db:     db,
		ttl:    cfg.TTL,
		logger: cfg.Logger,
		now:    cfg.now,
	}, nil
}

// Get returns the cached model for a key. Expired or version-mismatched
// entries are deleted and reported as misses.
func (c *Cache) Get(ctx context.Context, key string) (*network.Model, bool, error) {
	var (
		version   int
		payload   []byte
		expiresAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT format_version, model, expires_at FROM network_cache WHERE key = ?`,
		key,
	).Scan(&version, &payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading network cache: %w", err)
	}

	if version != FormatVersion || c.now().Unix() >= expiresAt {
		c.logger.Debug().
			Str("key", key).
			Int("version", version).
			Msg("evicting stale network cache entry")
		if err := c.Invalidate(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	var model network.Model
	if err := json.Unmarshal(payload, &model); err != nil {
		// Unreadable entries count as version mismatches.
		if err := c.Invalidate(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return &model, true, nil
}

// Put stores a parsed model under a key, stamping the current format
// version and expiry.
func (c *Cache) Put(ctx context.Context, key string, model *network.Model) error {
	payload, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("encoding network model: %w", err)
	}

	now := c.now()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO network_cache (key, format_version, model, fetched_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			format_version = excluded.format_version,
			model = excluded.model,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at`,
		key, FormatVersion, payload, now.Unix(), now.Add(c.ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("writing network cache: %w", err)
	}

	c.logger.Debug().
		Str("key", key).
		Int("lanes", len(model.Lanes)).
		Msg("network model cached")
	return nil
}

// Invalidate removes one entry.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM network_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("invalidating network cache: %w", err)
	}
	return nil
}

// Prune removes every expired entry.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM network_cache WHERE expires_at <= ?`, c.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning network cache: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
