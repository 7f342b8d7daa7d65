// Package auditstore provides an optional Postgres-backed archival sink for
// the ACL, RBAC, and MLS audit logs. The three JSON files
// (blocks.json/state.json/permissions.json) remain the system of record for
// a running chain; this package is a supplemental archive a deployer may
// wire in for long-term audit retention and cross-node queries.
package auditstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/certen/ledger-core/pkg/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Record is a single audit-log entry from ACL, RBAC, or MLS, tagged with
// the subsystem it came from.
type Record struct {
	Source     string         `json:"source"` // "acl", "rbac", or "mls"
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	Details    map[string]any `json:"details"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Store is a connection-pooled Postgres sink for audit records.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Option is a functional option for configuring a Store.
type Option func(*Store)

// WithLogger sets a custom logger for the store.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open creates a new Store, connects with the pool settings from cfg, and
// runs any pending schema migrations.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auditstore: config cannot be nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("auditstore: database URL cannot be empty")
	}

	s := &Store{
		logger: log.New(log.Writer(), "[AuditStore] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("auditstore: open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	s.db = db

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditstore: ping database: %w", err)
	}

	if err := s.migrateUp(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditstore: migrate: %w", err)
	}

	s.logger.Printf("connected to audit store (max_open=%d, max_idle=%d)", cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Archive persists a batch of audit records in a single transaction.
func (s *Store) Archive(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("auditstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO audit_log (source, action, actor, details, occurred_at) VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("auditstore: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		details, err := json.Marshal(r.Details)
		if err != nil {
			return fmt.Errorf("auditstore: marshal details: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.Source, r.Action, r.Actor, details, r.OccurredAt); err != nil {
			return fmt.Errorf("auditstore: insert record: %w", err)
		}
	}

	return tx.Commit()
}

// QueryBySource returns the most recent limit records for source, newest first.
func (s *Store) QueryBySource(ctx context.Context, source string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, action, actor, details, occurred_at FROM audit_log WHERE source = $1 ORDER BY occurred_at DESC LIMIT $2`,
		source, limit)
	if err != nil {
		return nil, fmt.Errorf("auditstore: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var details []byte
		if err := rows.Scan(&r.Source, &r.Action, &r.Actor, &details, &r.OccurredAt); err != nil {
			return nil, fmt.Errorf("auditstore: scan row: %w", err)
		}
		if err := json.Unmarshal(details, &r.Details); err != nil {
			return nil, fmt.Errorf("auditstore: unmarshal details: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// migration is a single embedded schema migration.
type migration struct {
	version string
	sql     string
}

func (s *Store) migrateUp(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "does not exist") {
			return err
		}
		applied = map[string]bool{}
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.version, err)
		}
		s.logger.Printf("applied migration %s", m.version)
	}
	return nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func loadMigrations() ([]migration, error) {
	var out []migration
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		version := strings.TrimSuffix(d.Name(), ".sql")
		out = append(out, migration{version: version, sql: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}
