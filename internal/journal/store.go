package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// Config selects the database backing the journal.
type Config struct {
	Type        string // sqlite | postgres
	SQLitePath  string
	PostgresURL string
}

// migrations are applied in order; each carries one statement set per dialect.
var migrations = []struct {
	version  int
	sqlite   string
	postgres string
}{
	{
		version: 1,
		sqlite: `
CREATE TABLE IF NOT EXISTS diagnoses (
    id            TEXT PRIMARY KEY,
    alert_summary TEXT NOT NULL,
    result        TEXT NOT NULL DEFAULT '',
    outcome       TEXT NOT NULL DEFAULT '',
    turns         INTEGER NOT NULL DEFAULT 0,
    observations  INTEGER NOT NULL DEFAULT 0,
    history       TEXT NOT NULL DEFAULT '[]',
    error         TEXT NOT NULL DEFAULT '',
    started_at    DATETIME NOT NULL,
    finished_at   DATETIME NOT NULL,
    duration_ms   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_diagnoses_started_at ON diagnoses(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_diagnoses_outcome ON diagnoses(outcome);
`,
		postgres: `
CREATE TABLE IF NOT EXISTS diagnoses (
    id            TEXT PRIMARY KEY,
    alert_summary TEXT NOT NULL,
    result        TEXT NOT NULL DEFAULT '',
    outcome       TEXT NOT NULL DEFAULT '',
    turns         INTEGER NOT NULL DEFAULT 0,
    observations  INTEGER NOT NULL DEFAULT 0,
    history       TEXT NOT NULL DEFAULT '[]',
    error         TEXT NOT NULL DEFAULT '',
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ NOT NULL,
    duration_ms   BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_diagnoses_started_at ON diagnoses(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_diagnoses_outcome ON diagnoses(outcome);
`,
	},
}

// sqlStore implements Store over sqlx for both dialects. Queries are written
// with ? placeholders and rebound for the driver.
type sqlStore struct {
	db      *sqlx.DB
	dialect string
}

// Open connects to the configured database and applies pending migrations.
func Open(cfg Config) (Store, error) {
	switch cfg.Type {
	case "", "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	case "postgres":
		return NewPostgresStore(cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

// NewSQLiteStore opens (or creates) a SQLite journal. ":memory:" is accepted.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One connection: SQLite serializes writers anyway, and every
	// connection to ":memory:" would otherwise see its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	return newStore(db, "sqlite")
}

// NewPostgresStore connects to PostgreSQL.
func NewPostgresStore(connectionString string) (Store, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newStore(db, "postgres")
}

func newStore(db *sqlx.DB, dialect string) (Store, error) {
	s := &sqlStore{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqlStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.Get(&count, s.db.Rebind(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`), m.version); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		stmt := m.sqlite
		if s.dialect == "postgres" {
			stmt = m.postgres
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(s.db.Rebind(`INSERT INTO schema_versions(version) VALUES(?)`), m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqlStore) Save(ctx context.Context, rec *Record) error {
	if rec.RunID == "" {
		return errors.New("save diagnosis: run ID is required")
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO diagnoses (id, alert_summary, result, outcome, turns, observations, history, error, started_at, finished_at, duration_ms)
		VALUES (:id, :alert_summary, :result, :outcome, :turns, :observations, :history, :error, :started_at, :finished_at, :duration_ms)
		ON CONFLICT(id) DO UPDATE SET
			alert_summary = excluded.alert_summary,
			result = excluded.result,
			outcome = excluded.outcome,
			turns = excluded.turns,
			observations = excluded.observations,
			history = excluded.history,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			duration_ms = excluded.duration_ms
	`, rec)
	if err != nil {
		return fmt.Errorf("save diagnosis %s: %w", rec.RunID, err)
	}
	return nil
}

func (s *sqlStore) Get(ctx context.Context, runID string) (*Record, error) {
	var rec Record
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(`SELECT * FROM diagnoses WHERE id = ?`), runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get diagnosis %s: %w", runID, err)
	}
	return &rec, nil
}

func (s *sqlStore) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	records := []*Record{}
	err := s.db.SelectContext(ctx, &records, s.db.Rebind(`
		SELECT id, alert_summary, result, outcome, turns, observations, '' AS history, error, started_at, finished_at, duration_ms
		FROM diagnoses
		ORDER BY started_at DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("list diagnoses: %w", err)
	}
	return records, nil
}

func (s *sqlStore) CountByOutcome(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Outcome string `db:"outcome"`
		N       int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT outcome, COUNT(*) AS n FROM diagnoses GROUP BY outcome`); err != nil {
		return nil, fmt.Errorf("count diagnoses: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Outcome] = r.N
	}
	return counts, nil
}

func (s *sqlStore) Close() error { return s.db.Close() }

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
