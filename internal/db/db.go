package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	_ "modernc.org/sqlite"
)

// ErrConflict is returned when an update carries a stale version token.
var ErrConflict = errors.New("version conflict")

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// DB wraps a SQLite or PostgreSQL connection pool.
type DB struct {
	conn     *sql.DB
	postgres bool
}

// Open is the single client factory for the store. A postgres:// or
// postgresql:// URL connects through pgx; anything else is a SQLite path
// (":memory:" included). Migrations run before Open returns.
func Open(dsn string) (*DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		conn, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		d := &DB{conn: conn, postgres: true}
		if err := d.migrate(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return d, nil
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	d := &DB{conn: conn}
	if err := d.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

func (d *DB) migrate() error {
	_, err := d.conn.Exec(`
		CREATE TABLE IF NOT EXISTS servers (
			id               TEXT PRIMARY KEY,
			hostname         TEXT NOT NULL,
			serial_number    TEXT,
			brand            TEXT,
			model            TEXT,
			ip_address       TEXT,
			ip_oob           TEXT,
			operating_system TEXT,
			dc_site          TEXT NOT NULL,
			dc_building      TEXT,
			dc_floor         TEXT,
			dc_room          TEXT,
			rack             TEXT,
			unit             INTEGER,
			device_type      TEXT NOT NULL,
			allocation       TEXT,
			environment      TEXT,
			status           TEXT,
			warranty         TEXT,
			notes            TEXT,
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_servers_hostname ON servers(hostname);
		CREATE INDEX IF NOT EXISTS idx_servers_status ON servers(status);
		CREATE INDEX IF NOT EXISTS idx_servers_location ON servers(dc_site, dc_building, dc_floor, dc_room);
		CREATE INDEX IF NOT EXISTS idx_servers_rack ON servers(rack);

		CREATE TABLE IF NOT EXISTS dashboards (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id    TEXT NOT NULL,
			visibility  TEXT NOT NULL DEFAULT 'private',
			status      TEXT NOT NULL DEFAULT 'active',
			layout      TEXT NOT NULL DEFAULT '[]',
			settings    TEXT NOT NULL DEFAULT '{}',
			version     INTEGER NOT NULL DEFAULT 1,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_dashboards_owner ON dashboards(owner_id);

		CREATE TABLE IF NOT EXISTS dashboard_widgets (
			id           TEXT PRIMARY KEY,
			dashboard_id TEXT NOT NULL REFERENCES dashboards(id) ON DELETE CASCADE,
			widget_type  TEXT NOT NULL,
			title        TEXT NOT NULL DEFAULT '',
			position_x   INTEGER NOT NULL DEFAULT 0,
			position_y   INTEGER NOT NULL DEFAULT 0,
			width        INTEGER NOT NULL,
			height       INTEGER NOT NULL,
			config       TEXT NOT NULL,
			data_source  TEXT NOT NULL,
			filters      TEXT NOT NULL DEFAULT '[]',
			sort_order   INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_widgets_dashboard ON dashboard_widgets(dashboard_id);

		CREATE TABLE IF NOT EXISTS enum_colors (
			id         TEXT PRIMARY KEY,
			category   TEXT NOT NULL,
			value      TEXT NOT NULL,
			color      TEXT NOT NULL,
			user_id    TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (category, value, user_id)
		);

		CREATE TABLE IF NOT EXISTS rack_metadata (
			rack        TEXT PRIMARY KEY,
			dc_site     TEXT NOT NULL,
			dc_building TEXT,
			dc_floor    TEXT,
			dc_room     TEXT,
			total_units INTEGER NOT NULL DEFAULT 42,
			description TEXT NOT NULL DEFAULT '',
			updated_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS property_definitions (
			key           TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			property_type TEXT NOT NULL,
			options       TEXT NOT NULL DEFAULT '[]',
			active        INTEGER NOT NULL DEFAULT 1,
			created_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS user_roles (
			user_id    TEXT PRIMARY KEY,
			role       TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS user_preferences (
			user_id    TEXT PRIMARY KEY,
			filters    TEXT NOT NULL DEFAULT '{}',
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS activity_logs (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL DEFAULT '',
			action      TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id   TEXT NOT NULL DEFAULT '',
			details     TEXT NOT NULL DEFAULT '{}',
			created_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_activity_created ON activity_logs(created_at);
	`)
	return err
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Ping verifies the database connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (d *DB) rebind(q string) string {
	if !d.postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// nullString stores empty optional text as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func rowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
