// Package store persists the normalized schema behind domain.Store. One
// database/sql implementation serves both backends: modernc sqlite (default,
// file or in-memory) and Postgres through the pgx stdlib driver; only
// placeholder style and a few column types differ per dialect.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"icephys/internal/adapter"
	"icephys/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Store = (*Store)(nil)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// Config selects the backend and the schema table-name prefix.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string
	// DSN is the database path (sqlite) or connection string (postgres).
	DSN string
	// Prefix is prepended to every table name, e.g. "icephys_".
	Prefix string
}

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// OverrideSQLOpen swaps the sql.Open function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}

// Store implements domain.Store over database/sql. The optional adapter set
// backs the Open* helpers that decode file-reference columns on read.
type Store struct {
	db       *sql.DB
	dialect  dialect
	prefix   string
	adapters *adapter.Set
}

// Open connects, applies the DDL, and returns the store. adapters may be nil
// when no decode-on-read access is needed.
func Open(cfg Config, adapters *adapter.Set) (*Store, error) {
	driverName := cfg.Driver
	var d dialect
	switch cfg.Driver {
	case "", "sqlite":
		driverName = "sqlite"
		d = dialectSQLite
	case "postgres", "pgx":
		driverName = "pgx"
		d = dialectPostgres
	default:
		return nil, errors.Newf("unknown database driver %q", cfg.Driver)
	}
	dsn := cfg.DSN
	if dsn == "" && d == dialectSQLite {
		dsn = "icephys.db"
	}
	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, errors.Wrapf(err, "open %s store", driverName)
	}
	s := &Store{db: db, dialect: d, prefix: cfg.Prefix, adapters: adapters}
	if d == dialectSQLite {
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			return nil, errors.Wrap(err, "enable sqlite foreign keys")
		}
	}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) table(name string) string { return s.prefix + name }

// q rewrites ? placeholders to $n for the postgres dialect.
func (s *Store) q(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) migrate() error {
	blob, real := "BLOB", "REAL"
	if s.dialect == dialectPostgres {
		blob, real = "BYTEA", "DOUBLE PRECISION"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			subject_id TEXT NOT NULL,
			session_time TEXT NOT NULL,
			nwb_file TEXT NOT NULL,
			PRIMARY KEY (subject_id, session_time)
		)`, s.table("session")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			brain_region TEXT NOT NULL,
			hemisphere TEXT NOT NULL,
			coordinate_ref TEXT NOT NULL,
			coordinate_ap %[2]s NOT NULL,
			coordinate_ml %[2]s NOT NULL,
			coordinate_dv %[2]s NOT NULL,
			PRIMARY KEY (brain_region, hemisphere)
		)`, s.table("brain_location"), real),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			device_name TEXT PRIMARY KEY,
			device_desc TEXT NOT NULL DEFAULT ''
		)`, s.table("whole_cell_device")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			subject_id TEXT NOT NULL,
			session_time TEXT NOT NULL,
			cell_id TEXT NOT NULL,
			cell_type TEXT NOT NULL,
			brain_region TEXT NOT NULL,
			hemisphere TEXT NOT NULL,
			device_name TEXT NOT NULL,
			PRIMARY KEY (subject_id, session_time, cell_id),
			FOREIGN KEY (subject_id, session_time) REFERENCES %s (subject_id, session_time),
			FOREIGN KEY (brain_region, hemisphere) REFERENCES %s (brain_region, hemisphere),
			FOREIGN KEY (device_name) REFERENCES %s (device_name)
		)`, s.table("cell"), s.table("session"), s.table("brain_location"), s.table("whole_cell_device")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			subject_id TEXT NOT NULL,
			session_time TEXT NOT NULL,
			lick_trace_left %[2]s NOT NULL,
			lick_trace_right %[2]s NOT NULL,
			lick_trace_start_time %[3]s NOT NULL,
			lick_trace_sampling_rate %[3]s NOT NULL,
			PRIMARY KEY (subject_id, session_time),
			FOREIGN KEY (subject_id, session_time) REFERENCES %[4]s (subject_id, session_time)
		)`, s.table("lick_trace"), blob, real, s.table("session")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			subject_id TEXT NOT NULL,
			session_time TEXT NOT NULL,
			cell_id TEXT NOT NULL,
			nwb_patch_clamp TEXT NOT NULL,
			membrane_potential %[2]s NOT NULL,
			membrane_potential_wo_spike %[2]s NOT NULL,
			membrane_potential_start_time %[3]s NOT NULL,
			membrane_potential_sampling_rate %[3]s NOT NULL,
			PRIMARY KEY (subject_id, session_time, cell_id),
			FOREIGN KEY (subject_id, session_time, cell_id) REFERENCES %[4]s (subject_id, session_time, cell_id)
		)`, s.table("membrane_potential"), blob, real, s.table("cell")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			subject_id TEXT NOT NULL,
			session_time TEXT NOT NULL,
			cell_id TEXT NOT NULL,
			nwb_current_stim TEXT NOT NULL,
			current_injection %[2]s NOT NULL,
			current_injection_start_time %[3]s NOT NULL,
			current_injection_sampling_rate %[3]s NOT NULL,
			PRIMARY KEY (subject_id, session_time, cell_id),
			FOREIGN KEY (subject_id, session_time, cell_id) REFERENCES %[4]s (subject_id, session_time, cell_id)
		)`, s.table("current_injection"), blob, real, s.table("cell")),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "apply schema ddl")
		}
	}
	return nil
}

// Session times are stored as RFC3339Nano UTC strings in both dialects.
func encodeTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "decode session time %q", s)
	}
	return t, nil
}
