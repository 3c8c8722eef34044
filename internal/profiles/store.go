// Package profiles persists named acquisition configuration profiles —
// never sample or session data, which the core keeps entirely in memory.
// It mirrors the teacher's db package: golang-migrate-managed SQLite
// behind a small Store interface.
package profiles

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"ocdscope/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Profile is the persisted form of config.SessionConfig, named so a user
// can save and recall an acquisition setup.
type Profile struct {
	ID                int64
	Name              string
	Method            config.Method
	SampleRateHz      float64
	GDBEndpoint       string
	TelnetEndpoint    string
	ElfPath           string
	PollingIntervalMS int
	RelativeTime      bool
	AutoTruncate      bool
	KeepLastSeconds   float64
	CreatedAt         time.Time
}

// SessionConfig projects the profile onto the session configuration
// surface the samplers actually consume.
func (p Profile) SessionConfig() *config.SessionConfig {
	return &config.SessionConfig{
		Method:            p.Method,
		SampleRateHz:      p.SampleRateHz,
		GDBEndpoint:       p.GDBEndpoint,
		TelnetEndpoint:    p.TelnetEndpoint,
		ElfPath:           p.ElfPath,
		PollingIntervalMS: p.PollingIntervalMS,
		RelativeTime:      p.RelativeTime,
		AutoTruncate:      p.AutoTruncate,
		KeepLastSeconds:   p.KeepLastSeconds,
	}
}

// Store is the CRUD contract over the profile table.
type Store interface {
	Create(p *Profile) (int64, error)
	Update(p *Profile) error
	Get(id int64) (Profile, error)
	List() ([]Profile, error)
	Delete(id int64) error
	Close() error
}

// DB is the SQLite-backed Store.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the SQLite file at path and applies
// pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	d := &DB{sqlDB}
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DB) init() error {
	driver, err := sqlite3.WithInstance(d.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("profiles: sqlite3 driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("profiles: iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("profiles: migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("profiles: migrate up: %w", err)
	}
	return nil
}

// Create inserts p and returns its assigned id.
func (d *DB) Create(p *Profile) (int64, error) {
	res, err := d.Exec(`INSERT INTO profiles
		(name, method, sample_rate_hz, gdb_endpoint, telnet_endpoint, elf_path,
		 polling_interval_ms, relative_time, auto_truncate, keep_last_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, string(p.Method), p.SampleRateHz, p.GDBEndpoint, p.TelnetEndpoint, p.ElfPath,
		p.PollingIntervalMS, p.RelativeTime, p.AutoTruncate, p.KeepLastSeconds)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Update overwrites the row identified by p.ID.
func (d *DB) Update(p *Profile) error {
	_, err := d.Exec(`UPDATE profiles SET
		name=?, method=?, sample_rate_hz=?, gdb_endpoint=?, telnet_endpoint=?, elf_path=?,
		polling_interval_ms=?, relative_time=?, auto_truncate=?, keep_last_seconds=?
		WHERE id=?`,
		p.Name, string(p.Method), p.SampleRateHz, p.GDBEndpoint, p.TelnetEndpoint, p.ElfPath,
		p.PollingIntervalMS, p.RelativeTime, p.AutoTruncate, p.KeepLastSeconds, p.ID)
	return err
}

// Get returns the profile with the given id.
func (d *DB) Get(id int64) (Profile, error) {
	row := d.QueryRow(`SELECT id, name, method, sample_rate_hz, gdb_endpoint, telnet_endpoint,
		elf_path, polling_interval_ms, relative_time, auto_truncate, keep_last_seconds, created_at
		FROM profiles WHERE id=?`, id)
	return scanProfile(row.Scan)
}

// List returns every saved profile, most recently created first.
func (d *DB) List() ([]Profile, error) {
	rows, err := d.Query(`SELECT id, name, method, sample_rate_hz, gdb_endpoint, telnet_endpoint,
		elf_path, polling_interval_ms, relative_time, auto_truncate, keep_last_seconds, created_at
		FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes the profile with the given id.
func (d *DB) Delete(id int64) error {
	_, err := d.Exec(`DELETE FROM profiles WHERE id=?`, id)
	return err
}

func scanProfile(scan func(dest ...any) error) (Profile, error) {
	var p Profile
	var method string
	if err := scan(&p.ID, &p.Name, &method, &p.SampleRateHz, &p.GDBEndpoint, &p.TelnetEndpoint,
		&p.ElfPath, &p.PollingIntervalMS, &p.RelativeTime, &p.AutoTruncate, &p.KeepLastSeconds, &p.CreatedAt); err != nil {
		return Profile{}, err
	}
	p.Method = config.Method(method)
	return p, nil
}
