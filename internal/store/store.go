// Package store persists named parameter presets in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cjeanneret/CamDeck/internal/camera"
	"github.com/cjeanneret/CamDeck/internal/debug"
)

// ErrNotFound is returned by Load when no preset has the requested name.
var ErrNotFound = errors.New("preset not found")

// Store is a SQLite-backed preset table.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: ensure dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	debug.Verbose("Preset store opened at %s", path)
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS presets (
    name TEXT PRIMARY KEY,
    gain REAL NOT NULL,
    exposure REAL NOT NULL,
    wb_red REAL NOT NULL,
    gamma REAL NOT NULL,
    gamma_enabled INTEGER NOT NULL,
    pixel_format INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save writes p under name, replacing any previous preset of that name.
func (s *Store) Save(ctx context.Context, name string, p camera.Parameters) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO presets (name, gain, exposure, wb_red, gamma, gamma_enabled, pixel_format, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
    gain = excluded.gain,
    exposure = excluded.exposure,
    wb_red = excluded.wb_red,
    gamma = excluded.gamma,
    gamma_enabled = excluded.gamma_enabled,
    pixel_format = excluded.pixel_format,
    updated_at = excluded.updated_at`,
		name,
		p.GainDB,
		p.ExposureUs,
		p.WBRedRatio,
		p.GammaValue,
		boolToInt(p.GammaEnabled),
		int(p.PixelFormat),
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: save %q: %w", name, err)
	}
	debug.Verbose("Preset %q saved", name)
	return nil
}

// Load reads the preset called name. Stored values are clamped to the
// current parameter domains.
func (s *Store) Load(ctx context.Context, name string) (camera.Parameters, error) {
	var (
		p       camera.Parameters
		enabled int
		format  int
	)
	err := s.db.QueryRowContext(ctx, `
SELECT gain, exposure, wb_red, gamma, gamma_enabled, pixel_format
FROM presets WHERE name = ?`, name).Scan(
		&p.GainDB, &p.ExposureUs, &p.WBRedRatio, &p.GammaValue, &enabled, &format,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return camera.Parameters{}, fmt.Errorf("store: load %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return camera.Parameters{}, fmt.Errorf("store: load %q: %w", name, err)
	}
	p.GammaEnabled = enabled != 0
	p.PixelFormat = camera.PixelFormat(format)
	if !p.PixelFormat.Valid() {
		return camera.Parameters{}, fmt.Errorf("store: load %q: %w: %d", name, camera.ErrUnknownPixelFormat, format)
	}
	return p.Clamped(), nil
}

// Names lists stored preset names, most recently saved first.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM presets ORDER BY updated_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("store: list: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
