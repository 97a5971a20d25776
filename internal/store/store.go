// Package store archives measurements in a local sqlite database, allowing
// sessions to be inspected long after the in-memory history has rolled over
package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fako1024/btj7c"

	_ "github.com/mattn/go-sqlite3"
)

const defaultDirPerm = 0o755

// Repository persists measurements and reads them back
type Repository interface {
	Store(ctx context.Context, m *btj7c.Measurement) error
	Recent(ctx context.Context, limit int) (btj7c.Measurements, error)
	Close() error
}

type sqliteRepository struct {
	db *sql.DB
	mu sync.Mutex
}

// NewRepository opens (creating if necessary) the measurement archive at path
func NewRepository(path string) (Repository, error) {
	if path == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteRepository{
		db: db,
	}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS measurements (
            timestamp INTEGER NOT NULL,
            voltage REAL,
            current REAL,
            power REAL,
            resistance REAL,
            mah REAL,
            wh REAL,
            d_plus REAL,
            d_minus REAL,
            temperature INTEGER,
            duration INTEGER,
            lvp REAL,
            ocp REAL,
            raw_hex TEXT
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

func (r *sqliteRepository) Store(ctx context.Context, m *btj7c.Measurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `
        INSERT INTO measurements (
            timestamp, voltage, current, power, resistance,
            mah, wh, d_plus, d_minus,
            temperature, duration, lvp, ocp, raw_hex
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		m.TimeStamp.UnixNano(),
		m.Voltage,
		m.Current,
		m.Power,
		m.Resistance,
		m.Charge,
		m.Energy,
		m.DPlus,
		m.DMinus,
		m.Temperature,
		int64(m.Duration/time.Second),
		m.LVP,
		m.OCP,
		m.RawHex(),
	)
	if err != nil {
		return fmt.Errorf("failed to store measurement: %w", err)
	}

	return nil
}

func (r *sqliteRepository) Recent(ctx context.Context, limit int) (btj7c.Measurements, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `
        SELECT timestamp, voltage, current, power, resistance,
               mah, wh, d_plus, d_minus,
               temperature, duration, lvp, ocp, raw_hex
        FROM measurements
        ORDER BY timestamp DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	var out btj7c.Measurements
	for rows.Next() {
		var (
			m        btj7c.Measurement
			ts       int64
			duration int64
			rawHex   string
		)
		if err := rows.Scan(
			&ts, &m.Voltage, &m.Current, &m.Power, &m.Resistance,
			&m.Charge, &m.Energy, &m.DPlus, &m.DMinus,
			&m.Temperature, &duration, &m.LVP, &m.OCP, &rawHex,
		); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		m.TimeStamp = time.Unix(0, ts)
		m.Duration = time.Duration(duration) * time.Second
		if m.Raw, err = hex.DecodeString(rawHex); err != nil {
			return nil, fmt.Errorf("failed to decode raw frame: %w", err)
		}
		out = append(out, m)
	}

	return out, rows.Err()
}

func (r *sqliteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.db.Close()
}
