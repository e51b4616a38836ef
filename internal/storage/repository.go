// Package storage keeps the stand-in webhook's fill-ups in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fueltrack/internal/core"
	"fueltrack/internal/log"
	ports "fueltrack/internal/sheets"

	_ "modernc.org/sqlite"
)

var _ ports.Store = (*SQLiteRepository)(nil)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger = logger.WithComponent(log.ComponentStorage)
	if _, err := migrateSchema(dbPath, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		logger: logger,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Append implements sheets.FillUpWriter.
func (r *SQLiteRepository) Append(ctx context.Context, f core.FillUp) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fillups (id, filled_at, distance_km, volume_liters, price, price_per_liter, seq)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM fillups))`,
		f.ID, f.Date.UTC().Format(timeLayout), f.DistanceKm, f.VolumeLiters, f.Price, f.PricePerLiter)
	if err != nil {
		return "", fmt.Errorf("insert fill-up: %w", err)
	}

	r.logger.InfoContext(ctx, "Fill-up saved to SQLite",
		log.FieldRecordID, f.ID,
		log.FieldPrice, f.Price,
		log.FieldLiters, f.VolumeLiters,
		log.FieldKm, f.DistanceKm)

	return "sqlite:" + f.ID, nil
}

// ListFillUps implements sheets.FillUpLister.
func (r *SQLiteRepository) ListFillUps(ctx context.Context) ([]core.FillUp, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, filled_at, distance_km, volume_liters, price, price_per_liter
		FROM fillups ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query fill-ups: %w", err)
	}
	defer rows.Close()

	var out []core.FillUp
	for rows.Next() {
		var (
			f        core.FillUp
			filledAt string
		)
		if err := rows.Scan(&f.ID, &filledAt, &f.DistanceKm, &f.VolumeLiters, &f.Price, &f.PricePerLiter); err != nil {
			return nil, fmt.Errorf("scan fill-up: %w", err)
		}
		f.Date, err = time.Parse(timeLayout, filledAt)
		if err != nil {
			return nil, fmt.Errorf("parse filled_at %q: %w", filledAt, err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fill-ups: %w", err)
	}
	return out, nil
}
