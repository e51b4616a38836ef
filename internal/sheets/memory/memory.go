package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fueltrack/internal/core"
)

// SeedFile is read from the data directory by NewFromFiles.
const SeedFile = "seed_fillups.json"

type Store struct {
	mu    sync.Mutex
	items []core.FillUp
}

func New(seed ...core.FillUp) *Store {
	return &Store{items: append([]core.FillUp(nil), seed...)}
}

type seedRow struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	Kilometres float64   `json:"kilometres"`
	Litres     float64   `json:"litres"`
	Total      float64   `json:"total"`
}

// NewFromFiles seeds the store from base/seed_fillups.json. A missing or
// unreadable file yields an empty store; invalid rows are skipped.
func NewFromFiles(base string) *Store {
	data, err := os.ReadFile(filepath.Join(base, SeedFile))
	if err != nil {
		return New()
	}
	var rows []seedRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return New()
	}
	seed := make([]core.FillUp, 0, len(rows))
	for i, r := range rows {
		id := r.ID
		if id == "" {
			id = fmt.Sprintf("seed-%d", i+1)
		}
		f := core.NewFillUp(id, core.FuelEntry{Price: r.Total, VolumeLiters: r.Litres, DistanceKm: r.Kilometres}, r.Date)
		if f.Validate() != nil {
			continue
		}
		seed = append(seed, f)
	}
	return New(seed...)
}

// Append stores the fill-up and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, f core.FillUp) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, f)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

func (s *Store) ListFillUps(_ context.Context) ([]core.FillUp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.FillUp(nil), s.items...), nil
}
