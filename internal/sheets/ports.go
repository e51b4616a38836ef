// Package sheets defines the storage ports of the stand-in webhook. The real
// automation appends every fill-up to a spreadsheet; memory, SQLite and
// Google Sheets adapters implement the same two ports.
package sheets

import (
	"context"

	"fueltrack/internal/core"
)

// Ports for outbound adapters.
type (
	FillUpWriter interface {
		Append(ctx context.Context, f core.FillUp) (rowRef string, err error)
	}

	// FillUpLister returns every stored fill-up in insertion order.
	FillUpLister interface {
		ListFillUps(ctx context.Context) ([]core.FillUp, error)
	}

	Store interface {
		FillUpWriter
		FillUpLister
	}
)
