// Package storage defines the offline archive the export command writes
// dense weight matrices into. Redis stays the system of record; the archive
// is a local copy for offline analysis.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"weightwire/internal/domain/model"
)

// WeightRow is one archived matrix cell.
type WeightRow struct {
	Strategy   string
	Symbol     string
	Dt         time.Time
	Weight     decimal.Decimal
	UpdateTime time.Time
}

// Archiver persists weight rows. Saving the same (strategy, symbol, dt)
// twice replaces the row.
type Archiver interface {
	SaveRows(ctx context.Context, rows []WeightRow) error
	CountRows(ctx context.Context, strategy string) (int64, error)
	Close() error
}

// FromMatrix converts a matrix result into archive rows for strategy.
func FromMatrix(strategy string, rows []model.MatrixRow) []WeightRow {
	out := make([]WeightRow, len(rows))
	for i, row := range rows {
		out[i] = WeightRow{
			Strategy:   strategy,
			Symbol:     row.Symbol,
			Dt:         row.Dt,
			Weight:     row.Weight,
			UpdateTime: row.UpdateTime,
		}
	}
	return out
}
