package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"weightwire/internal/domain/model"
	"weightwire/internal/infrastructure/storage"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS weights (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  strategy TEXT NOT NULL,
  symbol TEXT NOT NULL,
  dt TEXT NOT NULL,
  weight TEXT NOT NULL,
  update_time TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  UNIQUE(strategy, symbol, dt)
);
CREATE INDEX IF NOT EXISTS idx_weights_strategy_symbol ON weights(strategy, symbol);
`)
	return err
}

func (r *Repo) SaveRows(ctx context.Context, rows []storage.WeightRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO weights(strategy, symbol, dt, weight, update_time, created_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(strategy, symbol, dt) DO UPDATE SET
  weight = excluded.weight,
  update_time = excluded.update_time`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, row := range rows {
		_, err := stmt.ExecContext(ctx, row.Strategy, row.Symbol,
			row.Dt.Format(model.DtLayout), row.Weight.String(),
			row.UpdateTime.Format(model.DtLayout), now)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) CountRows(ctx context.Context, strategy string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM weights WHERE strategy = ?`, strategy).Scan(&n)
	return n, err
}

var _ storage.Archiver = (*Repo)(nil)
