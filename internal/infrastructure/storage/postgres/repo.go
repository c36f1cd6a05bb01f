package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"weightwire/internal/domain/model"
	"weightwire/internal/infrastructure/storage"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

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
  id BIGSERIAL PRIMARY KEY,
  strategy TEXT NOT NULL,
  symbol TEXT NOT NULL,
  dt TIMESTAMP NOT NULL,
  weight NUMERIC NOT NULL,
  update_time TIMESTAMP NOT NULL,
  created_at BIGINT NOT NULL,
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
VALUES($1, $2, $3, $4, $5, $6)
ON CONFLICT(strategy, symbol, dt) DO UPDATE SET
  weight = EXCLUDED.weight,
  update_time = EXCLUDED.update_time`)
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
		`SELECT COUNT(*) FROM weights WHERE strategy = $1`, strategy).Scan(&n)
	return n, err
}

var _ storage.Archiver = (*Repo)(nil)
