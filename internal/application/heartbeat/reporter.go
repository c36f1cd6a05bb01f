// Package heartbeat keeps a strategy's liveness timestamp fresh so readers
// can detect a dead publisher.
package heartbeat

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"weightwire/internal/domain/keys"
	"weightwire/internal/domain/model"
	"weightwire/internal/infrastructure/storage/redisstore"
)

// DefaultInterval is the time between liveness writes.
const DefaultInterval = 15 * time.Second

// Reporter periodically writes the wall clock to the strategy's heartbeat
// key. It shares nothing with the publish path except the store connection;
// a failed write is logged and the next tick retries unconditionally.
type Reporter struct {
	store *redisstore.Store
	ks    keys.Schema

	// Interval between writes, DefaultInterval unless changed before Run.
	Interval time.Duration
}

func New(store *redisstore.Store, ks keys.Schema) *Reporter {
	return &Reporter{store: store, ks: ks, Interval: DefaultInterval}
}

// Run writes immediately, then on every tick until ctx is cancelled. Run it
// on its own goroutine alongside the publishing client.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.beat(ctx)
		}
	}
}

func (r *Reporter) beat(ctx context.Context) {
	err := r.store.Set(ctx, r.ks.Heartbeat(), time.Now().Format(model.DtLayout))
	if err != nil {
		log.Error().Err(err).Str("strategy", r.ks.Strategy).Msg("heartbeat write failed")
	}
}
