// Package publisher validates, de-duplicates and batches weight events, then
// hands them to the atomic server-side publish script.
package publisher

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"weightwire/internal/domain/keys"
	"weightwire/internal/domain/model"
	"weightwire/internal/infrastructure/storage/redisstore"
)

// DefaultBatchSize bounds the number of events per script invocation.
const DefaultBatchSize = 10000

type Publisher struct {
	store *redisstore.Store
	ks    keys.Schema

	// BatchSize is the chunk size of PublishBatch. Chunk boundaries do not
	// affect notifications; every accepted event broadcasts individually.
	BatchSize int
}

func New(store *redisstore.Store, ks keys.Schema) *Publisher {
	return &Publisher{store: store, ks: ks, BatchSize: DefaultBatchSize}
}

// Publish sends one weight event. In non-overwrite mode an event whose time
// is not strictly newer than the symbol's last pointer is dropped with a
// zero count; that is a normal outcome, not an error.
func (p *Publisher) Publish(ctx context.Context, symbol string, dt time.Time, weight, price decimal.Decimal, ref string, overwrite bool) (int, error) {
	dt = dt.Truncate(time.Second)

	if !overwrite {
		last, err := p.store.HGetAll(ctx, p.ks.Last(symbol))
		if err != nil {
			return 0, err
		}
		if lastDt, ok := parseDt(last["dt"]); ok && !dt.After(lastDt) {
			log.Warn().Str("symbol", symbol).Time("dt", dt).Time("last_dt", lastDt).
				Msg("stale weight dropped")
			return 0, nil
		}
	}

	return p.runScript(ctx, overwrite, []model.WeightEvent{{
		Symbol: symbol, Dt: dt, Weight: weight, Price: price, Ref: ref,
	}})
}

// PublishBatch filters events client-side, then submits them in chunks.
//
// Two filters run before anything reaches the store: per symbol, an event
// whose weight equals the immediately preceding event's weight (exact
// equality) is elided; and in non-overwrite mode, events not strictly newer
// than the symbol's last recorded time are dropped. Surviving events are
// globally ordered by event time and submitted in BatchSize chunks. The
// script processes each chunk in submission order, so an unsorted batch for
// one symbol leaves the last-submitted, not the latest, event in the last
// pointer.
func (p *Publisher) PublishBatch(ctx context.Context, events []model.WeightEvent, overwrite bool) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	received := len(events)

	bySymbol := make(map[string][]model.WeightEvent)
	for _, ev := range events {
		ev.Dt = ev.Dt.Truncate(time.Second)
		bySymbol[ev.Symbol] = append(bySymbol[ev.Symbol], ev)
	}

	kept := make([]model.WeightEvent, 0, received)
	for _, group := range bySymbol {
		sort.SliceStable(group, func(i, j int) bool { return group[i].Dt.Before(group[j].Dt) })
		for i, ev := range group {
			if i > 0 && ev.Weight.Equal(group[i-1].Weight) {
				continue
			}
			kept = append(kept, ev)
		}
	}
	log.Info().Int("received", received).Int("kept", len(kept)).
		Msg("elided repeat weights per symbol")

	if !overwrite {
		lastDts, err := p.lastTimes(ctx, bySymbol)
		if err != nil {
			return 0, err
		}
		fresh := kept[:0]
		for _, ev := range kept {
			if lastDt, ok := lastDts[ev.Symbol]; ok && !ev.Dt.After(lastDt) {
				continue
			}
			fresh = append(fresh, ev)
		}
		if dropped := len(kept) - len(fresh); dropped > 0 {
			log.Warn().Int("dropped", dropped).Msg("stale weights filtered")
		}
		kept = fresh
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Dt.Before(kept[j].Dt) })

	accepted := 0
	for start := 0; start < len(kept); start += p.BatchSize {
		end := start + p.BatchSize
		if end > len(kept) {
			end = len(kept)
		}
		n, err := p.runScript(ctx, overwrite, kept[start:end])
		if err != nil {
			return accepted, err
		}
		accepted += n
		log.Info().Int("chunk", end-start).Int("accepted", accepted).Msg("published chunk")
	}

	if err := p.touchLastUpdate(ctx); err != nil {
		log.Warn().Err(err).Msg("last-update marker refresh failed")
	}
	return accepted, nil
}

func (p *Publisher) lastTimes(ctx context.Context, bySymbol map[string][]model.WeightEvent) (map[string]time.Time, error) {
	symbols := make([]string, 0, len(bySymbol))
	for symbol := range bySymbol {
		symbols = append(symbols, symbol)
	}
	lastKeys := make([]string, len(symbols))
	for i, symbol := range symbols {
		lastKeys[i] = p.ks.Last(symbol)
	}
	rows, err := p.store.HGetAllMulti(ctx, lastKeys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(symbols))
	for i, row := range rows {
		if dt, ok := parseDt(row["dt"]); ok {
			out[symbols[i]] = dt
		}
	}
	return out, nil
}

func (p *Publisher) runScript(ctx context.Context, overwrite bool, events []model.WeightEvent) (int, error) {
	ow := "0"
	if overwrite {
		ow = "1"
	}
	scriptKeys := make([]string, len(events))
	args := make([]any, 0, 2+3*len(events))
	args = append(args, ow, time.Now().Format(model.DtLayout))
	for i, ev := range events {
		scriptKeys[i] = p.ks.Event(ev.Symbol, ev.Dt)
		ref := ev.Ref
		if ref == "" {
			ref = "{}"
		}
		args = append(args, ev.Weight.String(), ev.Price.String(), ref)
	}
	res, err := p.store.Eval(ctx, publishScript, scriptKeys, args)
	if err != nil {
		return 0, err
	}
	n, _ := res.(int64)
	return int(n), nil
}

// touchLastUpdate refreshes the strategy-wide marker after a batch, separate
// from the per-symbol last pointers.
func (p *Publisher) touchLastUpdate(ctx context.Context) error {
	return p.store.HSet(ctx, p.ks.LastUpdate(), map[string]any{
		"name":   p.ks.Strategy,
		"time":   time.Now().Format(model.DtLayout),
		"kwargs": "{}",
	})
}

func parseDt(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	dt, err := time.ParseInLocation(model.DtLayout, s, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return dt, true
}
