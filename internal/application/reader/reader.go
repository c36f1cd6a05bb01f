// Package reader reconstructs weight state from the store: point lookups of
// last pointers, ranged history scans over the symbol index, and the dense
// multi-symbol matrix built from sparse change events.
package reader

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"weightwire/internal/domain/keys"
	"weightwire/internal/domain/model"
	"weightwire/internal/infrastructure/storage/redisstore"
)

type Reader struct {
	store *redisstore.Store
	ks    keys.Schema
}

func New(store *redisstore.Store, ks keys.Schema) *Reader {
	return &Reader{store: store, ks: ks}
}

// Last returns the symbol's last pointer, or nil when the symbol has never
// been published.
func (r *Reader) Last(ctx context.Context, symbol string) (*model.WeightEvent, error) {
	row, err := r.store.HGetAll(ctx, r.ks.Last(symbol))
	if err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, nil
	}
	ev := r.eventFromHash(row)
	return &ev, nil
}

// Symbols lists every symbol the strategy has published, from the directory
// set the publish script maintains.
func (r *Reader) Symbols(ctx context.Context) ([]string, error) {
	symbols, err := r.store.SMembers(ctx, r.ks.Symbols())
	if err != nil {
		return nil, err
	}
	sort.Strings(symbols)
	return symbols, nil
}

// LastTimes returns the last event time per symbol in one pipelined round
// trip. With no symbols given, every known symbol is fetched.
func (r *Reader) LastTimes(ctx context.Context, symbols ...string) (map[string]time.Time, error) {
	if len(symbols) == 0 {
		var err error
		symbols, err = r.Symbols(ctx)
		if err != nil {
			return nil, err
		}
	}
	lastKeys := make([]string, len(symbols))
	for i, symbol := range symbols {
		lastKeys[i] = r.ks.Last(symbol)
	}
	rows, err := r.store.HGetAllMulti(ctx, lastKeys)
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

// LastWeights returns the last pointer of each symbol (all known symbols
// when none are named), zero-weight rows optionally dropped, sorted by
// (time, symbol).
func (r *Reader) LastWeights(ctx context.Context, symbols []string, ignoreZero bool) ([]model.WeightEvent, error) {
	if len(symbols) == 0 {
		var err error
		symbols, err = r.Symbols(ctx)
		if err != nil {
			return nil, err
		}
	}
	lastKeys := make([]string, len(symbols))
	for i, symbol := range symbols {
		lastKeys[i] = r.ks.Last(symbol)
	}
	rows, err := r.store.HGetAllMulti(ctx, lastKeys)
	if err != nil {
		return nil, err
	}
	out := make([]model.WeightEvent, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		ev := r.eventFromHash(row)
		if ignoreZero && ev.Weight.IsZero() {
			continue
		}
		out = append(out, ev)
	}
	sortEvents(out)
	return out, nil
}

// History returns the symbol's events with event time in [sdt, edt], in
// time order. An empty range yields an empty result, not an error.
func (r *Reader) History(ctx context.Context, symbol string, sdt, edt time.Time) ([]model.WeightEvent, error) {
	eventKeys, err := r.store.ZRangeByScore(ctx, r.ks.Index(symbol), keys.Stamp(sdt), keys.Stamp(edt))
	if err != nil {
		return nil, err
	}
	if len(eventKeys) == 0 {
		log.Warn().Str("symbol", symbol).Time("sdt", sdt).Time("edt", edt).
			Msg("no history weights")
		return nil, nil
	}

	vals, err := r.store.HMGetMulti(ctx, eventKeys, "weight", "price", "ref")
	if err != nil {
		return nil, err
	}
	out := make([]model.WeightEvent, 0, len(eventKeys))
	for i, key := range eventKeys {
		_, _, dt, err := keys.ParseEventKey(key)
		if err != nil {
			return nil, fmt.Errorf("corrupt index member: %w", err)
		}
		ev := model.WeightEvent{Strategy: r.ks.Strategy, Symbol: symbol, Dt: dt}
		if w, ok := vals[i][0].(string); ok {
			ev.Weight, _ = decimal.NewFromString(w)
		}
		if p, ok := vals[i][1].(string); ok {
			ev.Price, _ = decimal.NewFromString(p)
		}
		if ref, ok := vals[i][2].(string); ok {
			ev.Ref = ref
			ev.DecodeRef()
		}
		out = append(out, ev)
	}
	return out, nil
}

// Matrix rebuilds the gap-free weight history of every symbol between sdt
// and edt (either may be zero for an open end). Sparse change events are
// merged into one row per (distinct event time, symbol), carrying the last
// known weight forward and filling leading gaps with zero.
func (r *Reader) Matrix(ctx context.Context, sdt, edt time.Time) ([]model.MatrixRow, error) {
	symbols, err := r.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	var events []model.WeightEvent
	for _, symbol := range symbols {
		eventKeys, err := r.store.ZRangeByScore(ctx, r.ks.Index(symbol), "-inf", "+inf")
		if err != nil {
			return nil, err
		}
		if len(eventKeys) == 0 {
			continue
		}
		rows, err := r.store.HGetAllMulti(ctx, eventKeys)
		if err != nil {
			return nil, err
		}
		for i, row := range rows {
			if len(row) == 0 || !keys.IsEventKey(eventKeys[i]) {
				continue
			}
			events = append(events, r.eventFromHash(row))
		}
	}
	return buildMatrix(events, sdt, edt), nil
}

func (r *Reader) eventFromHash(row map[string]string) model.WeightEvent {
	ev := model.WeightEvent{Strategy: r.ks.Strategy, Symbol: row["symbol"], Ref: row["ref"]}
	ev.Weight, _ = decimal.NewFromString(row["weight"])
	ev.Price, _ = decimal.NewFromString(row["price"])
	ev.Dt, _ = time.ParseInLocation(model.DtLayout, row["dt"], time.Local)
	ev.UpdateTime, _ = time.ParseInLocation(model.DtLayout, row["update_time"], time.Local)
	ev.DecodeRef()
	return ev
}

func sortEvents(events []model.WeightEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Dt.Equal(events[j].Dt) {
			return events[i].Dt.Before(events[j].Dt)
		}
		return events[i].Symbol < events[j].Symbol
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
