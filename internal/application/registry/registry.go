// Package registry manages strategy metadata, the strategy-name directory,
// liveness timestamps and destructive wipes.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"weightwire/internal/domain/keys"
	"weightwire/internal/domain/model"
	"weightwire/internal/infrastructure/storage/redisstore"
)

// ErrMetaExists is returned when metadata is already present and overwrite
// was not requested.
var ErrMetaExists = errors.New("strategy metadata already exists")

// ErrWipeAborted is returned when the confirm gate declined a wipe.
var ErrWipeAborted = errors.New("wipe aborted")

type Registry struct {
	store *redisstore.Store
	ks    keys.Schema
}

func New(store *redisstore.Store, ks keys.Schema) *Registry {
	return &Registry{store: store, ks: ks}
}

// SetMeta writes the strategy's self-description and registers its name in
// the directory set. Metadata is write-once: a second call fails with
// ErrMetaExists unless overwrite is set, which deletes and rewrites the
// whole record.
func (r *Registry) SetMeta(ctx context.Context, meta model.StrategyMeta, overwrite bool) error {
	key := r.ks.Meta()
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		if !overwrite {
			log.Warn().Str("strategy", r.ks.Strategy).Msg("metadata already present, pass overwrite to replace")
			return ErrMetaExists
		}
		if _, err := r.store.Del(ctx, key); err != nil {
			return err
		}
		log.Warn().Str("strategy", r.ks.Strategy).Msg("metadata deleted for rewrite")
	}

	extra := "{}"
	if len(meta.Extra) > 0 {
		b, err := json.Marshal(meta.Extra)
		if err != nil {
			return fmt.Errorf("encode extra metadata: %w", err)
		}
		extra = string(b)
	}
	fields := map[string]any{
		"name":          r.ks.Strategy,
		"base_freq":     meta.BaseFreq,
		"key_prefix":    r.ks.Prefix,
		"description":   meta.Description,
		"author":        meta.Author,
		"outsample_sdt": meta.OutsampleSdt,
		"update_time":   time.Now().Format(model.DtLayout),
		"kwargs":        extra,
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return err
	}
	return r.store.SAdd(ctx, r.ks.Names(), r.ks.Strategy)
}

// Meta returns the strategy's metadata, or nil when none was written.
func (r *Registry) Meta(ctx context.Context) (*model.StrategyMeta, error) {
	row, err := r.store.HGetAll(ctx, r.ks.Meta())
	if err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, nil
	}
	meta := metaFromHash(row)
	return &meta, nil
}

// UpdateLast refreshes the strategy-wide last-update marker with optional
// caller metadata.
func (r *Registry) UpdateLast(ctx context.Context, extra map[string]any) error {
	kw := "{}"
	if len(extra) > 0 {
		b, err := json.Marshal(extra)
		if err != nil {
			return fmt.Errorf("encode marker metadata: %w", err)
		}
		kw = string(b)
	}
	err := r.store.HSet(ctx, r.ks.LastUpdate(), map[string]any{
		"name":   r.ks.Strategy,
		"time":   time.Now().Format(model.DtLayout),
		"kwargs": kw,
	})
	if err != nil {
		return err
	}
	log.Info().Str("key", r.ks.LastUpdate()).Msg("last-update marker refreshed")
	return nil
}

// HeartbeatTime returns the strategy's latest liveness timestamp, zero when
// the reporter never wrote.
func (r *Registry) HeartbeatTime(ctx context.Context) (time.Time, error) {
	val, err := r.store.Get(ctx, r.ks.Heartbeat())
	if err != nil || val == "" {
		return time.Time{}, err
	}
	return time.ParseInLocation(model.DtLayout, val, time.Local)
}

// StrategyNames lists every strategy registered under the prefix.
func (r *Registry) StrategyNames(ctx context.Context) ([]string, error) {
	names, err := r.store.SMembers(ctx, r.ks.Names())
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// HeartbeatTimes returns the latest liveness timestamp per strategy. With no
// names given, the whole directory is checked; silent strategies map to the
// zero time.
func (r *Registry) HeartbeatTimes(ctx context.Context, names ...string) (map[string]time.Time, error) {
	if len(names) == 0 {
		var err error
		names, err = r.StrategyNames(ctx)
		if err != nil {
			return nil, err
		}
	}
	out := make(map[string]time.Time, len(names))
	for _, name := range names {
		hk := keys.New(r.ks.Prefix, r.ks.HeartbeatPrefix, name).Heartbeat()
		val, err := r.store.Get(ctx, hk)
		if err != nil {
			return nil, err
		}
		if val == "" {
			log.Warn().Str("strategy", name).Msg("no heartbeat recorded")
			out[name] = time.Time{}
			continue
		}
		dt, err := time.ParseInLocation(model.DtLayout, val, time.Local)
		if err != nil {
			return nil, fmt.Errorf("bad heartbeat value for %s: %w", name, err)
		}
		out[name] = dt
	}
	return out, nil
}

// ListMetas returns every strategy's metadata under the prefix, each with
// its heartbeat time attached. Strategies without metadata are skipped.
func (r *Registry) ListMetas(ctx context.Context) ([]model.StrategyMeta, error) {
	metaKeys, err := r.store.ScanKeys(ctx, keys.MetaPattern(r.ks.Prefix))
	if err != nil {
		return nil, err
	}
	rows, err := r.store.HGetAllMulti(ctx, metaKeys)
	if err != nil {
		return nil, err
	}
	out := make([]model.StrategyMeta, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			log.Warn().Str("key", metaKeys[i]).Msg("empty metadata record")
			continue
		}
		meta := metaFromHash(row)
		hk := keys.New(meta.KeyPrefix, r.ks.HeartbeatPrefix, meta.Name).Heartbeat()
		if val, err := r.store.Get(ctx, hk); err == nil && val != "" {
			meta.Heartbeat, _ = time.ParseInLocation(model.DtLayout, val, time.Local)
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LatestAll returns the last pointer of every (strategy, symbol) under the
// prefix, across all strategies.
func (r *Registry) LatestAll(ctx context.Context) ([]model.WeightEvent, error) {
	lastKeys, err := r.store.ScanKeys(ctx, keys.LastPattern(r.ks.Prefix))
	if err != nil {
		return nil, err
	}
	filtered := lastKeys[:0]
	strategies := make([]string, 0, len(lastKeys))
	for _, key := range lastKeys {
		if strategy, _, ok := keys.ParseLastKey(key); ok {
			filtered = append(filtered, key)
			strategies = append(strategies, strategy)
		}
	}
	rows, err := r.store.HGetAllMulti(ctx, filtered)
	if err != nil {
		return nil, err
	}
	out := make([]model.WeightEvent, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		ev := model.WeightEvent{Strategy: strategies[i], Symbol: row["symbol"], Ref: row["ref"]}
		ev.Weight, _ = decimal.NewFromString(row["weight"])
		ev.Price, _ = decimal.NewFromString(row["price"])
		ev.Dt, _ = time.ParseInLocation(model.DtLayout, row["dt"], time.Local)
		ev.UpdateTime, _ = time.ParseInLocation(model.DtLayout, row["update_time"], time.Local)
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Strategy != out[j].Strategy {
			return out[i].Strategy < out[j].Strategy
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

// Wipe deletes every key the strategy owns: records, last pointers, indexes,
// the symbol directory, metadata, the last-update marker and the heartbeat,
// plus its entry in the strategy directory. The confirm callback gates the
// deletion with the number of keys about to go; pass nil to bypass the gate.
func (r *Registry) Wipe(ctx context.Context, confirm func(keys int) bool) (removed int64, namesRemoved int64, err error) {
	doomed, err := r.store.ScanKeys(ctx, r.ks.StrategyPattern())
	if err != nil {
		return 0, 0, err
	}
	doomed = append(doomed, r.ks.Meta(), r.ks.LastUpdate(), r.ks.Heartbeat())

	if confirm != nil && !confirm(len(doomed)) {
		log.Warn().Str("strategy", r.ks.Strategy).Msg("wipe cancelled")
		return 0, 0, ErrWipeAborted
	}

	removed, err = r.store.Del(ctx, doomed...)
	if err != nil {
		return removed, 0, err
	}
	namesRemoved, err = r.store.SRem(ctx, r.ks.Names(), r.ks.Strategy)
	if err != nil {
		return removed, namesRemoved, err
	}
	log.Info().Str("strategy", r.ks.Strategy).Int64("keys", removed).
		Int64("names", namesRemoved).Msg("strategy wiped")
	return removed, namesRemoved, nil
}

func metaFromHash(row map[string]string) model.StrategyMeta {
	meta := model.StrategyMeta{
		Name:         row["name"],
		BaseFreq:     row["base_freq"],
		KeyPrefix:    row["key_prefix"],
		Description:  row["description"],
		Author:       row["author"],
		OutsampleSdt: row["outsample_sdt"],
	}
	meta.UpdateTime, _ = time.ParseInLocation(model.DtLayout, row["update_time"], time.Local)
	if kw := row["kwargs"]; kw != "" && kw != "{}" {
		_ = json.Unmarshal([]byte(kw), &meta.Extra)
	}
	return meta
}
