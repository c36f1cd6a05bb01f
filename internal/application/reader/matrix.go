package reader

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"weightwire/internal/domain/model"
)

// buildMatrix merges per-symbol sorted event lists into the dense matrix:
// one row per (distinct event time across all symbols, symbol). A symbol's
// weight is its last event at or before the row time, zero before its first
// event. Synthetic rows inherit an update time forward-filled within the
// symbol, backward-filled for rows preceding the first event. The window is
// clipped last so fills see the full history.
func buildMatrix(events []model.WeightEvent, sdt, edt time.Time) []model.MatrixRow {
	if len(events) == 0 {
		return nil
	}

	bySymbol := make(map[string][]model.WeightEvent)
	seen := make(map[int64]time.Time)
	for _, ev := range events {
		bySymbol[ev.Symbol] = append(bySymbol[ev.Symbol], ev)
		seen[ev.Dt.Unix()] = ev.Dt
	}
	times := make([]time.Time, 0, len(seen))
	for _, dt := range seen {
		times = append(times, dt)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	var out []model.MatrixRow
	for symbol, group := range bySymbol {
		sort.SliceStable(group, func(i, j int) bool { return group[i].Dt.Before(group[j].Dt) })

		rows := make([]model.MatrixRow, 0, len(times))
		idx := 0
		cur := decimal.Zero
		started := false
		var lastUpdate time.Time
		for _, dt := range times {
			for idx < len(group) && !group[idx].Dt.After(dt) {
				cur = group[idx].Weight
				lastUpdate = group[idx].UpdateTime
				started = true
				idx++
			}
			row := model.MatrixRow{Dt: dt, Symbol: symbol}
			if started {
				row.Weight = cur
				row.UpdateTime = lastUpdate
			}
			rows = append(rows, row)
		}
		// leading rows have no update time yet; borrow the next known one
		for i := len(rows) - 2; i >= 0; i-- {
			if rows[i].UpdateTime.IsZero() {
				rows[i].UpdateTime = rows[i+1].UpdateTime
			}
		}
		for _, row := range rows {
			if !sdt.IsZero() && row.Dt.Before(sdt) {
				continue
			}
			if !edt.IsZero() && row.Dt.After(edt) {
				continue
			}
			out = append(out, row)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Dt.Equal(out[j].Dt) {
			return out[i].Dt.Before(out[j].Dt)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}
