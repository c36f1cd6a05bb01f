package reader

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"weightwire/internal/application/publisher"
	"weightwire/internal/domain/keys"
	"weightwire/internal/infrastructure/storage/redisstore"
)

func newTestReader(t *testing.T) (*Reader, *publisher.Publisher) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := redisstore.New(rdb)
	ks := keys.New("", "", "alpha")
	return New(store, ks), publisher.New(store, ks)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func at(minute int) time.Time {
	return time.Date(2023, 9, 24, 10, minute, 0, 0, time.Local)
}

func mustPublish(t *testing.T, pub *publisher.Publisher, symbol string, dt time.Time, weight, ref string) {
	t.Helper()
	n, err := pub.Publish(context.Background(), symbol, dt, dec(weight), decimal.Zero, ref, false)
	if err != nil {
		t.Fatalf("publish %s %v: %v", symbol, dt, err)
	}
	if n != 1 {
		t.Fatalf("publish %s %v rejected", symbol, dt)
	}
}

func TestLastAbsentSymbol(t *testing.T) {
	r, _ := newTestReader(t)
	ev, err := r.Last(context.Background(), "UNKNOWN")
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if ev != nil {
		t.Fatalf("expected nil for absent symbol, got %+v", ev)
	}
}

func TestLastTimesAndSymbols(t *testing.T) {
	r, pub := newTestReader(t)
	mustPublish(t, pub, "SFIF9001", at(1), "0.5", "")
	mustPublish(t, pub, "SFIH9002", at(2), "0.3", "")

	symbols, err := r.Symbols(context.Background())
	if err != nil {
		t.Fatalf("Symbols failed: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "SFIF9001" || symbols[1] != "SFIH9002" {
		t.Fatalf("Symbols = %v", symbols)
	}

	times, err := r.LastTimes(context.Background())
	if err != nil {
		t.Fatalf("LastTimes failed: %v", err)
	}
	if !times["SFIF9001"].Equal(at(1)) || !times["SFIH9002"].Equal(at(2)) {
		t.Fatalf("LastTimes = %v", times)
	}
}

func TestLastWeightsIgnoresZero(t *testing.T) {
	r, pub := newTestReader(t)
	mustPublish(t, pub, "SFIF9001", at(1), "0.5", "")
	mustPublish(t, pub, "SFIH9002", at(2), "0.3", "")
	mustPublish(t, pub, "SFIH9002", at(3), "0", "")

	rows, err := r.LastWeights(context.Background(), nil, true)
	if err != nil {
		t.Fatalf("LastWeights failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Symbol != "SFIF9001" {
		t.Fatalf("rows = %+v", rows)
	}

	rows, err = r.LastWeights(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("LastWeights failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	// sorted by (dt, symbol)
	if rows[0].Symbol != "SFIF9001" || rows[1].Symbol != "SFIH9002" {
		t.Fatalf("order = %s, %s", rows[0].Symbol, rows[1].Symbol)
	}
}

func TestHistoryEmptyRange(t *testing.T) {
	r, pub := newTestReader(t)
	mustPublish(t, pub, "SFIF9001", at(5), "0.5", "")

	rows, err := r.History(context.Background(), "SFIF9001", at(1), at(2))
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty history, got %d rows", len(rows))
	}
}

func TestHistoryRangeInclusive(t *testing.T) {
	r, pub := newTestReader(t)
	mustPublish(t, pub, "SFIF9001", at(1), "0.1", "")
	mustPublish(t, pub, "SFIF9001", at(2), "0.2", `{"src":"unit"}`)
	mustPublish(t, pub, "SFIF9001", at(3), "0.3", "not-json")
	mustPublish(t, pub, "SFIF9001", at(4), "0.4", "")

	rows, err := r.History(context.Background(), "SFIF9001", at(2), at(3))
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if !rows[0].Dt.Equal(at(2)) || !rows[1].Dt.Equal(at(3)) {
		t.Fatalf("times = %v, %v", rows[0].Dt, rows[1].Dt)
	}
	if rows[0].RefData == nil || rows[0].RefData["src"] != "unit" {
		t.Errorf("structured ref not decoded: %+v", rows[0])
	}
	// malformed payload passes through raw instead of failing the read
	if rows[1].RefData != nil || rows[1].Ref != "not-json" {
		t.Errorf("raw ref mishandled: %+v", rows[1])
	}
}

func TestMatrixReconstruction(t *testing.T) {
	r, pub := newTestReader(t)
	mustPublish(t, pub, "A", at(1), "0.5", "")
	mustPublish(t, pub, "B", at(2), "0.3", "")
	mustPublish(t, pub, "A", at(3), "0", "")

	rows, err := r.Matrix(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Matrix failed: %v", err)
	}
	// 3 distinct timestamps x 2 symbols
	if len(rows) != 6 {
		t.Fatalf("expected 6 rows, got %d: %+v", len(rows), rows)
	}

	cell := func(dt time.Time, symbol string) decimal.Decimal {
		for _, row := range rows {
			if row.Dt.Equal(dt) && row.Symbol == symbol {
				return row.Weight
			}
		}
		t.Fatalf("missing cell %v %s", dt, symbol)
		return decimal.Zero
	}

	if !cell(at(1), "A").Equal(dec("0.5")) || !cell(at(1), "B").IsZero() {
		t.Error("wrong weights at t1")
	}
	if !cell(at(2), "A").Equal(dec("0.5")) || !cell(at(2), "B").Equal(dec("0.3")) {
		t.Error("wrong weights at t2")
	}
	if !cell(at(3), "A").IsZero() || !cell(at(3), "B").Equal(dec("0.3")) {
		t.Error("wrong weights at t3")
	}

	// every cell, synthetic ones included, carries an update time
	for _, row := range rows {
		if row.UpdateTime.IsZero() {
			t.Errorf("cell %v %s has no update time", row.Dt, row.Symbol)
		}
	}
}

func TestMatrixClipsWindow(t *testing.T) {
	r, pub := newTestReader(t)
	mustPublish(t, pub, "A", at(1), "0.5", "")
	mustPublish(t, pub, "A", at(3), "0.7", "")
	mustPublish(t, pub, "B", at(5), "0.2", "")

	rows, err := r.Matrix(context.Background(), at(3), at(3))
	if err != nil {
		t.Fatalf("Matrix failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	// A carries its own event, B is a leading zero fill
	if !rows[0].Weight.Equal(dec("0.7")) || rows[0].Symbol != "A" {
		t.Errorf("rows[0] = %+v", rows[0])
	}
	if !rows[1].Weight.IsZero() || rows[1].Symbol != "B" {
		t.Errorf("rows[1] = %+v", rows[1])
	}
}
