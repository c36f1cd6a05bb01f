package reader

import (
	"testing"
	"time"

	"weightwire/internal/domain/model"
)

func upd(minute int) time.Time {
	return time.Date(2023, 9, 24, 18, minute, 0, 0, time.Local)
}

func TestBuildMatrixEmpty(t *testing.T) {
	if rows := buildMatrix(nil, time.Time{}, time.Time{}); rows != nil {
		t.Fatalf("expected nil, got %v", rows)
	}
}

func TestBuildMatrixForwardFill(t *testing.T) {
	events := []model.WeightEvent{
		{Symbol: "A", Dt: at(1), Weight: dec("0.5"), UpdateTime: upd(1)},
		{Symbol: "B", Dt: at(2), Weight: dec("0.3"), UpdateTime: upd(2)},
		{Symbol: "A", Dt: at(4), Weight: dec("-0.2"), UpdateTime: upd(4)},
	}
	rows := buildMatrix(events, time.Time{}, time.Time{})
	if len(rows) != 6 {
		t.Fatalf("expected 6 rows, got %d", len(rows))
	}

	// rows sorted by (dt, symbol): t1/A, t1/B, t2/A, t2/B, t4/A, t4/B
	if !rows[2].Weight.Equal(dec("0.5")) {
		t.Errorf("A not carried forward at t2: %+v", rows[2])
	}
	if !rows[1].Weight.IsZero() {
		t.Errorf("B before first event must be zero: %+v", rows[1])
	}
	if !rows[4].Weight.Equal(dec("-0.2")) || !rows[5].Weight.Equal(dec("0.3")) {
		t.Errorf("tail rows wrong: %+v, %+v", rows[4], rows[5])
	}
}

func TestBuildMatrixUpdateTimeFills(t *testing.T) {
	events := []model.WeightEvent{
		{Symbol: "A", Dt: at(1), Weight: dec("0.5"), UpdateTime: upd(1)},
		{Symbol: "B", Dt: at(3), Weight: dec("0.3"), UpdateTime: upd(3)},
	}
	rows := buildMatrix(events, time.Time{}, time.Time{})

	byCell := map[string]model.MatrixRow{}
	for _, row := range rows {
		byCell[row.Symbol+row.Dt.Format("04")] = row
	}
	// synthetic A@t3 forward-fills A's update time
	if got := byCell["A03"].UpdateTime; !got.Equal(upd(1)) {
		t.Errorf("A@t3 update time = %v", got)
	}
	// synthetic B@t1 precedes B's first event and backfills from it
	if got := byCell["B01"].UpdateTime; !got.Equal(upd(3)) {
		t.Errorf("B@t1 update time = %v", got)
	}
}

func TestBuildMatrixWindowClip(t *testing.T) {
	events := []model.WeightEvent{
		{Symbol: "A", Dt: at(1), Weight: dec("0.5"), UpdateTime: upd(1)},
		{Symbol: "A", Dt: at(3), Weight: dec("0.6"), UpdateTime: upd(3)},
		{Symbol: "A", Dt: at(5), Weight: dec("0.7"), UpdateTime: upd(5)},
	}
	rows := buildMatrix(events, at(2), at(4))
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if !rows[0].Dt.Equal(at(3)) || !rows[0].Weight.Equal(dec("0.6")) {
		t.Fatalf("row = %+v", rows[0])
	}
}
