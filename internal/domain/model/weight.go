package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DtLayout is the human-readable timestamp format stored in record hashes.
const DtLayout = "2006-01-02 15:04:05"

// WeightEvent is one target-position weight fact for a symbol. Identity is
// (strategy, symbol, dt) with dt truncated to whole seconds; events are
// immutable once accepted by the store.
type WeightEvent struct {
	Strategy   string
	Symbol     string
	Dt         time.Time
	Weight     decimal.Decimal
	Price      decimal.Decimal
	Ref        string
	RefData    map[string]any // decoded Ref when it parses as a JSON object
	UpdateTime time.Time
}

// DecodeRef fills RefData when Ref holds a JSON object. Payloads that fail
// to decode stay available as the raw string.
func (e *WeightEvent) DecodeRef() {
	if e.Ref == "" {
		return
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(e.Ref), &m); err == nil {
		e.RefData = m
	}
}

// MatrixRow is one cell of the dense weight matrix: the effective weight of
// a symbol at a timestamp, including forward-filled synthetic cells.
type MatrixRow struct {
	Dt         time.Time
	Symbol     string
	Weight     decimal.Decimal
	UpdateTime time.Time
}

// StrategyMeta is the self-description record a strategy writes once.
type StrategyMeta struct {
	Name         string
	BaseFreq     string
	KeyPrefix    string
	Description  string
	Author       string
	OutsampleSdt string // YYYYMMDD
	UpdateTime   time.Time
	Extra        map[string]string
	Heartbeat    time.Time // filled by cross-strategy listings, zero otherwise
}
