package keys

import (
	"testing"
	"time"
)

func TestSchemaKeys(t *testing.T) {
	s := New("", "", "alpha")
	dt := time.Date(2023, 9, 24, 10, 19, 0, 0, time.Local)

	cases := []struct{ got, want string }{
		{s.Event("SFIF9001", dt), "Weights:alpha:SFIF9001:20230924101900"},
		{s.Last("SFIF9001"), "Weights:alpha:SFIF9001:LAST"},
		{s.Index("SFIF9001"), "Weights:alpha:SFIF9001"},
		{s.Symbols(), "Weights:alpha:Symbols"},
		{s.Meta(), "Weights:META:alpha"},
		{s.LastUpdate(), "Weights:LAST:alpha"},
		{s.Heartbeat(), "Weights:heartbeat:alpha"},
		{s.Names(), "Weights:StrategyNames"},
		{s.Channel("SFIF9001"), "PUBSUB:Weights:alpha:SFIF9001"},
		{s.ChannelPattern(), "PUBSUB:Weights:alpha:*"},
		{s.StrategyPattern(), "Weights:alpha:*"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("got %q, want %q", c.got, c.want)
		}
	}
}

func TestStampTruncatesToSecond(t *testing.T) {
	dt := time.Date(2023, 9, 24, 10, 19, 0, 987e6, time.Local)
	if got := Stamp(dt); got != "20230924101900" {
		t.Fatalf("Stamp = %q", got)
	}
	back, err := ParseStamp("20230924101900")
	if err != nil {
		t.Fatalf("ParseStamp: %v", err)
	}
	if !back.Equal(dt.Truncate(time.Second)) {
		t.Fatalf("round trip mismatch: %v", back)
	}
}

func TestIsEventKey(t *testing.T) {
	cases := map[string]bool{
		"Weights:alpha:SFIF9001:20230924101900": true,
		"Weights:alpha:SFIF9001:LAST":           false,
		"Weights:META:alpha":                    false,
		"Weights:heartbeat:alpha":               false,
		"Weights:alpha:SFIF9001":                false,
		"Weights:alpha:SFIF9001:2023092410190":  false, // 13 digits
		"Weights:alpha:SFIF9001:2023092410190x": false,
	}
	for key, want := range cases {
		if got := IsEventKey(key); got != want {
			t.Errorf("IsEventKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestParseEventKey(t *testing.T) {
	strategy, symbol, dt, err := ParseEventKey("Weights:alpha:SFIF9001:20230924101900")
	if err != nil {
		t.Fatalf("ParseEventKey: %v", err)
	}
	if strategy != "alpha" || symbol != "SFIF9001" {
		t.Fatalf("got %s/%s", strategy, symbol)
	}
	want := time.Date(2023, 9, 24, 10, 19, 0, 0, time.Local)
	if !dt.Equal(want) {
		t.Fatalf("dt = %v, want %v", dt, want)
	}

	if _, _, _, err := ParseEventKey("Weights:alpha:SFIF9001:LAST"); err == nil {
		t.Fatal("expected error for LAST key")
	}
}

func TestParseLastKey(t *testing.T) {
	strategy, symbol, ok := ParseLastKey("Weights:alpha:SFIF9001:LAST")
	if !ok || strategy != "alpha" || symbol != "SFIF9001" {
		t.Fatalf("got %s/%s ok=%v", strategy, symbol, ok)
	}
	// the strategy-wide marker is a three-segment key, not a last pointer
	if _, _, ok := ParseLastKey("Weights:LAST:alpha"); ok {
		t.Fatal("strategy marker misread as last pointer")
	}
}
