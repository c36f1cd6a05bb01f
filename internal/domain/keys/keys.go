// Package keys builds and parses the colon-delimited key layout shared by
// every weightwire process:
//
//	<prefix>:<strategy>:<symbol>:<YYYYMMDDHHMMSS>   weight record (hash)
//	<prefix>:<strategy>:<symbol>:LAST               last pointer (hash)
//	<prefix>:<strategy>:<symbol>                    time index (zset)
//	<prefix>:<strategy>:Symbols                     symbol directory (set)
//	<prefix>:META:<strategy>                        strategy metadata (hash)
//	<prefix>:LAST:<strategy>                        strategy last-update marker (hash)
//	<prefix>:<heartbeat-prefix>:<strategy>          liveness timestamp (string)
//	<prefix>:StrategyNames                          strategy directory (set)
//	PUBSUB:<prefix>:<strategy>:<symbol>             notification channel
package keys

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultPrefix scopes all keys of cooperating strategies.
	DefaultPrefix = "Weights"
	// DefaultHeartbeatPrefix scopes liveness timestamps under the prefix.
	DefaultHeartbeatPrefix = "heartbeat"

	// StampLayout is the second-resolution time suffix on record keys.
	StampLayout = "20060102150405"

	lastSegment    = "LAST"
	metaSegment    = "META"
	symbolsSegment = "Symbols"
	namesSegment   = "StrategyNames"
	pubsubSegment  = "PUBSUB"
)

// Schema is the key namespace of one strategy.
type Schema struct {
	Prefix          string
	HeartbeatPrefix string
	Strategy        string
}

// New returns a Schema for strategy, applying the default prefixes for
// empty arguments.
func New(prefix, heartbeatPrefix, strategy string) Schema {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if heartbeatPrefix == "" {
		heartbeatPrefix = DefaultHeartbeatPrefix
	}
	return Schema{Prefix: prefix, HeartbeatPrefix: heartbeatPrefix, Strategy: strategy}
}

// Event returns the record key of (symbol, dt).
func (s Schema) Event(symbol string, dt time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.Prefix, s.Strategy, symbol, Stamp(dt))
}

// Last returns the last-pointer key of symbol.
func (s Schema) Last(symbol string) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.Prefix, s.Strategy, symbol, lastSegment)
}

// Index returns the zset index key of symbol.
func (s Schema) Index(symbol string) string {
	return fmt.Sprintf("%s:%s:%s", s.Prefix, s.Strategy, symbol)
}

// Symbols returns the key of the strategy's symbol directory set.
func (s Schema) Symbols() string {
	return fmt.Sprintf("%s:%s:%s", s.Prefix, s.Strategy, symbolsSegment)
}

// Meta returns the strategy metadata key.
func (s Schema) Meta() string {
	return fmt.Sprintf("%s:%s:%s", s.Prefix, metaSegment, s.Strategy)
}

// LastUpdate returns the strategy-wide last-update marker key.
func (s Schema) LastUpdate() string {
	return fmt.Sprintf("%s:%s:%s", s.Prefix, lastSegment, s.Strategy)
}

// Heartbeat returns the liveness timestamp key.
func (s Schema) Heartbeat() string {
	return fmt.Sprintf("%s:%s:%s", s.Prefix, s.HeartbeatPrefix, s.Strategy)
}

// Names returns the key of the strategy directory set under the prefix.
func (s Schema) Names() string {
	return fmt.Sprintf("%s:%s", s.Prefix, namesSegment)
}

// Channel returns the notification channel of symbol.
func (s Schema) Channel(symbol string) string {
	return fmt.Sprintf("%s:%s:%s:%s", pubsubSegment, s.Prefix, s.Strategy, symbol)
}

// ChannelPattern matches the notification channels of every symbol.
func (s Schema) ChannelPattern() string {
	return fmt.Sprintf("%s:%s:%s:*", pubsubSegment, s.Prefix, s.Strategy)
}

// StrategyPattern matches every key owned by the strategy (records, last
// pointers, indexes, symbol directory). META/LAST/heartbeat keys live
// outside this pattern and are enumerated separately.
func (s Schema) StrategyPattern() string {
	return fmt.Sprintf("%s:%s:*", s.Prefix, s.Strategy)
}

// MetaPattern matches the metadata keys of every strategy under prefix.
func MetaPattern(prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s:%s:*", prefix, metaSegment)
}

// LastPattern matches the last-pointer keys of every strategy under prefix.
func LastPattern(prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s:*:%s", prefix, lastSegment)
}

// Stamp formats dt as the 14-digit key suffix, truncated to seconds.
func Stamp(dt time.Time) string {
	return dt.Truncate(time.Second).Format(StampLayout)
}

// ParseStamp parses a 14-digit key suffix in the local time zone.
func ParseStamp(s string) (time.Time, error) {
	return time.ParseInLocation(StampLayout, s, time.Local)
}

// IsEventKey reports whether key names an individual weight record: its last
// segment is an exact 14-digit stamp, which LAST/META/heartbeat keys never
// carry.
func IsEventKey(key string) bool {
	i := strings.LastIndexByte(key, ':')
	if i < 0 {
		return false
	}
	tail := key[i+1:]
	if len(tail) != 14 {
		return false
	}
	for _, c := range tail {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ParseEventKey splits a record key into its strategy, symbol and event time.
func ParseEventKey(key string) (strategy, symbol string, dt time.Time, err error) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || !IsEventKey(key) {
		return "", "", time.Time{}, fmt.Errorf("not a weight record key: %q", key)
	}
	dt, err = ParseStamp(parts[3])
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("bad time suffix in %q: %w", key, err)
	}
	return parts[1], parts[2], dt, nil
}

// ParseLastKey splits a last-pointer key ("prefix:strategy:symbol:LAST")
// into strategy and symbol.
func ParseLastKey(key string) (strategy, symbol string, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[3] != lastSegment {
		return "", "", false
	}
	return parts[1], parts[2], true
}
