// Package cache implements the two-tier result cache
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Key prefixes for the cached computations.
const (
	PrefixPerformance = "market_performance"
	PrefixFluctuation = "fluctuation"
	PrefixCompare     = "compare"
)

// Key is the logical cache key of one request. Params are canonicalised with
// sorted field names before hashing, so the order they were supplied in does
// not matter.
type Key struct {
	Prefix string
	Market string
	Params map[string]any
}

// NewKey creates a Key.
func NewKey(prefix, market string, params map[string]any) Key {
	return Key{Prefix: prefix, Market: market, Params: params}
}

// Hash returns the first 16 hex characters of the SHA-256 of the canonical params.
func (k Key) Hash() string {
	// encoding/json writes map keys in sorted order
	data, err := json.Marshal(k.Params)
	if err != nil {
		data = []byte(err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// String returns the physical key without namespace: <prefix>:<MARKET>:<hash>.
func (k Key) String() string {
	return k.Prefix + ":" + marketSegment(k.Market) + ":" + k.Hash()
}

// marketSegment makes a market name safe to embed between ':' separators and
// to match with a glob pattern.
func marketSegment(market string) string {
	m := strings.ToUpper(strings.TrimSpace(market))
	if m == "" {
		return "_"
	}
	return strings.NewReplacer(":", "_", "*", "_", "?", "_", "[", "_", "]", "_", "/", "_", " ", "_").Replace(m)
}
