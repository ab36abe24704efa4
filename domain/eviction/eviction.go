// Package eviction implements the in-memory cache tier of the engine: an
// Adaptive Replacement Cache and a windowed TinyLFU, partitioned per model.
// The tier is a cache of the authoritative scalar and vector stores, so
// eviction here never touches persistent state.
package eviction

import (
	"fmt"
	"strings"
)

// Policy selects the replacement algorithm of a tier.
type Policy string

// Supported policies.
const (
	PolicyARC      Policy = "ARC"
	PolicyWTinyLFU Policy = "WTINYLFU"
)

// ParsePolicy parses a policy name, case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ARC":
		return PolicyARC, nil
	case "WTINYLFU", "W-TINYLFU":
		return PolicyWTinyLFU, nil
	default:
		return "", fmt.Errorf("unknown eviction policy %q", s)
	}
}

// Cache is a bounded key/value map under a replacement policy. Implementations
// serialise their own mutations; lookups mutate recency state and therefore
// count as writes.
type Cache[V any] interface {
	// Get returns the value for key, promoting it per the policy.
	Get(key string) (V, bool)

	// Put inserts or refreshes key. The policy may decline admission or evict
	// another resident entry to make room.
	Put(key string, value V)

	// Remove drops key from every internal structure, ghosts included.
	Remove(key string) bool

	// Len reports the number of resident entries (ghosts excluded).
	Len() int

	// Clear drops all entries and resets adaptive state.
	Clear()
}

// Loader fetches a value for a key on a ghost hit, typically from the
// authoritative scalar store.
type Loader[V any] func(key string) (V, bool)
