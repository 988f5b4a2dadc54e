// Package revocation provides a time-bounded, in-memory revocation
// index for capability tokens.
//
// Tokens are keyed by their revocation id (the content hash of their
// canonical payload), so every attenuation of a token revokes
// independently. Entries carry a revoked-until instant and are evicted
// lazily: a lookup past that instant behaves as if the entry were
// absent and removes it opportunistically.
package revocation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/proxion-protocol/proxion"
)

// ErrInvalidArgument covers bad revoke parameters: a nil token, a
// non-positive TTL, or a bare id with no TTL to bound the entry.
var ErrInvalidArgument = errors.New("revocation: invalid argument")

// Index is an in-memory revocation set with per-entry TTLs. A single
// mutex guards the map; lazy-eviction writes during lookups happen
// under the same lock, so reads and evictions never race. The zero
// value is not usable; call [NewIndex].
type Index struct {
	mu      sync.Mutex
	entries map[string]time.Time // revocation id → revoked until
}

var _ proxion.RevocationChecker = (*Index)(nil)

func NewIndex() *Index {
	return &Index{entries: make(map[string]time.Time)}
}

// Revoke marks the token revoked until its expiry. Returns the
// revocation id.
func (x *Index) Revoke(t *proxion.Token, now time.Time) (string, error) {
	if t == nil {
		return "", fmt.Errorf("%w: nil token", ErrInvalidArgument)
	}

	return x.put(t.RevocationID(), t.Exp), nil
}

// RevokeFor marks the token revoked until min(now+ttl, token expiry).
func (x *Index) RevokeFor(t *proxion.Token, now time.Time, ttl time.Duration) (string, error) {
	if t == nil {
		return "", fmt.Errorf("%w: nil token", ErrInvalidArgument)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: ttl must be positive", ErrInvalidArgument)
	}

	until := now.Add(ttl)
	if t.Exp.Before(until) {
		until = t.Exp
	}

	return x.put(t.RevocationID(), until), nil
}

// RevokeID marks a caller-supplied id revoked until now+ttl. With no
// token expiry to bound the entry, the TTL is mandatory.
func (x *Index) RevokeID(id string, now time.Time, ttl time.Duration) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty revocation id", ErrInvalidArgument)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: ttl must be positive", ErrInvalidArgument)
	}

	return x.put(id, now.Add(ttl)), nil
}

// IsRevoked reports whether the token is revoked at now. Implements
// [proxion.RevocationChecker].
func (x *Index) IsRevoked(t *proxion.Token, now time.Time) (bool, error) {
	if t == nil {
		return false, fmt.Errorf("%w: nil token", ErrInvalidArgument)
	}

	return x.lookup(t.RevocationID(), now), nil
}

// IsRevokedID reports whether a caller-supplied id is revoked at now.
func (x *Index) IsRevokedID(id string, now time.Time) bool {
	return x.lookup(id, now)
}

// Purge bulk-deletes every entry whose revoked-until instant has
// passed, returning the number removed.
func (x *Index) Purge(now time.Time) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	removed := 0
	for id, until := range x.entries {
		if !now.Before(until) {
			delete(x.entries, id)
			removed++
		}
	}

	return removed
}

// Len reports the number of live entries, counting any not yet lazily
// evicted.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}

func (x *Index) put(id string, until time.Time) string {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.entries[id] = until.UTC()
	return id
}

func (x *Index) lookup(id string, now time.Time) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	until, ok := x.entries[id]
	if !ok {
		return false
	}

	if !now.Before(until) {
		delete(x.entries, id)
		return false
	}

	return true
}
