// Package ticket provides single-use enrollment tickets: high-entropy
// nonces minted by an issuer, handed out through an out-of-band channel,
// and redeemable exactly once.
package ticket

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrNotFound        = errors.New("ticket not found")
	ErrExpired         = errors.New("ticket expired")
	ErrAlreadyRedeemed = errors.New("ticket already redeemed")
	ErrInvalidTTL      = errors.New("ticket ttl must be positive")
	ErrCorrupted       = errors.New("ticket store corrupted")
)

// Ticket is an opaque single-use nonce. The id is URL-safe and carries
// at least 128 bits of entropy.
type Ticket struct {
	TicketID  string
	ExpiresAt time.Time
}

type record struct {
	expiresAt time.Time
	redeemed  bool
	rpPubKey  string
}

// Store holds outstanding tickets. Records live in a bounded LRU cache
// keyed by a blake2b digest of the ticket id; under capacity pressure
// the least recently used records are evicted, which fails closed (redeeming an
// evicted ticket reports not found). A single mutex guards every
// operation, making Redeem a compare-and-set: no two callers can both
// succeed for the same ticket.
type Store struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *record]

	Log logrus.FieldLogger
}

// DefaultCapacity bounds the package default store.
const DefaultCapacity = 65536

func NewStore(capacity int) (*Store, error) {
	cache, err := lru.New[string, *record](capacity)
	if err != nil {
		return nil, err
	}

	return &Store{cache: cache}, nil
}

// Mint creates a ticket valid for ttl from the current wall clock.
func (s *Store) Mint(ttl time.Duration) (*Ticket, error) {
	return s.MintAt(ttl, time.Now())
}

// MintAt creates a ticket valid for ttl from now.
func (s *Store) MintAt(ttl time.Duration, now time.Time) (*Ticket, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}

	id := newTicketID()
	expiresAt := now.UTC().Add(ttl)

	s.mu.Lock()
	s.cache.Add(storeKey(id), &record{expiresAt: expiresAt})
	s.mu.Unlock()

	return &Ticket{TicketID: id, ExpiresAt: expiresAt}, nil
}

// Redeem marks the ticket used and records the presenter's key. The
// first redemption succeeds; an expired ticket is deleted on lookup and
// reports [ErrExpired]; a second redemption reports [ErrAlreadyRedeemed]
// and the record remains.
func (s *Store) Redeem(ticketID, rpPubKey string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(ticketID)

	rec, ok := s.cache.Get(key)
	if !ok {
		return ErrNotFound
	}
	if rec == nil {
		return ErrCorrupted
	}

	if !now.Before(rec.expiresAt) {
		s.cache.Remove(key)
		return ErrExpired
	}

	if rec.redeemed {
		return ErrAlreadyRedeemed
	}

	rec.redeemed = true
	rec.rpPubKey = rpPubKey

	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{
			"ticket": key[:8],
			"rp":     rpPubKey,
		}).Debug("ticket redeemed")
	}

	return nil
}

// Len reports the number of outstanding records, redeemed ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// ticket ids are stored hashed so a leaked store dump can't be replayed.
func storeKey(ticketID string) string {
	digest := blake2b.Sum256([]byte(ticketID))
	return hex.EncodeToString(digest[:])
}

const ticketIDSize = 24

func newTicketID() string {
	return base64.RawURLEncoding.EncodeToString(rbuf(ticketIDSize))
}

func rbuf(sz int) []byte {
	buf := make([]byte, sz)
	if n, err := rand.Read(buf); n != sz || err != nil {
		log.Panicf("crypto random failed: %d read of %d: err: %s", n, sz, err)
	}

	return buf
}

var (
	defaultStore     *Store
	defaultStoreOnce sync.Once
)

// DefaultStore returns the lazily-initialized process-wide store used
// by the package-level [Mint] and [Redeem].
func DefaultStore() *Store {
	defaultStoreOnce.Do(func() {
		s, err := NewStore(DefaultCapacity)
		if err != nil {
			// DefaultCapacity is a positive constant
			panic(err)
		}
		defaultStore = s
	})

	return defaultStore
}

// Mint creates a ticket in the process-wide store.
func Mint(ttl time.Duration) (*Ticket, error) {
	return DefaultStore().Mint(ttl)
}

// Redeem redeems a ticket from the process-wide store.
func Redeem(ticketID, rpPubKey string, now time.Time) error {
	return DefaultStore().Redeem(ticketID, rpPubKey, now)
}
