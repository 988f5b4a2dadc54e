package proxion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Token is an issued capability. Tokens are immutable once issued and
// freely shareable across goroutines; they become irrelevant at Exp.
type Token struct {
	TokenID              string
	Permissions          Permissions
	Exp                  time.Time
	Aud                  string
	Caveats              []Caveat
	HolderKeyFingerprint string
	Alg                  string
	Signature            string
}

// IssueOption adjusts issuance defaults. The zero behavior reads the
// wall clock and mints a fresh token id.
type IssueOption func(*issueConfig)

type issueConfig struct {
	now     time.Time
	tokenID string
}

// WithNow pins the issuance instant instead of reading the wall clock.
func WithNow(now time.Time) IssueOption {
	return func(cfg *issueConfig) { cfg.now = now }
}

// WithTokenID supplies the token id instead of minting a fresh one.
// Callers own the uniqueness and entropy of supplied ids.
func WithTokenID(id string) IssueOption {
	return func(cfg *issueConfig) { cfg.tokenID = id }
}

// Issue mints a token. The permission set must be non-empty with
// non-empty components, and exp must be strictly after the issuance
// instant; violations return [ErrInvalidToken]. The returned token
// carries a signature over its canonical payload.
func Issue(perms Permissions, exp time.Time, aud string, caveats []Caveat, holderKeyFingerprint string, key SigningKey, opts ...IssueOption) (*Token, error) {
	var cfg issueConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	now := cfg.now
	if now.IsZero() {
		now = time.Now()
	}

	if len(perms) == 0 {
		return nil, fmt.Errorf("%w: permissions must be non-empty", ErrInvalidToken)
	}
	for p := range perms {
		if p.Action == "" || p.Resource == "" {
			return nil, fmt.Errorf("%w: permission components must be non-empty", ErrInvalidToken)
		}
	}
	if !exp.After(now) {
		return nil, fmt.Errorf("%w: expiration must be in the future", ErrInvalidToken)
	}

	tokenID := cfg.tokenID
	if tokenID == "" {
		tokenID = newTokenID()
	}

	t := &Token{
		TokenID:              tokenID,
		Permissions:          perms.Clone(),
		Exp:                  exp.UTC(),
		Aud:                  aud,
		Caveats:              append([]Caveat(nil), caveats...),
		HolderKeyFingerprint: holderKeyFingerprint,
		Alg:                  AlgHMACSHA256,
	}
	t.Signature = sign(key, t.CanonicalPayload())

	return t, nil
}

// RevocationID is the stable content hash of the token's canonical
// payload: hex SHA-256. It keys the token in a revocation index.
func (t *Token) RevocationID() string {
	sum := sha256.Sum256(t.CanonicalPayload())
	return hex.EncodeToString(sum[:])
}

var tokenIDNamespace = uuid.MustParse("6d6c9d4b-6a3a-4f5e-9e52-8f0f1c3be1a7")

// UUID derives a name-based (SHA-1) UUID for the token from its id. Handy for logging and as a database key.
func (t *Token) UUID() uuid.UUID {
	return uuid.NewSHA1(tokenIDNamespace, []byte(t.TokenID))
}
