package proxion

import (
	"encoding/json"
	"time"
)

// canonicalPayload is the logical token payload in its canonical shape.
// Field order matches ascending key order, so the stdlib encoder emits
// the exact byte layout the signature commits to: keys sorted, compact
// separators, UTF-8.
type canonicalPayload struct {
	Aud                  string     `json:"aud"`
	Caveats              []string   `json:"caveats"`
	Exp                  string     `json:"exp"`
	HolderKeyFingerprint string     `json:"holder_key_fingerprint"`
	Permissions          [][]string `json:"permissions"`
	TokenID              string     `json:"token_id"`
}

// canonicalBytes encodes the payload deterministically. This is the
// single source of truth for signing and revocation-id derivation; no
// other field participates.
func canonicalBytes(tokenID string, perms Permissions, exp time.Time, aud string, caveats []Caveat, holderKeyFingerprint string) []byte {
	sorted := perms.Sorted()
	permLists := make([][]string, 0, len(sorted))
	for _, p := range sorted {
		permLists = append(permLists, []string{p.Action, p.Resource})
	}

	caveatIDs := make([]string, 0, len(caveats))
	for _, c := range caveats {
		caveatIDs = append(caveatIDs, c.CaveatID())
	}

	buf, err := json.Marshal(&canonicalPayload{
		Aud:                  aud,
		Caveats:              caveatIDs,
		Exp:                  exp.UTC().Format(time.RFC3339Nano),
		HolderKeyFingerprint: holderKeyFingerprint,
		Permissions:          permLists,
		TokenID:              tokenID,
	})
	if err != nil {
		// strings and slices of strings always marshal
		panic(err)
	}

	return buf
}

// CanonicalPayload returns the token's canonical payload bytes.
func (t *Token) CanonicalPayload() []byte {
	return canonicalBytes(t.TokenID, t.Permissions, t.Exp, t.Aud, t.Caveats, t.HolderKeyFingerprint)
}
