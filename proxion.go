// Package proxion implements the Proxion capability token core.
//
// A capability [Token] is a bearer credential minted by a trusted issuer.
// It binds a set of (action, resource) permissions to an audience, a
// holder key fingerprint, an expiry, and an ordered list of caveats ---
// contextual predicates that must all hold for a request to be allowed.
//
// The basic laws of these tokens:
//
//   - A holder can derive a narrower token from one it holds with
//     [Derive], but never a wider one; derived permissions must be a
//     subset of the parent's, and the parent's caveats are carried
//     forward unconditionally.
//
//   - The signature commits to a canonical payload. Two tokens with the
//     same logical payload have byte-identical canonical forms, identical
//     signatures, and identical revocation ids.
//
//   - A resource server, given a token, a proof of possession, and a
//     concrete request, always reaches an allow/deny [Decision]; the
//     validator never panics through to its caller.
//
// # Cryptography
//
// All the cryptography in the core is symmetric; there are no public
// keys. The integrity scheme is HMAC-SHA256 over the canonical payload,
// with the signature carried as unpadded base64url. The signing key is a
// shared secret between the issuer and the resource server, so
// attenuation never escapes the trust domain.
//
// # Canonical payload
//
// Tokens are signed over a deterministic JSON encoding of their logical
// payload: keys sorted ascending, compact separators, UTF-8. This
// canonical form is the single source of truth for both signing and
// revocation-id derivation. See [Token.CanonicalPayload].
//
// # Basic library usage
//
//   - Mint a token with [Issue].
//
//   - Narrow a token ("attenuate" it) with [Derive].
//
//   - Check a request against a token with [Validator.ValidateRequest].
//
//   - Revoke tokens before their expiry with a revocation Index, and
//     confirm out-of-band enrollment with single-use tickets; both live
//     in their own packages.
package proxion

import (
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// RequestContext is the request under evaluation: what the bearer is
// trying to do, for which audience, and when. IP, DeviceNonce, and
// Method are optional; empty means unspecified.
type RequestContext struct {
	Action      string
	Resource    string
	Audience    string
	Now         time.Time
	IP          string
	DeviceNonce string
	Method      string
}

// Permission is an ordered (action, resource) pair. The action is
// opaque. The resource is an abstract path; the only structural
// semantics it carries is the trailing-slash prefix match applied
// during validation.
type Permission struct {
	Action   string
	Resource string
}

// sortKey orders permissions lexicographically, action first. The NUL
// separator sorts before every other byte, so prefix actions order the
// same way the (action, resource) pair would.
func (p Permission) sortKey() string {
	return p.Action + "\x00" + p.Resource
}

// Permissions is a set of permissions.
type Permissions map[Permission]struct{}

// NewPermissions builds a permission set from the given pairs.
func NewPermissions(perms ...Permission) Permissions {
	ps := make(Permissions, len(perms))
	for _, p := range perms {
		ps[p] = struct{}{}
	}
	return ps
}

// IsSubsetOf reports whether every permission in ps is also in other.
func (ps Permissions) IsSubsetOf(other Permissions) bool {
	for p := range ps {
		if _, ok := other[p]; !ok {
			return false
		}
	}
	return true
}

// Has reports whether the exact pair is in the set.
func (ps Permissions) Has(p Permission) bool {
	_, ok := ps[p]
	return ok
}

// Clone returns a copy of the set.
func (ps Permissions) Clone() Permissions {
	return maps.Clone(ps)
}

// Sorted returns the permissions in canonical (lexicographic) order.
func (ps Permissions) Sorted() []Permission {
	byKey := make(map[string]Permission, len(ps))
	for p := range ps {
		byKey[p.sortKey()] = p
	}

	keys := maps.Keys(byKey)
	slices.Sort(keys)

	sorted := make([]Permission, 0, len(keys))
	for _, k := range keys {
		sorted = append(sorted, byKey[k])
	}

	return sorted
}
