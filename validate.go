package proxion

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Decision is the outcome of a validation call. A denial carries one of
// the Reason constants; the successful outcome is [Allow].
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the single successful outcome.
var Allow = Decision{Allowed: true}

// Denial reasons, in check order.
const (
	ReasonRevoked           = "revoked"
	ReasonRevocationError   = "revocation_error"
	ReasonExpired           = "expired"
	ReasonAudienceMismatch  = "audience_mismatch"
	ReasonInvalidProof      = "invalid_proof"
	ReasonPermissionMissing = "permission_missing"
	ReasonCaveatFailed      = "caveat_failed"
	ReasonCaveatError       = "caveat_error"
	ReasonError             = "error"
)

// RevocationChecker reports whether a token is currently revoked. The
// revocation package's Index implements it.
type RevocationChecker interface {
	IsRevoked(t *Token, now time.Time) (bool, error)
}

// ProofVerifier replaces the default proof-of-possession rule. It
// receives the token, the request context, and the presented proof.
type ProofVerifier func(t *Token, ctx *RequestContext, proof map[string]string) bool

// Validator checks requests against tokens. The zero value applies the
// default proof rule, skips the revocation check, and logs nothing; all
// fields are optional.
type Validator struct {
	// Revocations, if set, is consulted before any other check.
	Revocations RevocationChecker

	// VerifyProof, if set, replaces the default rule that the proof
	// carry the token's holder key fingerprint.
	VerifyProof ProofVerifier

	Log logrus.FieldLogger
}

// ValidateRequest checks the request against the token in fixed order:
// revocation, integrity, expiry, audience, proof of possession,
// permission match, caveats. The first failing check is the reported
// reason. ValidateRequest is total: it never panics through to the
// caller, and any unexpected fault denies with [ReasonError].
func (v *Validator) ValidateRequest(t *Token, ctx *RequestContext, proof map[string]string, key SigningKey) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			if v.Log != nil {
				v.Log.WithField("panic", r).Warn("validation fault")
			}
			d = Decision{Allowed: false, Reason: ReasonError}
		}
	}()

	if t == nil || ctx == nil {
		return v.deny(ReasonError)
	}

	if v.Revocations != nil {
		revoked, err := checkRevoked(v.Revocations, t, ctx.Now)
		if err != nil {
			return v.deny(ReasonRevocationError)
		}
		if revoked {
			return v.deny(ReasonRevoked)
		}
	}

	if err := Verify(t, key); err != nil {
		return v.deny(ReasonError)
	}

	if !ctx.Now.Before(t.Exp) {
		return v.deny(ReasonExpired)
	}

	if t.Aud != ctx.Audience {
		return v.deny(ReasonAudienceMismatch)
	}

	proofOK := false
	if v.VerifyProof != nil {
		proofOK = v.VerifyProof(t, ctx, proof)
	} else {
		proofOK = defaultProofCheck(t, proof)
	}
	if !proofOK {
		return v.deny(ReasonInvalidProof)
	}

	if !permissionMatch(t.Permissions, ctx.Action, ctx.Resource) {
		return v.deny(ReasonPermissionMissing)
	}

	for _, c := range t.Caveats {
		ok, err := evaluateCaveat(c, ctx)
		if err != nil {
			return v.deny(ReasonCaveatError)
		}
		if !ok {
			return v.deny(ReasonCaveatFailed)
		}
	}

	return Allow
}

// ValidateRequest checks a request with a zero [Validator]: default
// proof rule, no revocation check.
func ValidateRequest(t *Token, ctx *RequestContext, proof map[string]string, key SigningKey) Decision {
	v := Validator{}
	return v.ValidateRequest(t, ctx, proof, key)
}

func (v *Validator) deny(reason string) Decision {
	if v.Log != nil {
		v.Log.WithField("reason", reason).Debug("request denied")
	}
	return Decision{Allowed: false, Reason: reason}
}

// checkRevoked shields the pipeline from a misbehaving checker; a panic
// surfaces as an error and ultimately as a revocation_error denial.
func checkRevoked(rc RevocationChecker, t *Token, now time.Time) (revoked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			revoked = false
			err = fmt.Errorf("revocation check: %v", r)
		}
	}()

	return rc.IsRevoked(t, now)
}

// defaultProofCheck is the default proof-of-possession rule: the proof
// carries the token's holder key fingerprint, under either accepted key.
func defaultProofCheck(t *Token, proof map[string]string) bool {
	if proof == nil {
		return false
	}

	fp := proof["holder_key_fingerprint"]
	if fp == "" {
		fp = proof["pubkey"]
	}

	return fp != "" && fp == t.HolderKeyFingerprint
}

// permissionMatch looks for a permission allowing the request: an exact
// resource match, a trailing-slash hierarchical prefix, or the literal
// "/" root wildcard, which matches every resource.
func permissionMatch(perms Permissions, action, resource string) bool {
	for p := range perms {
		if p.Action != action {
			continue
		}
		if p.Resource == resource {
			return true
		}
		if strings.HasSuffix(p.Resource, "/") && strings.HasPrefix(resource, p.Resource) {
			return true
		}
		if p.Resource == "/" {
			return true
		}
	}

	return false
}
