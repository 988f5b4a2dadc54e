package proxion

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

var (
	testKey = SigningKey("test-key")
	t0      = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

func issueTest(t *testing.T, opts ...IssueOption) *Token {
	t.Helper()

	opts = append([]IssueOption{WithNow(t0)}, opts...)
	tok, err := Issue(
		NewPermissions(Permission{"read", "/r"}),
		t0.Add(5*time.Minute),
		"a",
		nil,
		"fp",
		testKey,
		opts...,
	)
	assert.NoError(t, err)

	return tok
}

func TestIssue(t *testing.T) {
	tok := issueTest(t)

	assert.Equal(t, "a", tok.Aud)
	assert.Equal(t, "fp", tok.HolderKeyFingerprint)
	assert.Equal(t, AlgHMACSHA256, tok.Alg)
	assert.Equal(t, t0.Add(5*time.Minute), tok.Exp)
	assert.True(t, tok.Permissions.Has(Permission{"read", "/r"}))
	assert.NoError(t, Verify(tok, testKey))

	// default ids carry 24 bytes of fresh entropy
	raw, err := base64.RawURLEncoding.DecodeString(tok.TokenID)
	assert.NoError(t, err)
	assert.Equal(t, 24, len(raw))
}

func TestIssuePreconditions(t *testing.T) {
	exp := t0.Add(time.Minute)

	_, err := Issue(NewPermissions(), exp, "a", nil, "fp", testKey, WithNow(t0))
	assert.True(t, errors.Is(err, ErrInvalidToken))

	_, err = Issue(NewPermissions(Permission{"", "/r"}), exp, "a", nil, "fp", testKey, WithNow(t0))
	assert.True(t, errors.Is(err, ErrInvalidToken))

	_, err = Issue(NewPermissions(Permission{"read", ""}), exp, "a", nil, "fp", testKey, WithNow(t0))
	assert.True(t, errors.Is(err, ErrInvalidToken))

	_, err = Issue(NewPermissions(Permission{"read", "/r"}), t0, "a", nil, "fp", testKey, WithNow(t0))
	assert.True(t, errors.Is(err, ErrInvalidToken))

	_, err = Issue(NewPermissions(Permission{"read", "/r"}), t0.Add(-time.Second), "a", nil, "fp", testKey, WithNow(t0))
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestCanonicalPayload(t *testing.T) {
	tok := issueTest(t, WithTokenID("tid"))

	assert.Equal(t,
		`{"aud":"a","caveats":[],"exp":"2025-01-01T00:05:00Z","holder_key_fingerprint":"fp","permissions":[["read","/r"]],"token_id":"tid"}`,
		string(tok.CanonicalPayload()),
	)
}

func TestCanonicalPermissionOrder(t *testing.T) {
	perms := NewPermissions(
		Permission{"write", "/b"},
		Permission{"read", "/b"},
		Permission{"read", "/a"},
	)

	tok, err := Issue(perms, t0.Add(time.Minute), "a", nil, "fp", testKey, WithNow(t0), WithTokenID("tid"))
	assert.NoError(t, err)

	assert.Equal(t,
		`{"aud":"a","caveats":[],"exp":"2025-01-01T00:01:00Z","holder_key_fingerprint":"fp","permissions":[["read","/a"],["read","/b"],["write","/b"]],"token_id":"tid"}`,
		string(tok.CanonicalPayload()),
	)
}

func TestCanonicalDeterminism(t *testing.T) {
	caveats := []Caveat{NewTimeWindow(100, 200), NewNonceMatches("n1")}

	issue := func() *Token {
		tok, err := Issue(
			NewPermissions(Permission{"read", "/r"}, Permission{"write", "/w"}),
			t0.Add(5*time.Minute),
			"a",
			caveats,
			"fp",
			testKey,
			WithNow(t0),
			WithTokenID("tid"),
		)
		assert.NoError(t, err)
		return tok
	}

	tok1, tok2 := issue(), issue()
	assert.Equal(t, string(tok1.CanonicalPayload()), string(tok2.CanonicalPayload()))
	assert.Equal(t, tok1.Signature, tok2.Signature)
	assert.Equal(t, tok1.RevocationID(), tok2.RevocationID())
}

func TestVerify(t *testing.T) {
	tok := issueTest(t)
	assert.NoError(t, Verify(tok, testKey))

	t.Run("tampered payload", func(t *testing.T) {
		bad := *tok
		bad.Aud = "b"
		assert.True(t, errors.Is(Verify(&bad, testKey), ErrSignatureMismatch))

		bad = *tok
		bad.Permissions = NewPermissions(Permission{"write", "/r"})
		assert.True(t, errors.Is(Verify(&bad, testKey), ErrSignatureMismatch))

		bad = *tok
		bad.Caveats = []Caveat{NewNonceMatches("sneaky")}
		assert.True(t, errors.Is(Verify(&bad, testKey), ErrSignatureMismatch))
	})

	t.Run("wrong key", func(t *testing.T) {
		assert.True(t, errors.Is(Verify(tok, SigningKey("other-key")), ErrSignatureMismatch))
	})

	t.Run("unsupported alg", func(t *testing.T) {
		bad := *tok
		bad.Alg = "none"
		assert.True(t, errors.Is(Verify(&bad, testKey), ErrUnsupportedAlg))
	})
}

func TestRevocationID(t *testing.T) {
	tok := issueTest(t, WithTokenID("tid"))

	assert.Equal(t, 64, len(tok.RevocationID()))

	other := issueTest(t, WithTokenID("tid2"))
	assert.NotEqual(t, tok.RevocationID(), other.RevocationID())
}

func TestTokenUUID(t *testing.T) {
	tok := issueTest(t, WithTokenID("tid"))
	same := issueTest(t, WithTokenID("tid"))

	assert.Equal(t, tok.UUID(), same.UUID())
	assert.NotEqual(t, tok.UUID().String(), "")
}

func TestPermissionsSet(t *testing.T) {
	ps := NewPermissions(Permission{"read", "/r"}, Permission{"write", "/w"})

	assert.True(t, NewPermissions(Permission{"read", "/r"}).IsSubsetOf(ps))
	assert.True(t, ps.IsSubsetOf(ps))
	assert.False(t, NewPermissions(Permission{"admin", "/r"}).IsSubsetOf(ps))

	clone := ps.Clone()
	delete(clone, Permission{"read", "/r"})
	assert.True(t, ps.Has(Permission{"read", "/r"}))
}
