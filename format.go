package proxion

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	msgpack "github.com/vmihailenco/msgpack/v5"
)

const (
	tokenLabel                = "pxn1"
	authorizationSchemeBearer = "Bearer"
)

// wireToken is the transport shape of a [Token], encoded with MessagePack
// for compactness and determinism. Caveats travel as their id strings
// and are rebuilt by [ParseCaveat] on decode. The canonical JSON payload
// remains the only signing input; the wire form is transport sugar and
// never participates in integrity checks.
type wireToken struct {
	TokenID              string
	Permissions          [][]string
	ExpUnixNano          int64
	Aud                  string
	Caveats              []string
	HolderKeyFingerprint string
	Alg                  string
	Signature            string
}

func encode(v interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}

	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)

	enc.Reset(buf)
	enc.UseArrayEncodedStructs(true)
	enc.UseCompactInts(true)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeToken serializes a token for transport. Tokens carrying [Custom]
// caveats have no wire form and refuse to encode; everything else
// round-trips through [DecodeToken] bit-exactly, signature included.
func EncodeToken(t *Token) ([]byte, error) {
	caveatIDs := make([]string, 0, len(t.Caveats))
	for _, c := range t.Caveats {
		if _, isCustom := c.(*Custom); isCustom {
			return nil, fmt.Errorf("encode token: custom caveat %q has no wire form", c.CaveatID())
		}
		caveatIDs = append(caveatIDs, c.CaveatID())
	}

	sorted := t.Permissions.Sorted()
	permLists := make([][]string, 0, len(sorted))
	for _, p := range sorted {
		permLists = append(permLists, []string{p.Action, p.Resource})
	}

	return encode(&wireToken{
		TokenID:              t.TokenID,
		Permissions:          permLists,
		ExpUnixNano:          t.Exp.UTC().UnixNano(),
		Aud:                  t.Aud,
		Caveats:              caveatIDs,
		HolderKeyFingerprint: t.HolderKeyFingerprint,
		Alg:                  t.Alg,
		Signature:            t.Signature,
	})
}

// DecodeToken parses a token off the wire. The decoded token still needs
// [Verify] before anything in it can be trusted.
func DecodeToken(buf []byte) (*Token, error) {
	wt := &wireToken{}
	if err := msgpack.Unmarshal(buf, wt); err != nil {
		return nil, fmt.Errorf("token decode: %w", err)
	}

	perms := make(Permissions, len(wt.Permissions))
	for _, pair := range wt.Permissions {
		if len(pair) != 2 {
			return nil, fmt.Errorf("token decode: permission must be a two-element list, got %d", len(pair))
		}
		perms[Permission{Action: pair[0], Resource: pair[1]}] = struct{}{}
	}

	caveats := make([]Caveat, 0, len(wt.Caveats))
	for _, id := range wt.Caveats {
		c, err := ParseCaveat(id)
		if err != nil {
			return nil, fmt.Errorf("token decode: %w", err)
		}
		caveats = append(caveats, c)
	}

	return &Token{
		TokenID:              wt.TokenID,
		Permissions:          perms,
		Exp:                  time.Unix(0, wt.ExpUnixNano).UTC(),
		Aud:                  wt.Aud,
		Caveats:              caveats,
		HolderKeyFingerprint: wt.HolderKeyFingerprint,
		Alg:                  wt.Alg,
		Signature:            wt.Signature,
	}, nil
}

// String encodes the token with the `pxn1_` label, ready for an
// Authorization header.
func (t *Token) String() (string, error) {
	buf, err := EncodeToken(t)
	if err != nil {
		return "", err
	}

	return tokenLabel + "_" + base64.StdEncoding.EncodeToString(buf), nil
}

// ParseToken decodes a labeled token string, tolerating a Bearer scheme
// prefix and surrounding whitespace.
func ParseToken(s string) (*Token, error) {
	s = strings.TrimSpace(s)
	if rest, found := strings.CutPrefix(s, authorizationSchemeBearer+" "); found {
		s = strings.TrimSpace(rest)
	}

	pfx, b64, found := strings.Cut(s, "_")
	if !found {
		return nil, fmt.Errorf("parse token: malformed")
	}
	if pfx != tokenLabel {
		return nil, fmt.Errorf("parse token: invalid token prefix %q", pfx)
	}

	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("parse token: blank token")
	}

	return DecodeToken(raw)
}
