package proxion

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log"
)

// AlgHMACSHA256 identifies the only integrity algorithm the core accepts.
const AlgHMACSHA256 = "HMAC-SHA256"

type SigningKey []byte

func NewSigningKey() SigningKey {
	return SigningKey(rbuf(sha256.Size))
}

// sign computes the unpadded-base64url HMAC-SHA256 of payload.
func sign(key SigningKey, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the MAC over the token's canonical payload and
// compares it to the carried signature in constant time. It returns
// [ErrUnsupportedAlg] for any algorithm other than HMAC-SHA256 and
// [ErrSignatureMismatch] when the MACs disagree.
func Verify(t *Token, key SigningKey) error {
	if t.Alg != AlgHMACSHA256 {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlg, t.Alg)
	}

	expected := sign(key, t.CanonicalPayload())
	if subtle.ConstantTimeCompare([]byte(expected), []byte(t.Signature)) != 1 {
		return ErrSignatureMismatch
	}

	return nil
}

// 24 random bytes; ids carry at least 128 bits of entropy.
const idSize = 24

func newTokenID() string {
	return base64.RawURLEncoding.EncodeToString(rbuf(idSize))
}

func rbuf(sz int) []byte {
	buf := make([]byte, sz)
	if n, err := rand.Read(buf); n != sz || err != nil {
		log.Panicf("crypto random failed: %d read of %d: err: %s", n, sz, err)
	}

	return buf
}
