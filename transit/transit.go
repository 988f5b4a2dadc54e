// Package transit pins the boundaries between the token core and the
// transport layer around it. The core signs tokens over canonical JSON
// and nothing else; wrapping tokens for transit, or re-serializing them
// as JWTs and friends, happens behind the interfaces here.
package transit

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/proxion-protocol/proxion"
)

// Cipher wraps payloads for transit. Implementations must authenticate
// ciphertexts; Decrypt fails on any tampering.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// TokenSerializer re-serializes tokens into some external format.
// Implementations live outside the core; asymmetric schemes (JWT with
// EdDSA, say) plug in here without the core taking a position on them.
type TokenSerializer interface {
	Sign(t *proxion.Token, key []byte) (string, error)
	Verify(serialized string, key []byte) (*proxion.Token, error)
}

// SealCipher is a [Cipher] using ChaCha20-Poly1305 with a random nonce
// prepended to the ciphertext.
type SealCipher struct {
	key []byte
}

var _ Cipher = (*SealCipher)(nil)

// KeySize is the required [SealCipher] key length.
const KeySize = chacha20poly1305.KeySize

func NewSealCipher(key []byte) (*SealCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("bad key size: have %d, need %d", len(key), KeySize)
	}

	return &SealCipher{key: append([]byte(nil), key...)}, nil
}

func (c *SealCipher) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return nil, fmt.Errorf("encrypt: bad input for key: %w", err)
	}

	nonce := rbuf(chacha20poly1305.NonceSize)
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *SealCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < chacha20poly1305.NonceSize+1 {
		return nil, errors.New("decrypt: malformed input")
	}

	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return nil, fmt.Errorf("decrypt: bad input for key: %w", err)
	}

	nonce := ciphertext[:chacha20poly1305.NonceSize]
	ct := ciphertext[chacha20poly1305.NonceSize:]

	return aead.Open(nil, nonce, ct, nil)
}

func rbuf(sz int) []byte {
	buf := make([]byte, sz)
	if n, err := rand.Read(buf); n != sz || err != nil {
		log.Panicf("crypto random failed: %d read of %d: err: %s", n, sz, err)
	}

	return buf
}
