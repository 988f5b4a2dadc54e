package transit

import (
	"bytes"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/proxion-protocol/proxion"
)

func testCipher(t *testing.T) *SealCipher {
	t.Helper()

	c, err := NewSealCipher(bytes.Repeat([]byte{7}, KeySize))
	assert.NoError(t, err)
	return c
}

func TestSealCipherRoundTrip(t *testing.T) {
	c := testCipher(t)

	ct, err := c.Encrypt([]byte("attack at dawn"))
	assert.NoError(t, err)

	pt, err := c.Decrypt(ct)
	assert.NoError(t, err)
	assert.Equal(t, "attack at dawn", string(pt))
}

func TestSealCipherNonceFreshness(t *testing.T) {
	c := testCipher(t)

	ct1, err := c.Encrypt([]byte("same plaintext"))
	assert.NoError(t, err)
	ct2, err := c.Encrypt([]byte("same plaintext"))
	assert.NoError(t, err)

	assert.False(t, bytes.Equal(ct1, ct2))
}

func TestSealCipherRejectsTampering(t *testing.T) {
	c := testCipher(t)

	ct, err := c.Encrypt([]byte("attack at dawn"))
	assert.NoError(t, err)

	ct[len(ct)-1] ^= 0x01
	_, err = c.Decrypt(ct)
	assert.Error(t, err)

	_, err = c.Decrypt([]byte("short"))
	assert.Error(t, err)
}

func TestSealCipherRejectsWrongKey(t *testing.T) {
	c := testCipher(t)

	other, err := NewSealCipher(bytes.Repeat([]byte{8}, KeySize))
	assert.NoError(t, err)

	ct, err := c.Encrypt([]byte("attack at dawn"))
	assert.NoError(t, err)

	_, err = other.Decrypt(ct)
	assert.Error(t, err)
}

func TestNewSealCipherKeySize(t *testing.T) {
	_, err := NewSealCipher([]byte("short"))
	assert.Error(t, err)

	_, err = NewSealCipher(nil)
	assert.Error(t, err)
}

// A compile-time check that the core token type fits the serializer
// boundary the way outer layers are expected to implement it.
type nopSerializer struct{}

var _ TokenSerializer = nopSerializer{}

func (nopSerializer) Sign(t *proxion.Token, key []byte) (string, error) {
	return t.String()
}

func (nopSerializer) Verify(serialized string, key []byte) (*proxion.Token, error) {
	return proxion.ParseToken(serialized)
}

func TestSerializerBoundary(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	key := proxion.SigningKey("test-key")

	tok, err := proxion.Issue(
		proxion.NewPermissions(proxion.Permission{Action: "read", Resource: "/r"}),
		t0.Add(time.Minute),
		"a",
		nil,
		"fp",
		key,
		proxion.WithNow(t0),
	)
	assert.NoError(t, err)

	var s TokenSerializer = nopSerializer{}

	wire, err := s.Sign(tok, key)
	assert.NoError(t, err)

	back, err := s.Verify(wire, key)
	assert.NoError(t, err)
	assert.NoError(t, proxion.Verify(back, key))
}
