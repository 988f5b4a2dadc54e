// Package federation defines the envelope shapes exchanged when two
// Proxion deployments federate: a signed invitation, the responder's
// acceptance, and the resulting relationship certificate.
//
// This is a data-shape layer only. Envelopes are signed over canonical
// bytes (sorted-key compact JSON with the signature field elided) via
// caller-injected key callbacks; no authorization logic lives here.
package federation

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

// Default validity windows.
const (
	InviteTTL      = 24 * time.Hour
	CertificateTTL = 90 * 24 * time.Hour
)

const envelopeVersion = 1

// Signer produces a signature over canonical envelope bytes with the
// holder's identity key.
type Signer func(data []byte) ([]byte, error)

// VerifierFunc checks a signature over canonical envelope bytes against
// a public key.
type VerifierFunc func(publicKey string, sig, data []byte) bool

// Identity names an envelope issuer.
type Identity struct {
	DID       string `json:"did"`
	PublicKey string `json:"public_key"`
}

// Capability is a UCAN-style grant carried in an envelope: a resource
// URI, an action, and free-form caveat attributes (quotas and the like).
// Struct fields are declared in ascending key order so the canonical
// encoding falls out of the stdlib encoder.
type Capability struct {
	Can     string         `json:"can"`
	Caveats map[string]any `json:"caveats"`
	With    string         `json:"with"`
}

// Invite is a signed invitation to federate.
type Invite struct {
	Capabilities    []Capability `json:"capabilities"`
	ChallengeMarker string       `json:"challenge_marker"`
	CreatedAt       int64        `json:"created_at"`
	EndpointHints   []string     `json:"endpoint_hints"`
	ExpiresAt       int64        `json:"expires_at"`
	InvitationID    string       `json:"invitation_id"`
	Issuer          Identity     `json:"issuer"`
	Nonce           string       `json:"nonce"`
	Signature       string       `json:"signature,omitempty"`
	Version         int          `json:"version"`
}

// NewInvite builds an unsigned invite with fresh id, nonce, and
// challenge material, valid for [InviteTTL] from now.
func NewInvite(issuer Identity, endpointHints []string, capabilities []Capability, now time.Time) *Invite {
	return &Invite{
		Capabilities:    capabilities,
		ChallengeMarker: randHex(32),
		CreatedAt:       now.UTC().Unix(),
		EndpointHints:   endpointHints,
		ExpiresAt:       now.UTC().Add(InviteTTL).Unix(),
		InvitationID:    uuid.NewString(),
		Issuer:          issuer,
		Nonce:           randHex(32),
		Version:         envelopeVersion,
	}
}

// SigningBytes is the canonical form of the invite with the signature
// elided.
func (i *Invite) SigningBytes() ([]byte, error) {
	unsigned := *i
	unsigned.Signature = ""
	return json.Marshal(&unsigned)
}

func (i *Invite) Sign(signer Signer) error {
	sig, err := signEnvelope(i, signer)
	if err != nil {
		return err
	}
	i.Signature = sig
	return nil
}

func (i *Invite) Verify(verify VerifierFunc) bool {
	return verifyEnvelope(i, i.Issuer.PublicKey, i.Signature, verify)
}

// Responder identifies the party accepting an invite.
type Responder struct {
	EndpointHints []string `json:"endpoint_hints"`
	PublicKey     string   `json:"public_key"`
}

// Acceptance answers an invite, proving possession of the responder's
// key via a signature over the invite's challenge marker.
type Acceptance struct {
	ChallengeResponse string    `json:"challenge_response"`
	InvitationID      string    `json:"invitation_id"`
	Responder         Responder `json:"responder"`
	Signature         string    `json:"signature,omitempty"`
	Timestamp         int64     `json:"timestamp"`
}

// NewAcceptance builds an unsigned acceptance for the invite. The
// challenge response must be the responder's signature over the
// invite's challenge marker, hex encoded.
func NewAcceptance(invitationID string, responder Responder, challengeResponse string, now time.Time) *Acceptance {
	return &Acceptance{
		ChallengeResponse: challengeResponse,
		InvitationID:      invitationID,
		Responder:         responder,
		Timestamp:         now.UTC().Unix(),
	}
}

func (a *Acceptance) SigningBytes() ([]byte, error) {
	unsigned := *a
	unsigned.Signature = ""
	return json.Marshal(&unsigned)
}

func (a *Acceptance) Sign(signer Signer) error {
	sig, err := signEnvelope(a, signer)
	if err != nil {
		return err
	}
	a.Signature = sig
	return nil
}

func (a *Acceptance) Verify(verify VerifierFunc) bool {
	return verifyEnvelope(a, a.Responder.PublicKey, a.Signature, verify)
}

// RelationshipCertificate is the mutual capability record minted once
// an invite has been accepted.
type RelationshipCertificate struct {
	Capabilities  []Capability   `json:"capabilities"`
	CertificateID string         `json:"certificate_id"`
	CreatedAt     int64          `json:"created_at"`
	ExpiresAt     int64          `json:"expires_at"`
	Issuer        string         `json:"issuer"`
	Signature     string         `json:"signature,omitempty"`
	Subject       string         `json:"subject"`
	Version       int            `json:"version"`
	WireGuard     map[string]any `json:"wireguard"`
}

// NewRelationshipCertificate builds an unsigned certificate from issuer
// to subject (both public keys), valid for [CertificateTTL] from now.
func NewRelationshipCertificate(issuer, subject string, capabilities []Capability, wireguard map[string]any, now time.Time) *RelationshipCertificate {
	return &RelationshipCertificate{
		Capabilities:  capabilities,
		CertificateID: uuid.NewString(),
		CreatedAt:     now.UTC().Unix(),
		ExpiresAt:     now.UTC().Add(CertificateTTL).Unix(),
		Issuer:        issuer,
		Subject:       subject,
		Version:       envelopeVersion,
		WireGuard:     wireguard,
	}
}

func (c *RelationshipCertificate) SigningBytes() ([]byte, error) {
	unsigned := *c
	unsigned.Signature = ""
	return json.Marshal(&unsigned)
}

func (c *RelationshipCertificate) Sign(signer Signer) error {
	sig, err := signEnvelope(c, signer)
	if err != nil {
		return err
	}
	c.Signature = sig
	return nil
}

func (c *RelationshipCertificate) Verify(verify VerifierFunc) bool {
	return verifyEnvelope(c, c.Issuer, c.Signature, verify)
}

type envelope interface {
	SigningBytes() ([]byte, error)
}

func signEnvelope(e envelope, signer Signer) (string, error) {
	data, err := e.SigningBytes()
	if err != nil {
		return "", err
	}

	sig, err := signer(data)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(sig), nil
}

func verifyEnvelope(e envelope, publicKey, signature string, verify VerifierFunc) bool {
	if signature == "" {
		return false
	}

	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	data, err := e.SigningBytes()
	if err != nil {
		return false
	}

	return verify(publicKey, sig, data)
}

func randHex(n int) string {
	buf := make([]byte, n)
	if read, err := rand.Read(buf); read != n || err != nil {
		log.Panicf("crypto random failed: %d read of %d: err: %s", read, n, err)
	}

	return hex.EncodeToString(buf)
}
