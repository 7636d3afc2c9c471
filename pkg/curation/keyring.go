// Package curation is the human-approval layer in front of the
// insight ledger. Promotions require a scoped approval token, and
// every curated record is signed with a key derived for the approving
// reviewer, so a promotion can be attributed and verified later.
package curation

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeyProvider abstracts the signing backend so the in-memory provider
// can be swapped for an HSM or KMS.
type KeyProvider interface {
	Sign(msg []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
}

// SeedProvider is implemented by providers that can expose their seed
// for reviewer key derivation.
type SeedProvider interface {
	Seed() []byte
}

// MemoryKeyProvider is an in-memory Ed25519 provider.
type MemoryKeyProvider struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewMemoryKeyProvider generates a fresh Ed25519 keypair.
func NewMemoryKeyProvider() (*MemoryKeyProvider, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &MemoryKeyProvider{pub: pub, priv: priv}, nil
}

// NewMemoryKeyProviderFromSeed builds a deterministic provider, used
// when the master seed is supplied through configuration.
func NewMemoryKeyProviderFromSeed(seed []byte) (*MemoryKeyProvider, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &MemoryKeyProvider{pub: priv.Public().(ed25519.PublicKey), priv: priv}, nil
}

func (m *MemoryKeyProvider) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(m.priv, msg), nil
}

func (m *MemoryKeyProvider) PublicKey() ed25519.PublicKey {
	return m.pub
}

func (m *MemoryKeyProvider) Seed() []byte {
	return m.priv.Seed()
}

// reviewerKDFInfo salts the HKDF expansion so reviewer keys cannot
// collide with keys derived for any other purpose.
const reviewerKDFInfo = "vigil-reviewer-kdf"

// Keyring holds the master key and derives per-reviewer keyrings.
type Keyring struct {
	provider KeyProvider
}

// NewKeyring wraps a provider. A nil provider gets an ephemeral
// in-memory key, which is only useful for tests and local runs.
func NewKeyring(p KeyProvider) *Keyring {
	if p == nil {
		p, _ = NewMemoryKeyProvider()
	}
	return &Keyring{provider: p}
}

// Sign signs raw bytes with this keyring's key.
func (k *Keyring) Sign(msg []byte) ([]byte, error) {
	return k.provider.Sign(msg)
}

// PublicKey returns this keyring's public key.
func (k *Keyring) PublicKey() ed25519.PublicKey {
	return k.provider.PublicKey()
}

// DeriveForReviewer derives a reviewer-specific keyring using
// HKDF-SHA256 over the master seed. The same reviewer id always
// yields the same keypair, so verification needs only the master
// keyring and the reviewer id.
func (k *Keyring) DeriveForReviewer(reviewerID string) (*Keyring, error) {
	if reviewerID == "" {
		return nil, fmt.Errorf("reviewer id must not be empty")
	}
	sp, ok := k.provider.(SeedProvider)
	if !ok {
		return nil, fmt.Errorf("reviewer key derivation requires a seed-exposing provider")
	}

	hkdfReader := hkdf.New(sha256.New, sp.Seed(), []byte(reviewerKDFInfo), []byte(reviewerID))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hkdfReader, seed); err != nil {
		return nil, fmt.Errorf("HKDF derivation failed: %w", err)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	derived := &MemoryKeyProvider{pub: priv.Public().(ed25519.PublicKey), priv: priv}
	return NewKeyring(derived), nil
}
