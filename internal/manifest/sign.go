package manifest

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/model"
)

// claims binds a manifest's identity to its contents: the subject is the
// event id and the digest commits to the exact entry set. A manifest
// transplanted onto another event or with edited entries fails verification.
type claims struct {
	Digest string `json:"digest"`
	jwt.RegisteredClaims
}

// EntriesDigest returns the hex sha256 over the canonical JSON encoding of
// the entries.
func EntriesDigest(entries []model.ManifestEntry) (string, error) {
	b, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Signer produces EdDSA manifest signatures.
type Signer struct{ key ed25519.PrivateKey }

// NewSigner constructs a Signer from an Ed25519 private key.
func NewSigner(key ed25519.PrivateKey) *Signer { return &Signer{key: key} }

// Sign fills in the manifest's Signature over (event id, issued at, expires
// at, entries digest).
func (s *Signer) Sign(m *model.Manifest) error {
	digest, err := EntriesDigest(m.Entries)
	if err != nil {
		return err
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims{
		Digest: digest,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   m.EventID.String(),
			IssuedAt:  jwt.NewNumericDate(m.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(m.ExpiresAt),
		},
	})
	m.Signature, err = tok.SignedString(s.key)
	return err
}

// Verifier checks manifest signatures and expiry on the consumer side.
type Verifier struct{ pub ed25519.PublicKey }

// NewVerifier constructs a Verifier from an Ed25519 public key.
func NewVerifier(pub ed25519.PublicKey) *Verifier { return &Verifier{pub: pub} }

// Verify checks the signature, the binding to the manifest's event and
// entries, and the expiry horizon against the caller-observed clock.
// Returns errs.ErrManifestExpired past the horizon even when the signature
// is otherwise valid, and errs.ErrManifestInvalid on any mismatch.
func (v *Verifier) Verify(m *model.Manifest, now time.Time) error {
	parsed, err := jwt.ParseWithClaims(m.Signature, &claims{}, func(t *jwt.Token) (any, error) {
		return v.pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return errs.ErrManifestExpired
		}
		return fmt.Errorf("%w: %w", errs.ErrManifestInvalid, err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok {
		return errs.ErrManifestInvalid
	}
	if c.Subject != m.EventID.String() {
		return fmt.Errorf("%w: event mismatch", errs.ErrManifestInvalid)
	}
	digest, err := EntriesDigest(m.Entries)
	if err != nil {
		return err
	}
	if digest != c.Digest {
		return fmt.Errorf("%w: entries digest mismatch", errs.ErrManifestInvalid)
	}
	return nil
}

// ParseSeed decodes a hex-encoded 32-byte Ed25519 seed into a private key.
func ParseSeed(hexSeed string) (ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, fmt.Errorf("manifest key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("manifest key seed: want %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// ParsePublicKey decodes a hex-encoded Ed25519 public key.
func ParsePublicKey(hexKey string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("manifest public key: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("manifest public key: want %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	return ed25519.PublicKey(b), nil
}
