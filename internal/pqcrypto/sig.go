package pqcrypto

import (
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/schemes"
)

// Signer exposes the {sign, verify} capability set over raw byte
// slices, mirroring KEM.
type Signer struct {
	scheme sign.Scheme
}

// NewSigner resolves a signature scheme by its registry name (e.g.
// "ML-DSA-65"). Returns ErrUnavailableAlgorithm if unimplemented.
func NewSigner(name string) (*Signer, error) {
	s := schemes.ByName(name)
	if s == nil {
		return nil, fmt.Errorf("%w: signature %q", ErrUnavailableAlgorithm, name)
	}
	return &Signer{scheme: s}, nil
}

// Generate returns a fresh long-term keypair's public and private key
// bytes.
func (s *Signer) Generate() (pub, priv []byte, err error) {
	pk, sk, err := s.scheme.GenerateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("sign generate: %w", err)
	}
	pub, err = pk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("sign marshal public: %w", err)
	}
	priv, err = sk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("sign marshal private: %w", err)
	}
	return pub, priv, nil
}

// Sign produces a detached signature over message using the raw
// private key bytes.
func (s *Signer) Sign(priv, message []byte) ([]byte, error) {
	sk, err := s.scheme.UnmarshalBinaryPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("sign unmarshal private: %w", err)
	}
	return s.scheme.Sign(sk, message, nil), nil
}

// Verify reports whether signature is a valid signature over message
// under the raw public key bytes.
func (s *Signer) Verify(pub, message, signature []byte) (bool, error) {
	pk, err := s.scheme.UnmarshalBinaryPublicKey(pub)
	if err != nil {
		return false, fmt.Errorf("sign unmarshal public: %w", err)
	}
	return s.scheme.Verify(pk, message, signature, nil), nil
}

// PublicKeySize and SignatureSize expose the scheme's fixed sizes.
func (s *Signer) PublicKeySize() int { return s.scheme.PublicKeySize() }
func (s *Signer) SignatureSize() int { return s.scheme.SignatureSize() }
