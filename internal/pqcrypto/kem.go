package pqcrypto

import (
	"fmt"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/schemes"
)

// KEM exposes the {generate, encap, decap} capability set spec.md §9
// calls for, realized over raw byte slices so the handshake engine
// never has to know about circl's typed key interfaces.
type KEM struct {
	scheme kem.Scheme
}

// NewKEM resolves a KEM by its registry name (e.g. "ML-KEM-768"). It
// returns ErrUnavailableAlgorithm if circl has no scheme under that
// name, matching spec.md's UnavailableAlgorithm error condition.
func NewKEM(name string) (*KEM, error) {
	s := schemes.ByName(name)
	if s == nil {
		return nil, fmt.Errorf("%w: kem %q", ErrUnavailableAlgorithm, name)
	}
	return &KEM{scheme: s}, nil
}

// Generate returns a fresh ephemeral keypair's public and private key
// bytes.
func (k *KEM) Generate() (pub, priv []byte, err error) {
	pk, sk, err := k.scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("kem generate: %w", err)
	}
	pub, err = pk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("kem marshal public: %w", err)
	}
	priv, err = sk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("kem marshal private: %w", err)
	}
	return pub, priv, nil
}

// Encapsulate produces a ciphertext and shared secret for the peer's
// public key.
func (k *KEM) Encapsulate(pub []byte) (ct, sharedSecret []byte, err error) {
	pk, err := k.scheme.UnmarshalBinaryPublicKey(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("kem unmarshal public: %w", err)
	}
	ct, sharedSecret, err = k.scheme.Encapsulate(pk)
	if err != nil {
		return nil, nil, fmt.Errorf("kem encapsulate: %w", err)
	}
	return ct, sharedSecret, nil
}

// Decapsulate recovers the shared secret from our own private key and
// the peer's ciphertext.
func (k *KEM) Decapsulate(priv, ct []byte) (sharedSecret []byte, err error) {
	sk, err := k.scheme.UnmarshalBinaryPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("kem unmarshal private: %w", err)
	}
	sharedSecret, err = k.scheme.Decapsulate(sk, ct)
	if err != nil {
		return nil, fmt.Errorf("kem decapsulate: %w", err)
	}
	return sharedSecret, nil
}

// PublicKeySize, CiphertextSize and SharedKeySize expose the
// scheme's fixed sizes.
func (k *KEM) PublicKeySize() int  { return k.scheme.PublicKeySize() }
func (k *KEM) CiphertextSize() int { return k.scheme.CiphertextSize() }
func (k *KEM) SharedKeySize() int  { return k.scheme.SharedKeySize() }
