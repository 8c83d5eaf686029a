package handshake

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/luxfi/pqtunnel/suite"
)

// deriveDirectionalKeys runs HKDF-SHA256 over the KEM shared secret
// exactly as spec.md §4.2 specifies and splits the 64-byte output
// keying material into the two directional keys.
func deriveDirectionalKeys(s suite.Suite, sessionID [8]byte, sharedSecret []byte) (kD2G, kG2D [32]byte, err error) {
	info := suite.HKDFInfo(s, sessionID)
	kdf := hkdf.New(sha256.New, sharedSecret, []byte("pq-drone-gcs|hkdf|v1"), info)

	okm := make([]byte, 64)
	if _, err := io.ReadFull(kdf, okm); err != nil {
		return kD2G, kG2D, fmt.Errorf("handshake: hkdf expand: %w", err)
	}
	copy(kD2G[:], okm[0:32])
	copy(kG2D[:], okm[32:64])
	return kD2G, kG2D, nil
}
