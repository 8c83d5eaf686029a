// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package suite is the immutable cryptographic suite registry (C1):
// a global, read-only-after-init mapping from a stable suite
// identifier to the KEM/signature/AEAD/KDF combination and the 1-byte
// wire identifiers that name it on the wire.
package suite

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/luxfi/pqtunnel/internal/pqcrypto"
)

// ErrUnknownSuite is returned by Get for any identifier not present
// in the registry.
var ErrUnknownSuite = errors.New("suite: unknown suite id")

// NIST post-quantum security category.
type NISTLevel int

const (
	Level1 NISTLevel = 1
	Level3 NISTLevel = 3
	Level5 NISTLevel = 5
)

// Suite is an immutable value naming one KEM×signature combination
// and its fixed wire identifiers.
type Suite struct {
	ID         string
	KEMName    string
	SigName    string
	AEAD       string
	KDF        string
	NISTLevel  NISTLevel
	KEMID      byte
	KEMParamID byte
	SigID      byte
	SigParamID byte
}

// HeaderIDs returns the four wire identifiers in header order.
func (s Suite) HeaderIDs() (kemID, kemParamID, sigID, sigParamID byte) {
	return s.KEMID, s.KEMParamID, s.SigID, s.SigParamID
}

// KEM resolves this suite's KEM capability. Returns
// pqcrypto.ErrUnavailableAlgorithm if the registered KEM name has no
// backing implementation.
func (s Suite) KEM() (*pqcrypto.KEM, error) {
	return pqcrypto.NewKEM(s.KEMName)
}

// Signer resolves this suite's signature capability. Returns
// pqcrypto.ErrUnavailableAlgorithm if the registered signature name
// has no backing implementation.
func (s Suite) Signer() (*pqcrypto.Signer, error) {
	return pqcrypto.NewSigner(s.SigName)
}

// registry is populated once in init and never mutated afterward.
var registry = map[string]Suite{}

// ordered preserves registration order for List.
var ordered []string

func register(s Suite) {
	if _, dup := registry[s.ID]; dup {
		panic(fmt.Sprintf("suite: duplicate suite id %q", s.ID))
	}
	registry[s.ID] = s
	ordered = append(ordered, s.ID)
}

func init() {
	register(Suite{
		ID:      "cs-mlkem512-aesgcm-mldsa44",
		KEMName: "ML-KEM-512", SigName: "ML-DSA-44",
		AEAD: "AES-256-GCM", KDF: "HKDF-SHA256", NISTLevel: Level1,
		KEMID: 0x01, KEMParamID: 0x01, SigID: 0x01, SigParamID: 0x01,
	})
	register(Suite{
		ID:      "cs-mlkem768-aesgcm-mldsa65",
		KEMName: "ML-KEM-768", SigName: "ML-DSA-65",
		AEAD: "AES-256-GCM", KDF: "HKDF-SHA256", NISTLevel: Level3,
		KEMID: 0x01, KEMParamID: 0x02, SigID: 0x01, SigParamID: 0x02,
	})
	register(Suite{
		ID:      "cs-mlkem1024-aesgcm-mldsa87",
		KEMName: "ML-KEM-1024", SigName: "ML-DSA-87",
		AEAD: "AES-256-GCM", KDF: "HKDF-SHA256", NISTLevel: Level5,
		KEMID: 0x01, KEMParamID: 0x03, SigID: 0x01, SigParamID: 0x03,
	})

	// Falcon and SLH-DSA pairings are registered for completeness of
	// the suite table (list(), wire-ID uniqueness, downgrade defense
	// all need real entries to compare against) but circl does not
	// implement either family: Suite.KEM/Suite.Signer on these
	// returns pqcrypto.ErrUnavailableAlgorithm.
	register(Suite{
		ID:      "cs-mlkem768-aesgcm-falcon512",
		KEMName: "ML-KEM-768", SigName: "Falcon-512",
		AEAD: "AES-256-GCM", KDF: "HKDF-SHA256", NISTLevel: Level1,
		KEMID: 0x01, KEMParamID: 0x02, SigID: 0x02, SigParamID: 0x01,
	})
	register(Suite{
		ID:      "cs-mlkem1024-aesgcm-falcon1024",
		KEMName: "ML-KEM-1024", SigName: "Falcon-1024",
		AEAD: "AES-256-GCM", KDF: "HKDF-SHA256", NISTLevel: Level5,
		KEMID: 0x01, KEMParamID: 0x03, SigID: 0x02, SigParamID: 0x02,
	})
	register(Suite{
		ID:      "cs-mlkem768-aesgcm-slhdsa128f",
		KEMName: "ML-KEM-768", SigName: "SLH-DSA-SHA2-128f",
		AEAD: "AES-256-GCM", KDF: "HKDF-SHA256", NISTLevel: Level1,
		KEMID: 0x01, KEMParamID: 0x02, SigID: 0x03, SigParamID: 0x01,
	})
	register(Suite{
		ID:      "cs-mlkem1024-aesgcm-slhdsa256f",
		KEMName: "ML-KEM-1024", SigName: "SLH-DSA-SHA2-256f",
		AEAD: "AES-256-GCM", KDF: "HKDF-SHA256", NISTLevel: Level5,
		KEMID: 0x01, KEMParamID: 0x03, SigID: 0x03, SigParamID: 0x02,
	})

	if err := checkWireIDsUnique(); err != nil {
		panic(err)
	}
}

func checkWireIDsUnique() error {
	seen := map[[4]byte]string{}
	for _, id := range ordered {
		s := registry[id]
		key := [4]byte{s.KEMID, s.KEMParamID, s.SigID, s.SigParamID}
		if other, dup := seen[key]; dup {
			return fmt.Errorf("suite: wire id collision between %q and %q", other, id)
		}
		seen[key] = id
	}
	return nil
}

// List returns every registered suite identifier, in registration
// order.
func List() []string {
	out := make([]string, len(ordered))
	copy(out, ordered)
	return out
}

// Get looks up a suite by identifier. Returns ErrUnknownSuite if id is
// not registered.
func Get(id string) (Suite, error) {
	s, ok := registry[id]
	if !ok {
		return Suite{}, fmt.Errorf("%w: %q", ErrUnknownSuite, id)
	}
	return s, nil
}

// HKDFInfo returns the exact HKDF info byte string spec.md §4.1
// specifies: "pq-drone-gcs:kdf:v1|" || hex(session_id) || "|" ||
// kem_name || "|" || sig_name.
func HKDFInfo(s Suite, sessionID [8]byte) []byte {
	return []byte(fmt.Sprintf("pq-drone-gcs:kdf:v1|%s|%s|%s",
		hex.EncodeToString(sessionID[:]), s.KEMName, s.SigName))
}
