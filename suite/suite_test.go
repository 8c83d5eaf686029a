package suite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListAndGetRoundtrip(t *testing.T) {
	ids := List()
	require.NotEmpty(t, ids)
	for _, id := range ids {
		s, err := Get(id)
		require.NoError(t, err)
		require.Equal(t, id, s.ID)
	}
}

func TestGetUnknownSuite(t *testing.T) {
	_, err := Get("cs-does-not-exist")
	require.ErrorIs(t, err, ErrUnknownSuite)
}

func TestWireIDsUnique(t *testing.T) {
	seen := map[[4]byte]string{}
	for _, id := range List() {
		s, err := Get(id)
		require.NoError(t, err)
		k, pk, sg, sp := s.HeaderIDs()
		key := [4]byte{k, pk, sg, sp}
		if other, dup := seen[key]; dup {
			t.Fatalf("wire id collision between %q and %q", other, id)
		}
		seen[key] = id
	}
}

func TestHKDFInfoFormat(t *testing.T) {
	s, err := Get("cs-mlkem768-aesgcm-mldsa65")
	require.NoError(t, err)
	sessionID := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	info := HKDFInfo(s, sessionID)
	require.Equal(t, "pq-drone-gcs:kdf:v1|0102030405060708|ML-KEM-768|ML-DSA-65", string(info))
}

func TestUnavailableAlgorithmForFalcon(t *testing.T) {
	s, err := Get("cs-mlkem768-aesgcm-falcon512")
	require.NoError(t, err)
	_, err = s.Signer()
	require.Error(t, err)
}
