package framing

import "encoding/binary"

// NonceSize is the AES-GCM nonce length in bytes.
const NonceSize = 12

// buildNonce deterministically derives the 12-byte AEAD nonce from
// the epoch and sequence number (spec.md §4.3): the epoch byte
// followed by the sequence as an 11-byte big-endian counter. A u64
// sequence occupies the trailing 8 bytes with the leading 3 zero, so
// every (epoch, seq) pair yields a distinct nonce for the whole
// representable sequence range. The nonce is never transmitted; both
// sides rebuild it from the authenticated header.
func buildNonce(epoch byte, seq uint64) [NonceSize]byte {
	var nonce [NonceSize]byte
	nonce[0] = epoch
	binary.BigEndian.PutUint64(nonce[4:], seq)
	return nonce
}
