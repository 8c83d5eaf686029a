// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package framing implements the AEAD framing engine (C3): the
// 22-byte authenticated packet header, deterministic nonce
// construction, AES-256-GCM sealing/opening, and the Sender/Receiver
// halves that classify every drop per spec.md §4.3.
package framing

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size of the packet header in bytes
// (spec.md §3).
const HeaderSize = 22

// WireVersion is the only supported header version.
const WireVersion = 1

// Header is the 22-byte packet header, serving as the AEAD's
// Additional Authenticated Data.
type Header struct {
	Version    byte
	KEMID      byte
	KEMParamID byte
	SigID      byte
	SigParamID byte
	SessionID  [8]byte
	Seq        uint64
	Epoch      byte
}

// Marshal encodes h into its 22-byte wire form.
func (h Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = h.Version
	buf[1] = h.KEMID
	buf[2] = h.KEMParamID
	buf[3] = h.SigID
	buf[4] = h.SigParamID
	copy(buf[5:13], h.SessionID[:])
	binary.BigEndian.PutUint64(buf[13:21], h.Seq)
	buf[21] = h.Epoch
	return buf
}

// UnmarshalHeader decodes a 22-byte wire header. It does not validate
// the version or session id against any context; callers do that.
func UnmarshalHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("framing: header too short: %d bytes", len(buf))
	}
	var h Header
	h.Version = buf[0]
	h.KEMID = buf[1]
	h.KEMParamID = buf[2]
	h.SigID = buf[3]
	h.SigParamID = buf[4]
	copy(h.SessionID[:], buf[5:13])
	h.Seq = binary.BigEndian.Uint64(buf[13:21])
	h.Epoch = buf[21]
	return h, nil
}
