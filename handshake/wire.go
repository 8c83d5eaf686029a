package handshake

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameLen bounds the length prefix read from the wire to prevent
// a malicious peer from forcing an unbounded allocation.
const maxFrameLen = 1 << 20

// writeFrame writes payload behind a u32_be length prefix (spec.md
// §6 wire protocol).
func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("handshake: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("handshake: write frame payload: %w", err)
	}
	return nil
}

// readFrame reads a u32_be-length-prefixed payload. I/O failures keep
// their underlying error in the chain so the caller can tell a
// deadline expiry apart from a malformed frame.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: read frame length: %w", ErrFormat, err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameLen {
		return nil, fmt.Errorf("%w: frame length %d exceeds maximum", ErrFormat, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: read frame payload: %w", ErrFormat, err)
	}
	return payload, nil
}

// lenPrefixedString appends u16(len(s))||s to buf.
func lenPrefixedString(buf []byte, s string) []byte {
	var lb [2]byte
	binary.BigEndian.PutUint16(lb[:], uint16(len(s)))
	buf = append(buf, lb[:]...)
	return append(buf, s...)
}

// lenPrefixedBytes appends u16(len(b))||b to buf.
func lenPrefixedBytes(buf []byte, b []byte) []byte {
	var lb [2]byte
	binary.BigEndian.PutUint16(lb[:], uint16(len(b)))
	buf = append(buf, lb[:]...)
	return append(buf, b...)
}

// takeLenPrefixedString reads u16(len)||bytes and returns the string
// and the remaining buffer.
func takeLenPrefixedString(buf []byte) (string, []byte, error) {
	b, rest, err := takeLenPrefixedBytes(buf)
	if err != nil {
		return "", nil, err
	}
	return string(b), rest, nil
}

// takeLenPrefixedBytes reads u16(len)||bytes and returns the bytes and
// the remaining buffer.
func takeLenPrefixedBytes(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 2 {
		return nil, nil, fmt.Errorf("%w: truncated length prefix", ErrFormat)
	}
	n := int(binary.BigEndian.Uint16(buf[:2]))
	buf = buf[2:]
	if len(buf) < n {
		return nil, nil, fmt.Errorf("%w: truncated field, want %d bytes, have %d", ErrFormat, n, len(buf))
	}
	return buf[:n], buf[n:], nil
}

// serverHelloWire is the ServerHello frame (spec.md §4.2/§6):
// version || len(kem_name)||kem_name || len(sig_name)||sig_name ||
// session_id || challenge || u16(len(kem_pub))||kem_pub ||
// u16(len(signature))||signature.
type serverHelloWire struct {
	Version   byte
	KEMName   string
	SigName   string
	SessionID [8]byte
	Challenge [8]byte
	KEMPub    []byte
	Signature []byte
}

func (m serverHelloWire) encode() []byte {
	buf := make([]byte, 0, 128+len(m.KEMPub)+len(m.Signature))
	buf = append(buf, m.Version)
	buf = lenPrefixedString(buf, m.KEMName)
	buf = lenPrefixedString(buf, m.SigName)
	buf = append(buf, m.SessionID[:]...)
	buf = append(buf, m.Challenge[:]...)
	buf = lenPrefixedBytes(buf, m.KEMPub)
	buf = lenPrefixedBytes(buf, m.Signature)
	return buf
}

func decodeServerHello(buf []byte) (serverHelloWire, error) {
	var m serverHelloWire
	if len(buf) < 1+8+8 {
		return m, fmt.Errorf("%w: server hello too short", ErrFormat)
	}
	m.Version = buf[0]
	rest := buf[1:]

	var err error
	m.KEMName, rest, err = takeLenPrefixedString(rest)
	if err != nil {
		return m, err
	}
	m.SigName, rest, err = takeLenPrefixedString(rest)
	if err != nil {
		return m, err
	}
	if len(rest) < 16 {
		return m, fmt.Errorf("%w: truncated session id/challenge", ErrFormat)
	}
	copy(m.SessionID[:], rest[:8])
	copy(m.Challenge[:], rest[8:16])
	rest = rest[16:]

	m.KEMPub, rest, err = takeLenPrefixedBytes(rest)
	if err != nil {
		return m, err
	}
	m.Signature, rest, err = takeLenPrefixedBytes(rest)
	if err != nil {
		return m, err
	}
	if len(rest) != 0 {
		return m, fmt.Errorf("%w: trailing bytes after server hello", ErrFormat)
	}
	return m, nil
}

// clientResponseWire is the ClientResponse frame (spec.md §6):
// u16(len(kem_ct))||kem_ct || 32B HMAC-SHA256 tag.
type clientResponseWire struct {
	KEMCiphertext []byte
	Tag           [32]byte
}

func (m clientResponseWire) encode() []byte {
	buf := make([]byte, 0, 2+len(m.KEMCiphertext)+32)
	buf = lenPrefixedBytes(buf, m.KEMCiphertext)
	buf = append(buf, m.Tag[:]...)
	return buf
}

func decodeClientResponse(buf []byte) (clientResponseWire, error) {
	var m clientResponseWire
	ct, rest, err := takeLenPrefixedBytes(buf)
	if err != nil {
		return m, err
	}
	m.KEMCiphertext = ct
	if len(rest) != 32 {
		return m, fmt.Errorf("%w: client response tag wrong size: %d", ErrFormat, len(rest))
	}
	copy(m.Tag[:], rest)
	return m, nil
}
