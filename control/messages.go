// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package control

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Control message types, carried as the first byte of the AEAD
// plaintext body whenever the outer packet_type is 0x02.
const (
	TypePrepareRekey  uint8 = 0x01
	TypeCommitRekey   uint8 = 0x02
	TypePrepareFail   uint8 = 0x03
	TypeRekeyComplete uint8 = 0x04
)

// nonceSize matches spec.md §3's control-message nonce width.
const nonceSize = 8

// record is the one control-message schema of spec.md §3: every
// message carries { type, target_suite, nonce, ts, extra } on the
// wire, regardless of which fields the message type gives meaning
// to. Wire form: type(1) || u16(len(target_suite))||target_suite ||
// nonce(8) || ts(i64 be) || u16(len(extra))||extra.
type record struct {
	msgType     byte
	targetSuite string
	nonce       [nonceSize]byte
	ts          int64
	extra       []byte
}

func (r record) encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(r.msgType)
	if err := writeString(&buf, r.targetSuite); err != nil {
		return nil, err
	}
	buf.Write(r.nonce[:])
	if err := binary.Write(&buf, binary.BigEndian, r.ts); err != nil {
		return nil, err
	}
	if len(r.extra) > 0xFFFF {
		return nil, fmt.Errorf("control: extra field too long: %d", len(r.extra))
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(r.extra))); err != nil {
		return nil, err
	}
	buf.Write(r.extra)
	return buf.Bytes(), nil
}

func decodeRecord(raw []byte) (record, error) {
	if len(raw) < 1 {
		return record{}, fmt.Errorf("control: empty message body")
	}
	var rec record
	rec.msgType = raw[0]
	r := bytes.NewReader(raw[1:])

	var err error
	if rec.targetSuite, err = readString(r); err != nil {
		return record{}, fmt.Errorf("control: decode target_suite: %w", err)
	}
	if _, err = io.ReadFull(r, rec.nonce[:]); err != nil {
		return record{}, fmt.Errorf("control: decode nonce: %w", err)
	}
	if err = binary.Read(r, binary.BigEndian, &rec.ts); err != nil {
		return record{}, fmt.Errorf("control: decode ts: %w", err)
	}
	var n uint16
	if err = binary.Read(r, binary.BigEndian, &n); err != nil {
		return record{}, fmt.Errorf("control: decode extra length: %w", err)
	}
	if n > 0 {
		rec.extra = make([]byte, n)
		if _, err = io.ReadFull(r, rec.extra); err != nil {
			return record{}, fmt.Errorf("control: decode extra: %w", err)
		}
	}
	if r.Len() != 0 {
		return record{}, fmt.Errorf("control: trailing bytes after message")
	}
	return rec, nil
}

func writeString(w io.Writer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("control: string field too long: %d", len(s))
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// PrepareRekey is sent by the initiator to request a suite swap.
type PrepareRekey struct {
	TargetSuite string
	Nonce       [nonceSize]byte
	Ts          int64
	Extra       []byte
}

// CommitRekey is the responder's acceptance, echoing the nonce.
type CommitRekey struct {
	TargetSuite string
	NonceEcho   [nonceSize]byte
	Ts          int64
	Extra       []byte
}

// PrepareFail rejects a PrepareRekey or aborts a negotiation. The
// reason rides in the record's extra field.
type PrepareFail struct {
	Reason string
	Ts     int64
}

// RekeyComplete reports the terminal status of a swap attempt: 0 for
// success, 1 for failure, carried as a one-byte extra field.
type RekeyComplete struct {
	Status byte
	Ts     int64
}

// Encode serializes m as a spec.md §3 control record.
func (m *PrepareRekey) Encode() ([]byte, error) {
	return record{msgType: TypePrepareRekey, targetSuite: m.TargetSuite, nonce: m.Nonce, ts: m.Ts, extra: m.Extra}.encode()
}

func (m *CommitRekey) Encode() ([]byte, error) {
	return record{msgType: TypeCommitRekey, targetSuite: m.TargetSuite, nonce: m.NonceEcho, ts: m.Ts, extra: m.Extra}.encode()
}

func (m *PrepareFail) Encode() ([]byte, error) {
	return record{msgType: TypePrepareFail, ts: m.Ts, extra: []byte(m.Reason)}.encode()
}

func (m *RekeyComplete) Encode() ([]byte, error) {
	return record{msgType: TypeRekeyComplete, ts: m.Ts, extra: []byte{m.Status}}.encode()
}

// Decode parses a control record, returning one of *PrepareRekey,
// *CommitRekey, *PrepareFail, *RekeyComplete.
func Decode(raw []byte) (interface{}, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	switch rec.msgType {
	case TypePrepareRekey:
		return &PrepareRekey{TargetSuite: rec.targetSuite, Nonce: rec.nonce, Ts: rec.ts, Extra: rec.extra}, nil
	case TypeCommitRekey:
		return &CommitRekey{TargetSuite: rec.targetSuite, NonceEcho: rec.nonce, Ts: rec.ts, Extra: rec.extra}, nil
	case TypePrepareFail:
		return &PrepareFail{Reason: string(rec.extra), Ts: rec.ts}, nil
	case TypeRekeyComplete:
		if len(rec.extra) < 1 {
			return nil, fmt.Errorf("control: rekey_complete missing status")
		}
		return &RekeyComplete{Status: rec.extra[0], Ts: rec.ts}, nil
	default:
		return nil, fmt.Errorf("control: unknown message type 0x%02x", rec.msgType)
	}
}
