package framing

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"math"
	"sync"
)

// Sender is the sending half of one direction of the tunnel. It owns
// an immutable key and suite wire IDs plus the mutable send sequence;
// spec.md §3 makes it the exclusive handle to that sequence. The
// sequence is guarded by a short-lived lock so the data path and the
// control path can share one Sender.
type Sender struct {
	key        [32]byte
	sessionID  [8]byte
	kemID      byte
	kemParamID byte
	sigID      byte
	sigParamID byte

	aead cipher.AEAD

	epoch byte

	mu      sync.Mutex
	sendSeq uint64
	usedMax bool
}

// NewSender constructs a Sender for the given direction key, session
// id, suite wire IDs and starting epoch. send_seq always starts at 0
// (spec.md §3).
func NewSender(key [32]byte, sessionID [8]byte, kemID, kemParamID, sigID, sigParamID, epoch byte) (*Sender, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("framing: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("framing: new gcm: %w", err)
	}
	return &Sender{
		key: key, sessionID: sessionID,
		kemID: kemID, kemParamID: kemParamID, sigID: sigID, sigParamID: sigParamID,
		aead: gcm, epoch: epoch,
	}, nil
}

// SendSeq returns the next sequence number that will be used.
func (s *Sender) SendSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendSeq
}

// SetSendSeq forces the next sequence number. Exposed only for tests
// exercising the sequence-exhaustion guard (spec.md §8 scenario 6);
// production code never calls this.
func (s *Sender) SetSendSeq(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendSeq = seq
}

// Encrypt seals packetType||payload under the current key, session id,
// epoch and send_seq, returning the full wire packet (header ||
// ciphertext||tag) and advancing send_seq. Returns
// ErrSequenceExhausted once the counter has been used at its maximum
// value (spec.md §9 open question: seq == math.MaxUint64 is used
// exactly once, the following call fails).
func (s *Sender) Encrypt(packetType byte, payload []byte) ([]byte, error) {
	s.mu.Lock()
	if s.sendSeq == math.MaxUint64 && s.usedMax {
		s.mu.Unlock()
		return nil, ErrSequenceExhausted
	}
	seq := s.sendSeq
	if s.sendSeq == math.MaxUint64 {
		s.usedMax = true
	} else {
		s.sendSeq++
	}
	s.mu.Unlock()

	hdr := Header{
		Version: WireVersion, KEMID: s.kemID, KEMParamID: s.kemParamID,
		SigID: s.sigID, SigParamID: s.sigParamID,
		SessionID: s.sessionID, Seq: seq, Epoch: s.epoch,
	}
	headerBytes := hdr.Marshal()

	nonce := buildNonce(s.epoch, seq)

	plaintext := make([]byte, 0, 1+len(payload))
	plaintext = append(plaintext, packetType)
	plaintext = append(plaintext, payload...)

	ciphertext := s.aead.Seal(nil, nonce[:], plaintext, headerBytes)

	wire := make([]byte, 0, len(headerBytes)+len(ciphertext))
	wire = append(wire, headerBytes...)
	wire = append(wire, ciphertext...)
	return wire, nil
}
