package framing

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"sync"

	"github.com/luxfi/pqtunnel/replay"
)

// Receiver is the receiving half of one direction of the tunnel. It
// owns the replay window exclusively (spec.md §3); the window and the
// drop-classification field are guarded by one lock so a replay check
// and its commit are a single atomic step.
type Receiver struct {
	key        [32]byte
	sessionID  [8]byte
	kemID      byte
	kemParamID byte
	sigID      byte
	sigParamID byte

	aead cipher.AEAD

	epoch byte

	mu              sync.Mutex
	window          *replay.Window
	lastErrorReason DropReason
}

// NewReceiver constructs a Receiver for the given direction key,
// session id, suite wire IDs, starting epoch and replay window width.
func NewReceiver(key [32]byte, sessionID [8]byte, kemID, kemParamID, sigID, sigParamID, epoch byte, windowWidth uint64) (*Receiver, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("framing: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("framing: new gcm: %w", err)
	}
	w, err := replay.New(windowWidth)
	if err != nil {
		return nil, fmt.Errorf("framing: replay window: %w", err)
	}
	return &Receiver{
		key: key, sessionID: sessionID,
		kemID: kemID, kemParamID: kemParamID, sigID: sigID, sigParamID: sigParamID,
		aead: gcm, epoch: epoch, window: w,
	}, nil
}

// LastErrorReason returns the classification of the most recent
// Decrypt failure, for internal counter accounting only (spec.md
// §4.3 "Strictness"). It is overwritten on the next Decrypt call.
func (r *Receiver) LastErrorReason() DropReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErrorReason
}

// Decrypt authenticates and opens wire. On success it returns the
// packet type and payload and commits the sequence into the replay
// window. On failure it returns (0, nil, false) and records the
// reason in LastErrorReason without mutating the replay window
// (spec.md §4.3 step 5: a failing attempt must never poison the
// window).
func (r *Receiver) Decrypt(wire []byte) (packetType byte, payload []byte, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(wire) < HeaderSize+16 {
		r.lastErrorReason = ReasonHeader
		return 0, nil, false
	}

	hdr, err := UnmarshalHeader(wire[:HeaderSize])
	if err != nil {
		r.lastErrorReason = ReasonHeader
		return 0, nil, false
	}

	if hdr.Version != WireVersion {
		r.lastErrorReason = ReasonHeader
		return 0, nil, false
	}
	if hdr.SessionID != r.sessionID {
		r.lastErrorReason = ReasonSession
		return 0, nil, false
	}
	if hdr.KEMID != r.kemID || hdr.KEMParamID != r.kemParamID ||
		hdr.SigID != r.sigID || hdr.SigParamID != r.sigParamID {
		r.lastErrorReason = ReasonSessionEpoch
		return 0, nil, false
	}
	if hdr.Epoch != r.epoch {
		r.lastErrorReason = ReasonSessionEpoch
		return 0, nil, false
	}

	if !r.window.Check(hdr.Seq) {
		r.lastErrorReason = ReasonReplay
		return 0, nil, false
	}

	nonce := buildNonce(hdr.Epoch, hdr.Seq)
	ciphertext := wire[HeaderSize:]
	plaintext, err := r.aead.Open(nil, nonce[:], ciphertext, wire[:HeaderSize])
	if err != nil {
		r.lastErrorReason = ReasonAuth
		return 0, nil, false
	}

	if len(plaintext) < 1 {
		r.lastErrorReason = ReasonOther
		return 0, nil, false
	}

	r.window.Commit(hdr.Seq)
	r.lastErrorReason = ReasonNone
	return plaintext[0], plaintext[1:], true
}
