package handshake

import (
	"time"

	"github.com/luxfi/pqtunnel/suite"
)

// WireVersion is the frozen protocol version carried in the
// ServerHello and signed into the transcript.
const WireVersion = 1

// DefaultTimeout is the default per-stage handshake timer (spec.md
// §4.2, configurable via DEFAULT_TIMEOUT).
const DefaultTimeout = 30 * time.Second

// ServerConfig configures the GCS (server) role.
type ServerConfig struct {
	Suite      suite.Suite
	PSK        [32]byte
	SigningKey []byte // long-term signing private key, pre-provisioned
	Timeout    time.Duration
}

// ClientConfig configures the drone (client) role.
type ClientConfig struct {
	Suite     suite.Suite
	PSK       [32]byte
	VerifyKey []byte // long-term GCS verifying public key
	Timeout   time.Duration
}

// Result is the outcome of a successful handshake: everything needed
// to construct a session.Context, returned by value so the
// handshake engine never retains a reference to it afterward (spec.md
// §3 ownership rule).
type Result struct {
	SessionID [8]byte
	Suite     suite.Suite
	Epoch     byte
	// SendKey/RecvKey are named from this endpoint's point of view:
	// the GCS's SendKey equals the drone's RecvKey and vice versa.
	SendKey [32]byte
	RecvKey [32]byte
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}
