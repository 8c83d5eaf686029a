package handshake

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"net"
	"time"
)

// Client runs the drone role of the handshake: verifies the server's
// ServerHello (including the downgrade-defense suite-name check),
// runs KEM encapsulation, authenticates its response with the PSK,
// and derives the session keys (spec.md §4.2 "Client verification").
type Client struct {
	cfg ClientConfig
}

// NewClient constructs a handshake Client for cfg.
func NewClient(cfg ClientConfig) *Client {
	cfg.Timeout = timeoutOrDefault(cfg.Timeout)
	return &Client{cfg: cfg}
}

// Run executes one handshake attempt over conn and returns the
// resulting session material.
func (c *Client) Run(conn net.Conn) (Result, error) {
	sig, err := c.cfg.Suite.Signer()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnsupportedSuite, err)
	}
	kem, err := c.cfg.Suite.KEM()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnsupportedSuite, err)
	}

	if err := conn.SetDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return Result{}, fmt.Errorf("handshake: set deadline: %w", err)
	}
	helloBytes, err := readFrame(conn)
	if err != nil {
		return Result{}, classifyReadErr(err)
	}
	hello, err := decodeServerHello(helloBytes)
	if err != nil {
		return Result{}, err
	}

	if hello.Version != WireVersion {
		return Result{}, fmt.Errorf("%w: version %d, want %d", ErrFormat, hello.Version, WireVersion)
	}
	// Downgrade defense (spec.md §4.2 "Tie-breaks / edge cases"): the
	// advertised KEM/signature names must exactly match the suite we
	// were configured to expect. No auto-selection.
	if hello.KEMName != c.cfg.Suite.KEMName || hello.SigName != c.cfg.Suite.SigName {
		return Result{}, fmt.Errorf("%w: server advertised kem=%q sig=%q, expected kem=%q sig=%q",
			ErrFormat, hello.KEMName, hello.SigName, c.cfg.Suite.KEMName, c.cfg.Suite.SigName)
	}

	transcript := buildTranscript(hello.Version, hello.SessionID, hello.Challenge, hello.KEMName, hello.SigName, hello.KEMPub)
	valid, err := sig.Verify(c.cfg.VerifyKey, transcript, hello.Signature)
	if err != nil || !valid {
		return Result{}, ErrVerify
	}

	ct, sharedSecret, err := kem.Encapsulate(hello.KEMPub)
	if err != nil {
		return Result{}, fmt.Errorf("handshake: kem encapsulate: %w", err)
	}

	mac := hmac.New(sha256.New, c.cfg.PSK[:])
	mac.Write(helloBytes)
	tag := mac.Sum(nil)

	resp := clientResponseWire{KEMCiphertext: ct}
	copy(resp.Tag[:], tag)
	respBytes := resp.encode()

	if err := conn.SetDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return Result{}, fmt.Errorf("handshake: set deadline: %w", err)
	}
	if err := writeFrame(conn, respBytes); err != nil {
		return Result{}, fmt.Errorf("handshake: write client response: %w", err)
	}

	kD2G, kG2D, err := deriveDirectionalKeys(c.cfg.Suite, hello.SessionID, sharedSecret)
	if err != nil {
		return Result{}, err
	}

	return Result{
		SessionID: hello.SessionID, Suite: c.cfg.Suite, Epoch: 0,
		SendKey: kD2G, RecvKey: kG2D,
	}, nil
}
