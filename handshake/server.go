package handshake

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"time"
)

// Server runs the GCS role of the handshake: constructs and signs the
// ServerHello, verifies the client's PSK-authenticated response, and
// derives the session keys (spec.md §4.2 "ServerHello construction",
// "Server completion").
type Server struct {
	cfg ServerConfig
}

// NewServer constructs a handshake Server for cfg.
func NewServer(cfg ServerConfig) *Server {
	cfg.Timeout = timeoutOrDefault(cfg.Timeout)
	return &Server{cfg: cfg}
}

// Run executes one handshake attempt over conn and returns the
// resulting session material. Any error is fatal for this attempt;
// no partial state is retained (spec.md §4.2 "Error conditions").
func (s *Server) Run(conn net.Conn) (Result, error) {
	sig, err := s.cfg.Suite.Signer()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnsupportedSuite, err)
	}
	kem, err := s.cfg.Suite.KEM()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnsupportedSuite, err)
	}

	var sessionID, challenge [8]byte
	if _, err := rand.Read(sessionID[:]); err != nil {
		return Result{}, fmt.Errorf("handshake: session id rng: %w", err)
	}
	if _, err := rand.Read(challenge[:]); err != nil {
		return Result{}, fmt.Errorf("handshake: challenge rng: %w", err)
	}

	kemPub, kemPriv, err := kem.Generate()
	if err != nil {
		return Result{}, fmt.Errorf("handshake: kem keygen: %w", err)
	}

	transcript := buildTranscript(WireVersion, sessionID, challenge, s.cfg.Suite.KEMName, s.cfg.Suite.SigName, kemPub)
	signature, err := sig.Sign(s.cfg.SigningKey, transcript)
	if err != nil {
		return Result{}, fmt.Errorf("handshake: sign transcript: %w", err)
	}

	hello := serverHelloWire{
		Version: WireVersion, KEMName: s.cfg.Suite.KEMName, SigName: s.cfg.Suite.SigName,
		SessionID: sessionID, Challenge: challenge, KEMPub: kemPub, Signature: signature,
	}
	helloBytes := hello.encode()

	if err := conn.SetDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
		return Result{}, fmt.Errorf("handshake: set deadline: %w", err)
	}
	if err := writeFrame(conn, helloBytes); err != nil {
		return Result{}, fmt.Errorf("handshake: write server hello: %w", err)
	}

	if err := conn.SetDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
		return Result{}, fmt.Errorf("handshake: set deadline: %w", err)
	}
	respBytes, err := readFrame(conn)
	if err != nil {
		return Result{}, classifyReadErr(err)
	}
	resp, err := decodeClientResponse(respBytes)
	if err != nil {
		return Result{}, err
	}

	mac := hmac.New(sha256.New, s.cfg.PSK[:])
	mac.Write(helloBytes)
	expectedTag := mac.Sum(nil)
	if !hmac.Equal(expectedTag, resp.Tag[:]) {
		return Result{}, ErrVerify
	}

	sharedSecret, err := kem.Decapsulate(kemPriv, resp.KEMCiphertext)
	if err != nil {
		return Result{}, fmt.Errorf("handshake: kem decapsulate: %w", err)
	}

	kD2G, kG2D, err := deriveDirectionalKeys(s.cfg.Suite, sessionID, sharedSecret)
	if err != nil {
		return Result{}, err
	}

	return Result{
		SessionID: sessionID, Suite: s.cfg.Suite, Epoch: 0,
		SendKey: kG2D, RecvKey: kD2G,
	}, nil
}

func classifyReadErr(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
