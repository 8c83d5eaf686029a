package handshake

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/pqtunnel/suite"
)

func testSuite(t *testing.T) suite.Suite {
	t.Helper()
	s, err := suite.Get("cs-mlkem768-aesgcm-mldsa65")
	require.NoError(t, err)
	return s
}

func TestHandshakeRoundTripDerivesMatchingKeys(t *testing.T) {
	s := testSuite(t)
	sig, err := s.Signer()
	require.NoError(t, err)
	signPub, signPriv, err := sig.Generate()
	require.NoError(t, err)

	var psk [32]byte
	copy(psk[:], []byte("01234567890123456789012345678901"))

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	srv := NewServer(ServerConfig{Suite: s, PSK: psk, SigningKey: signPriv, Timeout: 5 * time.Second})
	cli := NewClient(ClientConfig{Suite: s, PSK: psk, VerifyKey: signPub, Timeout: 5 * time.Second})

	type res struct {
		r   Result
		err error
	}
	serverCh := make(chan res, 1)
	clientCh := make(chan res, 1)

	go func() {
		r, err := srv.Run(serverConn)
		serverCh <- res{r, err}
	}()
	go func() {
		r, err := cli.Run(clientConn)
		clientCh <- res{r, err}
	}()

	sr := <-serverCh
	cr := <-clientCh
	require.NoError(t, sr.err)
	require.NoError(t, cr.err)

	require.Equal(t, sr.r.SessionID, cr.r.SessionID)
	require.Equal(t, sr.r.SendKey, cr.r.RecvKey)
	require.Equal(t, sr.r.RecvKey, cr.r.SendKey)
}

func TestClientRejectsDowngrade(t *testing.T) {
	expected := testSuite(t) // cs-mlkem768-aesgcm-mldsa65
	actuallySent, err := suite.Get("cs-mlkem512-aesgcm-mldsa44")
	require.NoError(t, err)

	sig, err := actuallySent.Signer()
	require.NoError(t, err)
	signPub, signPriv, err := sig.Generate()
	require.NoError(t, err)

	var psk [32]byte
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	srv := NewServer(ServerConfig{Suite: actuallySent, PSK: psk, SigningKey: signPriv, Timeout: 5 * time.Second})
	cli := NewClient(ClientConfig{Suite: expected, PSK: psk, VerifyKey: signPub, Timeout: 5 * time.Second})

	go srv.Run(serverConn)

	_, err = cli.Run(clientConn)
	require.ErrorIs(t, err, ErrFormat)
}

func TestClientRejectsBadSignature(t *testing.T) {
	s := testSuite(t)
	sig, err := s.Signer()
	require.NoError(t, err)
	_, signPriv, err := sig.Generate()
	require.NoError(t, err)
	// Mismatched verify key: a freshly generated, unrelated keypair.
	wrongPub, _, err := sig.Generate()
	require.NoError(t, err)

	var psk [32]byte
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	srv := NewServer(ServerConfig{Suite: s, PSK: psk, SigningKey: signPriv, Timeout: 5 * time.Second})
	cli := NewClient(ClientConfig{Suite: s, PSK: psk, VerifyKey: wrongPub, Timeout: 5 * time.Second})

	go srv.Run(serverConn)

	_, err = cli.Run(clientConn)
	require.ErrorIs(t, err, ErrVerify)
}

func TestServerRejectsBadPSKTag(t *testing.T) {
	s := testSuite(t)
	sig, err := s.Signer()
	require.NoError(t, err)
	signPub, signPriv, err := sig.Generate()
	require.NoError(t, err)

	var serverPSK, clientPSK [32]byte
	clientPSK[0] = 0xFF // deliberately mismatched PSK

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	srv := NewServer(ServerConfig{Suite: s, PSK: serverPSK, SigningKey: signPriv, Timeout: 5 * time.Second})
	cli := NewClient(ClientConfig{Suite: s, PSK: clientPSK, VerifyKey: signPub, Timeout: 5 * time.Second})

	serverErrCh := make(chan error, 1)
	go func() {
		_, err := srv.Run(serverConn)
		serverErrCh <- err
	}()

	_, err = cli.Run(clientConn)
	require.NoError(t, err) // client cannot detect the tag mismatch itself

	require.ErrorIs(t, <-serverErrCh, ErrVerify)
}
