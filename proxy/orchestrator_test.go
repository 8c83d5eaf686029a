// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package proxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/pqtunnel/control"
	"github.com/luxfi/pqtunnel/framing"
	"github.com/luxfi/pqtunnel/internal/logging"
	"github.com/luxfi/pqtunnel/session"
	"github.com/luxfi/pqtunnel/suite"
)

func listenLoopbackUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	return conn
}

func buildContext(t *testing.T, s suite.Suite, sessionID [8]byte, key [32]byte, epoch byte) *session.Context {
	t.Helper()
	kemID, kemParamID, sigID, sigParamID := s.HeaderIDs()
	snd, err := framing.NewSender(key, sessionID, kemID, kemParamID, sigID, sigParamID, epoch)
	require.NoError(t, err)
	rcv, err := framing.NewReceiver(key, sessionID, kemID, kemParamID, sigID, sigParamID, epoch, replayWindowForTest)
	require.NoError(t, err)
	return &session.Context{SessionID: sessionID, Suite: s, Epoch: epoch, Sender: snd, Receiver: rcv}
}

const replayWindowForTest = 1024

func TestOutboundAndInboundForwarding(t *testing.T) {
	s, err := suite.Get("cs-mlkem768-aesgcm-mldsa65")
	require.NoError(t, err)

	var key [32]byte
	key[0] = 0x42
	sessionID := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}

	// side A: the orchestrator under test, B: a peer we simulate by hand.
	aEnc := listenLoopbackUDP(t)
	bEnc := listenLoopbackUDP(t)
	aPlain := listenLoopbackUDP(t)
	appPeer := listenLoopbackUDP(t) // stands in for the local application

	defer aEnc.Close()
	defer bEnc.Close()
	defer aPlain.Close()
	defer appPeer.Close()

	// Same key used both directions in this test: loopback peer plays
	// both roles, so Sender/Receiver under test must agree with what
	// the simulated peer builds below.
	ctxA := buildContext(t, s, sessionID, key, 0)

	counters := session.NewProxyCounters()
	mgr := session.NewManager(ctxA)
	ctrl := control.NewEngine(control.RoleGCS, control.Config{})

	orch := NewOrchestrator(logging.Nop(), aEnc, aPlain,
		bEnc.LocalAddr().(*net.UDPAddr), appPeer.LocalAddr().(*net.UDPAddr),
		mgr, counters, ctrl, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	// Outbound: appPeer -> aPlain -> (encrypted) -> bEnc.
	_, err = appPeer.WriteToUDP([]byte("hello drone"), aPlain.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	require.NoError(t, bEnc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 2048)
	n, _, err := bEnc.ReadFromUDP(buf)
	require.NoError(t, err)

	ctxB := buildContext(t, s, sessionID, key, 0)
	packetType, payload, ok := ctxB.Receiver.Decrypt(buf[:n])
	require.True(t, ok)
	require.Equal(t, PacketTypeData, packetType)
	require.Equal(t, "hello drone", string(payload))

	// Inbound: bEnc encrypts a reply addressed to aEnc; the
	// orchestrator should verify and forward it to appPeer.
	wire, err := ctxB.Sender.Encrypt(PacketTypeData, []byte("hello gcs"))
	require.NoError(t, err)
	_, err = bEnc.WriteToUDP(wire, aEnc.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	require.NoError(t, appPeer.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err = appPeer.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Equal(t, "hello gcs", string(buf[:n]))

	snap := counters.Snapshot()
	require.EqualValues(t, 1, snap.PtxIn)
	require.EqualValues(t, 1, snap.EncOut)
	require.EqualValues(t, 1, snap.EncIn)
	require.EqualValues(t, 1, snap.PtxOut)

	cancel()
	<-done
}

// fakeRehandshaker hands out a pre-agreed context at the requested
// epoch, standing in for the TCP handshake both real roles would run.
// A non-nil gate blocks Rehandshake until the test closes it,
// simulating a slow swap.
type fakeRehandshaker struct {
	t         *testing.T
	sessionID [8]byte
	key       [32]byte
	gate      chan struct{}
}

func (f *fakeRehandshaker) Rehandshake(suiteID string, epoch byte) (session.Context, error) {
	if f.gate != nil {
		<-f.gate
	}
	s, err := suite.Get(suiteID)
	if err != nil {
		return session.Context{}, err
	}
	return *buildContext(f.t, s, f.sessionID, f.key, epoch), nil
}

func TestRekeyTwoPhaseCommitAcrossTunnel(t *testing.T) {
	oldSuite, err := suite.Get("cs-mlkem768-aesgcm-mldsa65")
	require.NoError(t, err)
	newSuite, err := suite.Get("cs-mlkem1024-aesgcm-mldsa87")
	require.NoError(t, err)

	var oldKey, newKey [32]byte
	oldKey[0], newKey[0] = 0x11, 0x22
	oldSession := [8]byte{1, 1, 1, 1, 1, 1, 1, 1}
	newSession := [8]byte{2, 2, 2, 2, 2, 2, 2, 2}

	aEnc := listenLoopbackUDP(t)
	bEnc := listenLoopbackUDP(t)
	aPlain := listenLoopbackUDP(t)
	bPlain := listenLoopbackUDP(t)
	appA := listenLoopbackUDP(t)
	appB := listenLoopbackUDP(t)
	for _, c := range []*net.UDPConn{aEnc, bEnc, aPlain, bPlain, appA, appB} {
		defer c.Close()
	}

	known := []string{oldSuite.ID, newSuite.ID}

	mgrA := session.NewManager(buildContext(t, oldSuite, oldSession, oldKey, 0))
	mgrB := session.NewManager(buildContext(t, oldSuite, oldSession, oldKey, 0))
	countersA := session.NewProxyCounters()
	countersB := session.NewProxyCounters()
	ctrlA := control.NewEngine(control.RoleGCS, control.Config{KnownSuites: known})
	ctrlB := control.NewEngine(control.RoleDrone, control.Config{KnownSuites: known})

	// Both swaps are held open until the test releases the gate, so
	// the window where forwarding must keep working is observable.
	gate := make(chan struct{})

	orchA := NewOrchestrator(logging.Nop(), aEnc, aPlain,
		bEnc.LocalAddr().(*net.UDPAddr), appA.LocalAddr().(*net.UDPAddr),
		mgrA, countersA, ctrlA,
		&fakeRehandshaker{t: t, sessionID: newSession, key: newKey, gate: gate})
	orchB := NewOrchestrator(logging.Nop(), bEnc, bPlain,
		aEnc.LocalAddr().(*net.UDPAddr), appB.LocalAddr().(*net.UDPAddr),
		mgrB, countersB, ctrlB,
		&fakeRehandshaker{t: t, sessionID: newSession, key: newKey, gate: gate})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	doneA := make(chan error, 1)
	doneB := make(chan error, 1)
	go func() { doneA <- orchA.Run(ctx) }()
	go func() { doneB <- orchB.Run(ctx) }()

	require.NoError(t, orchA.InitiateRekey(newSuite.ID))

	// Wait until both endpoints are mid-swap, blocked inside their
	// (gated) rekey handshakes on the control goroutine.
	require.Eventually(t, func() bool {
		return ctrlA.State() == control.SWAPPING && ctrlB.State() == control.SWAPPING
	}, 5*time.Second, 10*time.Millisecond)

	// Data traffic must keep flowing under the old epoch while the
	// swap is in progress: the forwarders are separate activities from
	// the control handler.
	_, err = appA.WriteToUDP([]byte("mid-swap"), aPlain.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	require.NoError(t, appB.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 2048)
	n, _, err := appB.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Equal(t, "mid-swap", string(buf[:n]))

	close(gate)

	require.Eventually(t, func() bool {
		return countersA.Snapshot().RekeysOK == 1 && countersB.Snapshot().RekeysOK == 1
	}, 5*time.Second, 10*time.Millisecond)

	snapA := mgrA.Snapshot()
	snapB := mgrB.Snapshot()
	require.Equal(t, newSuite.ID, snapA.Suite.ID)
	require.Equal(t, newSuite.ID, snapB.Suite.ID)
	require.EqualValues(t, 1, snapA.Epoch)
	require.EqualValues(t, 1, snapB.Epoch)
	require.Equal(t, newSuite.ID, countersA.Snapshot().LastRekeySuite)

	// Traffic continues under the new keys and epoch.
	_, err = appA.WriteToUDP([]byte("post-rekey"), aPlain.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	require.NoError(t, appB.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err = appB.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Equal(t, "post-rekey", string(buf[:n]))

	cancel()
	<-doneA
	<-doneB
}

func TestInboundFromUnpinnedPeerIsDropped(t *testing.T) {
	s, err := suite.Get("cs-mlkem768-aesgcm-mldsa65")
	require.NoError(t, err)

	var key [32]byte
	sessionID := [8]byte{9}

	aEnc := listenLoopbackUDP(t)
	aPlain := listenLoopbackUDP(t)
	stranger := listenLoopbackUDP(t)
	pinnedPeer := listenLoopbackUDP(t)
	defer aEnc.Close()
	defer aPlain.Close()
	defer stranger.Close()
	defer pinnedPeer.Close()

	ctxA := buildContext(t, s, sessionID, key, 0)
	counters := session.NewProxyCounters()
	mgr := session.NewManager(ctxA)
	ctrl := control.NewEngine(control.RoleGCS, control.Config{})

	orch := NewOrchestrator(logging.Nop(), aEnc, aPlain,
		pinnedPeer.LocalAddr().(*net.UDPAddr), aPlain.LocalAddr().(*net.UDPAddr),
		mgr, counters, ctrl, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	strangerCtx := buildContext(t, s, sessionID, key, 0)
	wire, err := strangerCtx.Sender.Encrypt(PacketTypeData, []byte("not pinned"))
	require.NoError(t, err)
	_, err = stranger.WriteToUDP(wire, aEnc.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return counters.Snapshot().DropOther >= 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
