// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package proxy is the composition root (C5, spec.md §4.5): around
// encrypted-UDP and plaintext-UDP sockets bound by the caller, it runs
// the outbound/inbound forwarding loops, and dispatches control-plane
// packets to the rekey engine. The concurrency shape mirrors the
// ctx/cancel/errgroup pattern the teacher uses to run its long-lived
// background services.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/pqtunnel/control"
	"github.com/luxfi/pqtunnel/framing"
	"github.com/luxfi/pqtunnel/internal/logging"
	"github.com/luxfi/pqtunnel/session"
)

// Packet types carried as the first plaintext byte (spec.md §4.1,
// §4.4): 0x01 is opaque application payload, 0x02 is a control
// message for the rekey engine.
const (
	PacketTypeData    byte = 0x01
	PacketTypeControl byte = 0x02
)

const maxUDPDatagram = 65507

// Rehandshaker performs a fresh TCP handshake under a new suite and
// returns the resulting session material at the given epoch, without
// touching the active SessionContext (spec.md §4.4 step 3: "open a
// fresh handshake ... derive new keys" happens before the atomic
// swap). The GCS and drone roles implement this differently
// (Server.Run vs Client.Run), so the orchestrator depends only on
// this interface.
type Rehandshaker interface {
	Rehandshake(suiteID string, epoch byte) (session.Context, error)
}

// Orchestrator drives one encrypted UDP socket and one plaintext UDP
// socket, both bound by the caller, and runs the forwarding loops
// described in spec.md §4.5. Rekey handshakes go through its
// Rehandshaker.
type Orchestrator struct {
	logger logging.Logger

	encConn   *net.UDPConn
	plainConn *net.UDPConn

	// peerEncAddr is the pinned network peer; inbound datagrams from
	// any other address are dropped as drop_other.
	peerEncAddr *net.UDPAddr
	// plainPeerAddr is the loopback peer the plaintext socket
	// forwards decrypted payloads to.
	plainPeerAddr *net.UDPAddr

	sessions *session.Manager
	counters *session.ProxyCounters
	control  *control.Engine
	rehs     Rehandshaker

	// controlCh hands decoded-but-unprocessed control bodies from the
	// inbound forwarder to the control/policy goroutine, so a rekey
	// handshake (up to the 60s swap window) can never stall datagram
	// forwarding. Bounded: excess control traffic is dropped like any
	// other backpressure.
	controlCh chan []byte
}

// NewOrchestrator builds an Orchestrator around already-bound
// sockets and an already-completed handshake's session material.
func NewOrchestrator(
	logger logging.Logger,
	encConn, plainConn *net.UDPConn,
	peerEncAddr, plainPeerAddr *net.UDPAddr,
	sessions *session.Manager,
	counters *session.ProxyCounters,
	controlEngine *control.Engine,
	rehs Rehandshaker,
) *Orchestrator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Orchestrator{
		logger: logger, encConn: encConn, plainConn: plainConn,
		peerEncAddr: peerEncAddr, plainPeerAddr: plainPeerAddr,
		sessions: sessions, counters: counters, control: controlEngine, rehs: rehs,
		controlCh: make(chan []byte, 16),
	}
}

// Run starts the orchestrator's concurrent activities (spec.md §5:
// outbound forwarder, inbound forwarder, control/policy handler) and
// blocks until ctx is canceled or one returns a fatal error. Socket
// closes unblock the forwarders' pending reads on cancellation.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return o.outboundLoop(gctx) })
	g.Go(func() error { return o.inboundLoop(gctx) })
	g.Go(func() error { return o.controlLoop(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		o.encConn.Close()
		o.plainConn.Close()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// outboundLoop reads plaintext datagrams from the loopback socket,
// encrypts them under the active session, and sends them to the
// pinned network peer (spec.md §4.5 "Outbound").
func (o *Orchestrator) outboundLoop(ctx context.Context) error {
	buf := make([]byte, maxUDPDatagram)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, _, err := o.plainConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("proxy: outbound read: %w", err)
		}
		o.counters.IncPtxIn()

		ctxSnap := o.sessions.Current()
		wire, err := ctxSnap.Sender.Encrypt(PacketTypeData, append([]byte(nil), buf[:n]...))
		if err != nil {
			// An exhausted sequence means nothing more can be sent
			// under this key, including the control messages a rekey
			// negotiation would ride on; tear the tunnel down and let
			// the embedder re-establish it.
			if errors.Is(err, framing.ErrSequenceExhausted) {
				return fmt.Errorf("proxy: outbound: %w", err)
			}
			o.logger.Warn("outbound encrypt failed", zap.Error(err))
			o.counters.IncDropOther()
			continue
		}

		if _, err := o.encConn.WriteToUDP(wire, o.peerEncAddr); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.counters.IncDropOther()
			continue
		}
		o.counters.IncEncOut()
	}
}

// inboundLoop reads encrypted datagrams from the network socket,
// verifies the peer and the AEAD, and routes the plaintext by packet
// type (spec.md §4.5 "Inbound").
func (o *Orchestrator) inboundLoop(ctx context.Context) error {
	buf := make([]byte, maxUDPDatagram)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, from, err := o.encConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("proxy: inbound read: %w", err)
		}

		if !addrEqual(from, o.peerEncAddr) {
			o.counters.IncDropOther()
			continue
		}

		ctxSnap := o.sessions.Current()
		packetType, payload, ok := ctxSnap.Receiver.Decrypt(buf[:n])
		if !ok {
			o.counters.IncDrop(ctxSnap.Receiver.LastErrorReason())
			continue
		}

		switch packetType {
		case PacketTypeData:
			if _, err := o.plainConn.WriteToUDP(payload, o.plainPeerAddr); err != nil {
				o.counters.IncDropOther()
				continue
			}
			o.counters.IncEncIn()
			o.counters.IncPtxOut()
		case PacketTypeControl:
			// Hand off to the control goroutine; never run rekey
			// mechanics on the goroutine servicing the encrypted
			// socket. payload is its own allocation (AEAD output),
			// safe to pass without copying.
			select {
			case o.controlCh <- payload:
			default:
				o.counters.IncDropOther()
			}
		default:
			o.counters.IncDropOther()
		}
	}
}

// controlLoop is the control/policy handler activity (spec.md §5): it
// consumes control bodies the inbound forwarder hands off and
// enforces the rekey phase timers (spec.md §4.4 "Timing" — an expired
// prepare returns the engine to RUNNING, an expired swap fails the
// attempt). Rekey handshakes run here, so the forwarders keep
// servicing their sockets for the whole swap window.
func (o *Orchestrator) controlLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case body := <-o.controlCh:
			o.handleControl(body)
		case <-ticker.C:
			if err := o.control.ExpirePrepareIfDue(timeNow()); err != nil {
				o.logger.Warn("rekey prepare phase timed out", zap.Error(err))
				o.counters.IncRekeyFail()
			}
			if err := o.control.ExpireSwapIfDue(timeNow()); err != nil {
				o.logger.Warn("rekey swap phase timed out", zap.Error(err))
				o.counters.IncRekeyFail()
			}
		}
	}
}

func (o *Orchestrator) handleControl(body []byte) {
	msg, err := control.Decode(body)
	if err != nil {
		o.logger.Warn("dropping malformed control message", zap.Error(err))
		o.counters.IncDropOther()
		return
	}

	switch m := msg.(type) {
	case *control.PrepareRekey:
		o.respondToPrepareRekey(m)
	case *control.CommitRekey:
		o.advanceToSwap(m)
	case *control.PrepareFail:
		if err := o.control.HandlePrepareFail(m); err != nil {
			o.logger.Warn("prepare_rekey rejected by peer", zap.String("reason", m.Reason))
			// A rejection that ended our own negotiation is a failed
			// rekey attempt; a stale one (ErrWrongState) is not.
			if !errors.Is(err, control.ErrWrongState) {
				o.counters.IncRekeyFail()
			}
		}
	case *control.RekeyComplete:
		// Counters were already advanced by this endpoint's own
		// swapUnderNewSuite; the peer's report only feeds the state
		// machine.
		o.control.HandleRekeyComplete(m)
	default:
		o.counters.IncDropOther()
	}
}

func (o *Orchestrator) respondToPrepareRekey(m *control.PrepareRekey) {
	// A two-party tunnel has exactly one peer, so the sender's role is
	// the opposite of our own. The control engine rejects any
	// prepare_rekey whose sender is not the GCS.
	fromRole := control.RoleGCS
	if o.control.Role() == control.RoleGCS {
		fromRole = control.RoleDrone
	}
	reply, err := o.control.HandlePrepareRekey(fromRole, m, timeNow())
	if err != nil {
		o.sendControl(reply)
		o.logger.Warn("rejecting prepare_rekey", zap.Error(err))
		return
	}
	o.sendControl(reply)
	o.swapUnderNewSuite(m.TargetSuite)
}

func (o *Orchestrator) advanceToSwap(m *control.CommitRekey) {
	if err := o.control.HandleCommitRekey(m, timeNow()); err != nil {
		o.logger.Warn("commit_rekey rejected", zap.Error(err))
		o.counters.IncRekeyFail()
		return
	}
	o.swapUnderNewSuite(m.TargetSuite)
}

// swapUnderNewSuite performs the handshake-and-swap mechanics of
// spec.md §4.4 step 3: a fresh handshake under the target suite,
// then an atomic SessionContext replacement with the epoch advanced
// by one. The old context's Sender/Receiver remain valid for any
// packet already admitted under the previous epoch; no new packet
// is ever emitted under it after Swap returns.
func (o *Orchestrator) swapUnderNewSuite(suiteID string) {
	if o.rehs == nil {
		o.control.MarkComplete(false, timeNow())
		o.counters.IncRekeyFail()
		return
	}

	old := o.sessions.Current()
	next, err := o.rehs.Rehandshake(suiteID, old.Epoch+1)
	if err != nil {
		o.logger.Error("rekey handshake failed", zap.Error(err))
		complete := o.control.MarkComplete(false, timeNow())
		o.sendControl(complete)
		o.counters.IncRekeyFail()
		return
	}

	o.sessions.Swap(&next)

	complete := o.control.MarkComplete(true, timeNow())
	o.sendControl(complete)
	o.counters.IncRekeyOK(suiteID)
}

func (o *Orchestrator) sendControl(msg interface{}) {
	var body []byte
	var err error
	switch m := msg.(type) {
	case *control.PrepareRekey:
		body, err = m.Encode()
	case *control.CommitRekey:
		body, err = m.Encode()
	case *control.PrepareFail:
		body, err = m.Encode()
	case *control.RekeyComplete:
		body, err = m.Encode()
	default:
		return
	}
	if err != nil {
		o.logger.Error("encode control message", zap.Error(err))
		return
	}

	ctxSnap := o.sessions.Current()
	wire, err := ctxSnap.Sender.Encrypt(PacketTypeControl, body)
	if err != nil {
		o.logger.Error("encrypt control message", zap.Error(err))
		return
	}
	if _, err := o.encConn.WriteToUDP(wire, o.peerEncAddr); err != nil {
		o.logger.Error("send control message", zap.Error(err))
		return
	}
	o.counters.IncEncOut()
}

// InitiateRekey is the GCS-only entry point an embedder calls to
// start a suite swap (spec.md §4.4 "Anti-abuse": only the GCS role
// may initiate).
func (o *Orchestrator) InitiateRekey(targetSuiteID string) error {
	prepare, err := o.control.InitiateRekey(targetSuiteID, timeNow())
	if err != nil {
		return fmt.Errorf("proxy: initiate rekey: %w", err)
	}
	o.sendControl(prepare)
	return nil
}

func addrEqual(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

// timeNow is the single clock reference the control engine's
// deadlines are measured against, isolated here so tests can't
// accidentally depend on wall-clock flakiness through the
// Orchestrator's public surface.
var timeNow = defaultTimeNow
