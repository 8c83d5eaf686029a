// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package session

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/pqtunnel/framing"
)

// ProxyCounters is the exact counter set of spec.md §3/§7: a single
// mutex-guarded struct, read via Snapshot, written via the Inc*
// methods. A Prometheus registration is optional and additive: it
// never becomes the source of truth, it mirrors it.
type ProxyCounters struct {
	mu sync.Mutex

	ptxIn  int64
	ptxOut int64
	encIn  int64
	encOut int64

	drops            int64
	dropAuth         int64
	dropHeader       int64
	dropReplay       int64
	dropSessionEpoch int64
	dropOther        int64

	rekeysOK       int64
	rekeysFail     int64
	lastRekeySuite string

	prom *promCounters
}

// CounterSnapshot is an immutable copy of ProxyCounters for reporting
// (spec.md §7 "a summary JSON containing all counters").
type CounterSnapshot struct {
	PtxIn, PtxOut, EncIn, EncOut                                         int64
	Drops, DropAuth, DropHeader, DropReplay, DropSessionEpoch, DropOther int64
	RekeysOK, RekeysFail                                                 int64
	LastRekeySuite                                                       string
}

// NewProxyCounters builds a ProxyCounters with all fields zeroed.
func NewProxyCounters() *ProxyCounters {
	return &ProxyCounters{}
}

// IncPtxIn records a datagram read from the local plaintext socket.
func (c *ProxyCounters) IncPtxIn() { c.mu.Lock(); c.ptxIn++; c.syncPromLocked(); c.mu.Unlock() }

// IncPtxOut records a datagram forwarded to the local plaintext
// socket.
func (c *ProxyCounters) IncPtxOut() { c.mu.Lock(); c.ptxOut++; c.syncPromLocked(); c.mu.Unlock() }

// IncEncIn records an encrypted datagram that was verified and
// delivered to the plaintext side.
func (c *ProxyCounters) IncEncIn() { c.mu.Lock(); c.encIn++; c.syncPromLocked(); c.mu.Unlock() }

// IncEncOut records a datagram sent on the encrypted network socket.
func (c *ProxyCounters) IncEncOut() { c.mu.Lock(); c.encOut++; c.syncPromLocked(); c.mu.Unlock() }

// IncDrop records a dropped inbound packet, classifying it by the
// decrypt-time DropReason. spec.md's resolved open question folds
// both "session" (session-id mismatch) and "session_epoch"
// (wire-id/epoch mismatch) into a single drop_session_epoch counter,
// since both indicate the peer's current SessionContext disagrees
// with ours.
func (c *ProxyCounters) IncDrop(reason framing.DropReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drops++
	switch reason {
	case framing.ReasonAuth:
		c.dropAuth++
	case framing.ReasonHeader:
		c.dropHeader++
	case framing.ReasonReplay:
		c.dropReplay++
	case framing.ReasonSession, framing.ReasonSessionEpoch:
		c.dropSessionEpoch++
	default:
		c.dropOther++
	}
	c.syncPromLocked()
}

// IncDropOther records a drop not produced by Receiver.Decrypt, e.g.
// a non-pinned-peer datagram or WouldBlock backpressure (spec.md
// §4.5 "Backpressure").
func (c *ProxyCounters) IncDropOther() {
	c.mu.Lock()
	c.drops++
	c.dropOther++
	c.syncPromLocked()
	c.mu.Unlock()
}

// IncRekeyOK records a successful rekey.
func (c *ProxyCounters) IncRekeyOK(suiteID string) {
	c.mu.Lock()
	c.rekeysOK++
	c.lastRekeySuite = suiteID
	c.syncPromLocked()
	c.mu.Unlock()
}

// IncRekeyFail records a failed rekey attempt.
func (c *ProxyCounters) IncRekeyFail() {
	c.mu.Lock()
	c.rekeysFail++
	c.syncPromLocked()
	c.mu.Unlock()
}

// Snapshot returns a copy of every counter.
func (c *ProxyCounters) Snapshot() CounterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CounterSnapshot{
		PtxIn: c.ptxIn, PtxOut: c.ptxOut, EncIn: c.encIn, EncOut: c.encOut,
		Drops: c.drops, DropAuth: c.dropAuth, DropHeader: c.dropHeader,
		DropReplay: c.dropReplay, DropSessionEpoch: c.dropSessionEpoch, DropOther: c.dropOther,
		RekeysOK: c.rekeysOK, RekeysFail: c.rekeysFail, LastRekeySuite: c.lastRekeySuite,
	}
}

// promCounters mirrors ProxyCounters into Prometheus gauges, updated
// under the same lock that guards the authoritative int64 fields.
type promCounters struct {
	ptxIn, ptxOut, encIn, encOut                                         prometheus.Gauge
	drops, dropAuth, dropHeader, dropReplay, dropSessionEpoch, dropOther prometheus.Gauge
	rekeysOK, rekeysFail                                                 prometheus.Gauge
}

// RegisterPrometheus mirrors the counters into reg under the given
// metric name prefix (e.g. "pqtunnel_gcs"). Call once per process.
func (c *ProxyCounters) RegisterPrometheus(reg prometheus.Registerer, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: prefix + "_" + name, Help: help})
	}
	pc := &promCounters{
		ptxIn:            g("ptx_in", "plaintext datagrams read from the loopback socket"),
		ptxOut:           g("ptx_out", "plaintext datagrams delivered to the loopback socket"),
		encIn:            g("enc_in", "encrypted datagrams verified and delivered"),
		encOut:           g("enc_out", "encrypted datagrams sent on the network socket"),
		drops:            g("drops_total", "inbound packets dropped for any reason"),
		dropAuth:         g("drop_auth", "drops due to AEAD authentication failure"),
		dropHeader:       g("drop_header", "drops due to malformed or undersized header"),
		dropReplay:       g("drop_replay", "drops due to replay-window rejection"),
		dropSessionEpoch: g("drop_session_epoch", "drops due to session-id or epoch/suite mismatch"),
		dropOther:        g("drop_other", "drops due to backpressure or unpinned peer"),
		rekeysOK:         g("rekeys_ok", "completed rekey operations"),
		rekeysFail:       g("rekeys_fail", "failed rekey attempts"),
	}
	for _, m := range []prometheus.Gauge{
		pc.ptxIn, pc.ptxOut, pc.encIn, pc.encOut,
		pc.drops, pc.dropAuth, pc.dropHeader, pc.dropReplay, pc.dropSessionEpoch, pc.dropOther,
		pc.rekeysOK, pc.rekeysFail,
	} {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	c.prom = pc
	c.syncPromLocked()
	return nil
}

func (c *ProxyCounters) syncPromLocked() {
	if c.prom == nil {
		return
	}
	c.prom.ptxIn.Set(float64(c.ptxIn))
	c.prom.ptxOut.Set(float64(c.ptxOut))
	c.prom.encIn.Set(float64(c.encIn))
	c.prom.encOut.Set(float64(c.encOut))
	c.prom.drops.Set(float64(c.drops))
	c.prom.dropAuth.Set(float64(c.dropAuth))
	c.prom.dropHeader.Set(float64(c.dropHeader))
	c.prom.dropReplay.Set(float64(c.dropReplay))
	c.prom.dropSessionEpoch.Set(float64(c.dropSessionEpoch))
	c.prom.dropOther.Set(float64(c.dropOther))
	c.prom.rekeysOK.Set(float64(c.rekeysOK))
	c.prom.rekeysFail.Set(float64(c.rekeysFail))
}
