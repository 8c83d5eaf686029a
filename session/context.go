// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package session holds the mutable per-tunnel state: the single
// active SessionContext (spec.md §3, §4.6) and the ProxyCounters
// every component reports into.
package session

import (
	"sync"

	"github.com/luxfi/pqtunnel/framing"
	"github.com/luxfi/pqtunnel/suite"
)

// Context is the mutable cryptographic state of one tunnel instance.
// Exactly one Context is live at a time; Manager.Swap atomically
// replaces it (spec.md §4.6 invariant: after swap, no Sender or
// Receiver operation may use any key or sequence from the old
// context).
type Context struct {
	SessionID [8]byte
	Suite     suite.Suite
	Epoch     byte
	Sender    *framing.Sender
	Receiver  *framing.Receiver
}

// Snapshot is a read-only copy handed to observers.
type Snapshot struct {
	SessionID [8]byte
	Suite     suite.Suite
	Epoch     byte
}

// Manager owns the single active Context behind a mutex, so that
// swap is totally ordered with respect to both outbound and inbound
// handling (spec.md §5 "Ordering guarantees").
type Manager struct {
	mu  sync.RWMutex
	ctx *Context
}

// NewManager wraps an initial Context, normally the one produced by
// the first successful handshake.
func NewManager(ctx *Context) *Manager {
	return &Manager{ctx: ctx}
}

// Current returns the active Context. Callers must treat the
// returned pointer as valid only for the duration of the current
// datagram-handling step (spec.md §4.5 "keeping the cryptographic
// hot path lock-free once a reference ... has been acquired").
func (m *Manager) Current() *Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctx
}

// Swap atomically replaces the active Context, e.g. after a
// successful rekey (spec.md §4.4 step 3 "atomic swap").
func (m *Manager) Swap(next *Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx = next
}

// Snapshot returns a copy of the active Context's identifying fields
// for observers (spec.md §4.6 current_snapshot).
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{SessionID: m.ctx.SessionID, Suite: m.ctx.Suite, Epoch: m.ctx.Epoch}
}
