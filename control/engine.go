// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package control

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"
)

// DefaultPrepareTimeout and DefaultSwapTimeout are the phase timers
// from spec.md §4.4 "Timing".
const (
	DefaultPrepareTimeout = 30 * time.Second
	DefaultSwapTimeout    = 60 * time.Second
)

// Config configures an Engine's timers and locally implementable
// suites.
type Config struct {
	PrepareTimeout time.Duration
	SwapTimeout    time.Duration
	// KnownSuites lists the suite IDs this endpoint can serve as a
	// rekey target (spec.md §4.4 step 2, "locally implementable").
	KnownSuites []string
}

func (c Config) withDefaults() Config {
	if c.PrepareTimeout <= 0 {
		c.PrepareTimeout = DefaultPrepareTimeout
	}
	if c.SwapTimeout <= 0 {
		c.SwapTimeout = DefaultSwapTimeout
	}
	return c
}

// Engine is the per-endpoint rekey state machine described in
// spec.md §4.4. It owns no network I/O; the orchestrator (C5) feeds
// it decoded control messages and carries out the handshake/swap
// mechanics the state machine authorizes.
type Engine struct {
	mu sync.Mutex

	role Role
	cfg  Config

	state       State
	targetSuite string
	nonce       [nonceSize]byte

	prepareDeadline time.Time
	swapDeadline    time.Time

	rolledBackOnce bool
}

// NewEngine constructs an Engine for role, initially in RUNNING.
func NewEngine(role Role, cfg Config) *Engine {
	return &Engine{role: role, cfg: cfg.withDefaults(), state: RUNNING}
}

// Role returns which endpoint this engine represents.
func (e *Engine) Role() Role { return e.role }

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) knowsSuite(id string) bool {
	for _, s := range e.cfg.KnownSuites {
		if s == id {
			return true
		}
	}
	return false
}

// InitiateRekey starts a rekey as the GCS. Only valid in RUNNING and
// only for the GCS role (spec.md §4.4 "Anti-abuse").
func (e *Engine) InitiateRekey(targetSuite string, now time.Time) (*PrepareRekey, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.role != RoleGCS {
		return nil, ErrUnauthorized
	}
	if e.state != RUNNING {
		return nil, ErrWrongState
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("control: nonce rng: %w", err)
	}

	e.state = NEGOTIATING
	e.targetSuite = targetSuite
	e.nonce = nonce
	e.prepareDeadline = now.Add(e.cfg.PrepareTimeout)

	return &PrepareRekey{TargetSuite: targetSuite, Nonce: nonce, Ts: now.Unix()}, nil
}

// HandlePrepareRekey processes an incoming prepare_rekey from a peer
// of role fromRole. It returns the message to send back: a
// *CommitRekey on acceptance (and the engine enters SWAPPING per
// spec.md §4.4 step 3, "after sending it (responder)"), or a
// *PrepareFail otherwise (the engine's state is left unchanged).
func (e *Engine) HandlePrepareRekey(fromRole Role, msg *PrepareRekey, now time.Time) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if fromRole != RoleGCS {
		return &PrepareFail{Reason: "unauthorized", Ts: now.Unix()}, ErrUnauthorized
	}
	if e.state != RUNNING {
		return &PrepareFail{Reason: "busy", Ts: now.Unix()}, ErrWrongState
	}
	if !e.knowsSuite(msg.TargetSuite) {
		return &PrepareFail{Reason: "unknown_suite", Ts: now.Unix()}, ErrUnknownSuite
	}

	e.targetSuite = msg.TargetSuite
	e.nonce = msg.Nonce
	e.state = SWAPPING
	e.swapDeadline = now.Add(e.cfg.SwapTimeout)

	return &CommitRekey{TargetSuite: msg.TargetSuite, NonceEcho: msg.Nonce, Ts: now.Unix()}, nil
}

// HandleCommitRekey processes the responder's commit_rekey as seen
// by the initiator, entering SWAPPING.
func (e *Engine) HandleCommitRekey(msg *CommitRekey, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != NEGOTIATING {
		return ErrWrongState
	}
	if now.After(e.prepareDeadline) {
		e.state = RUNNING
		return ErrPrepareTimeout
	}
	if msg.TargetSuite != e.targetSuite {
		return ErrWrongState
	}
	if msg.NonceEcho != e.nonce {
		return ErrNonceMismatch
	}

	e.state = SWAPPING
	e.swapDeadline = now.Add(e.cfg.SwapTimeout)
	return nil
}

// HandlePrepareFail aborts an in-flight negotiation, returning to
// RUNNING.
func (e *Engine) HandlePrepareFail(msg *PrepareFail) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != NEGOTIATING {
		return ErrWrongState
	}
	e.state = RUNNING
	return fmt.Errorf("control: peer rejected prepare_rekey: %s", msg.Reason)
}

// ExpirePrepareIfDue returns ErrPrepareTimeout and returns the
// initiator to RUNNING if the prepare phase has exceeded its
// deadline while still NEGOTIATING.
func (e *Engine) ExpirePrepareIfDue(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != NEGOTIATING || now.Before(e.prepareDeadline) {
		return nil
	}
	e.state = RUNNING
	return ErrPrepareTimeout
}

// ExpireSwapIfDue transitions to FAILED if the swap phase has
// exceeded its deadline while still SWAPPING.
func (e *Engine) ExpireSwapIfDue(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != SWAPPING || now.Before(e.swapDeadline) {
		return nil
	}
	e.state = FAILED
	return ErrSwapTimeout
}

// MarkComplete finalizes a SWAPPING attempt: ok=true returns to
// RUNNING and yields a RekeyComplete{Status:0}; ok=false moves to
// FAILED and yields RekeyComplete{Status:1}.
func (e *Engine) MarkComplete(ok bool, now time.Time) *RekeyComplete {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ok {
		e.state = RUNNING
		e.rolledBackOnce = false
		return &RekeyComplete{Status: 0, Ts: now.Unix()}
	}
	e.state = FAILED
	return &RekeyComplete{Status: 1, Ts: now.Unix()}
}

// HandleRekeyComplete applies the peer's terminal status report.
func (e *Engine) HandleRekeyComplete(msg *RekeyComplete) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if msg.Status == 0 {
		e.state = RUNNING
		e.rolledBackOnce = false
	} else {
		e.state = FAILED
	}
}

// AttemptRollback allows exactly one automatic rollback to priorSuite
// after a FAILED swap (spec.md §4.4 "Failure semantics" policy i).
// Subsequent calls while already rolled back are refused.
func (e *Engine) AttemptRollback(priorSuite string, now time.Time) (*PrepareRekey, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.role != RoleGCS {
		return nil, ErrUnauthorized
	}
	if e.state != FAILED {
		return nil, ErrWrongState
	}
	if e.rolledBackOnce {
		return nil, fmt.Errorf("control: rollback already attempted")
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("control: nonce rng: %w", err)
	}

	e.rolledBackOnce = true
	e.state = NEGOTIATING
	e.targetSuite = priorSuite
	e.nonce = nonce
	e.prepareDeadline = now.Add(e.cfg.PrepareTimeout)

	return &PrepareRekey{TargetSuite: priorSuite, Nonce: nonce, Ts: now.Unix()}, nil
}
