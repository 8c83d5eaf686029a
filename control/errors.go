// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package control implements the rekey policy engine (spec.md §4.4):
// a per-endpoint state machine that negotiates a two-phase-commit
// suite swap over control messages multiplexed on the encrypted
// channel as packet_type 0x02.
package control

import "errors"

var (
	// ErrWrongState is returned when a message or call arrives while
	// the engine is not in the state it is valid for.
	ErrWrongState = errors.New("control: message invalid for current state")
	// ErrUnauthorized is returned when a prepare_rekey arrives from a
	// role other than the GCS (spec.md §4.4 "Anti-abuse").
	ErrUnauthorized = errors.New("control: only the GCS role may initiate rekey")
	// ErrUnknownSuite is returned when a prepare_rekey names a suite
	// this endpoint cannot serve.
	ErrUnknownSuite = errors.New("control: target suite not available")
	// ErrNonceMismatch is returned when a commit_rekey's nonce_echo
	// does not match the nonce this endpoint sent.
	ErrNonceMismatch = errors.New("control: nonce_echo does not match")
	// ErrPrepareTimeout / ErrSwapTimeout mark phase-timer expiry
	// (spec.md §4.4 "Timing").
	ErrPrepareTimeout = errors.New("control: prepare phase timed out")
	ErrSwapTimeout    = errors.New("control: swap phase timed out")
)
