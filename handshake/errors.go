// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package handshake implements the post-quantum handshake engine (C2):
// the two-message ServerHello/ClientResponse exchange, transcript
// construction and signature verification, KEM encapsulation and
// decapsulation, HKDF key derivation and mutual PSK authentication.
package handshake

import "errors"

var (
	// ErrFormat covers wire parse failure, version mismatch, suite
	// name mismatch and length-prefix inconsistency (spec.md §7).
	ErrFormat = errors.New("handshake: format error")

	// ErrVerify covers signature verification failure or PSK HMAC
	// mismatch (spec.md §7). No detail about which check failed is
	// ever surfaced beyond this sentinel.
	ErrVerify = errors.New("handshake: verification failed")

	// ErrTimeout covers per-stage timer expiry (spec.md §7).
	ErrTimeout = errors.New("handshake: stage timed out")

	// ErrUnsupportedSuite is returned when the configured suite's KEM
	// or signature algorithm cannot be instantiated.
	ErrUnsupportedSuite = errors.New("handshake: unsupported suite")
)
