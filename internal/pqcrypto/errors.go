// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pqcrypto wraps the post-quantum KEM and signature primitives
// this module needs behind two small capability interfaces, so the
// handshake engine never imports a vendor crypto package directly.
package pqcrypto

import "errors"

// ErrUnavailableAlgorithm is returned when the underlying library does
// not implement the named primitive.
var ErrUnavailableAlgorithm = errors.New("pqcrypto: algorithm unavailable")
