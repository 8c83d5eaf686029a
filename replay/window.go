// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package replay implements the sliding-bitmap replay window spec.md
// §3/§9 calls for: a fixed-width ring of bits indexed by distance
// from the current high watermark, with constant-time accept/reject.
package replay

import "fmt"

// MinWidth is the minimum allowed window width (spec.md §3).
const MinWidth = 64

// DefaultWidth is used when no width is configured (spec.md §3, §6
// REPLAY_WINDOW default).
const DefaultWidth = 1024

// Window is a sliding replay-detection bitmap. Bit i from the top
// represents sequence (HighWatermark - i); bit 0 is HighWatermark
// itself. It is not safe for concurrent use; callers serialize access
// (the Receiver half of the framing engine owns one exclusively).
type Window struct {
	width         uint64
	highWatermark uint64
	seen          bool // false until the first packet is accepted
	bits          []uint64
}

// New returns a Window of the given width. A width below MinWidth is
// rejected with an error.
func New(width uint64) (*Window, error) {
	if width < MinWidth {
		return nil, fmt.Errorf("replay: window width %d below minimum %d", width, MinWidth)
	}
	words := (width + 63) / 64
	return &Window{width: width, bits: make([]uint64, words)}, nil
}

// Width returns the configured window width.
func (w *Window) Width() uint64 { return w.width }

// HighWatermark returns the highest sequence ever accepted.
func (w *Window) HighWatermark() uint64 { return w.highWatermark }

func (w *Window) bitAt(distance uint64) bool {
	word, bit := distance/64, distance%64
	return w.bits[word]&(1<<bit) != 0
}

func (w *Window) setBitAt(distance uint64) {
	word, bit := distance/64, distance%64
	w.bits[word] |= 1 << bit
}

// Check reports whether seq would be accepted without mutating any
// state: true if seq is new (either advances the watermark or falls
// inside the window on a clear bit), false if it is a replay.
func (w *Window) Check(seq uint64) bool {
	if !w.seen {
		return true
	}
	if seq > w.highWatermark {
		return true
	}
	distance := w.highWatermark - seq
	if distance >= w.width {
		return false
	}
	return !w.bitAt(distance)
}

// Commit records seq as accepted. Callers must only call Commit after
// the corresponding AEAD verification has succeeded (spec.md §4.3
// step 6): a failed verification must never poison the window.
func (w *Window) Commit(seq uint64) {
	if !w.seen {
		w.seen = true
		w.highWatermark = seq
		w.setBitAt(0)
		return
	}
	switch {
	case seq > w.highWatermark:
		advance := seq - w.highWatermark
		w.shift(advance)
		w.highWatermark = seq
		w.setBitAt(0)
	default:
		distance := w.highWatermark - seq
		if distance < w.width {
			w.setBitAt(distance)
		}
	}
}

// shift advances the window by n bit positions, dropping sequences
// that fall off the trailing edge.
func (w *Window) shift(n uint64) {
	if n >= w.width {
		for i := range w.bits {
			w.bits[i] = 0
		}
		return
	}
	wordShift := n / 64
	bitShift := n % 64
	words := len(w.bits)
	if bitShift == 0 {
		for i := words - 1; i >= 0; i-- {
			src := i - int(wordShift)
			if src >= 0 {
				w.bits[i] = w.bits[src]
			} else {
				w.bits[i] = 0
			}
		}
		return
	}
	for i := words - 1; i >= 0; i-- {
		srcHi := i - int(wordShift)
		srcLo := srcHi - 1
		var hi, lo uint64
		if srcHi >= 0 {
			hi = w.bits[srcHi]
		}
		if srcLo >= 0 {
			lo = w.bits[srcLo]
		}
		w.bits[i] = (hi << bitShift) | (lo >> (64 - bitShift))
	}
}
