package framing

import "errors"

// DropReason classifies why decrypt failed, for counter accounting
// only (spec.md §4.3, §7). It is never surfaced on the wire or in a
// log line that would distinguish adversary-controllable conditions.
type DropReason string

const (
	ReasonNone         DropReason = ""
	ReasonHeader       DropReason = "header"
	ReasonSession      DropReason = "session"
	ReasonSessionEpoch DropReason = "session_epoch"
	ReasonReplay       DropReason = "replay"
	ReasonAuth         DropReason = "auth"
	ReasonOther        DropReason = "other"
)

// ErrSequenceExhausted is returned by Sender.Encrypt when send_seq has
// reached its arithmetic limit (spec.md §4.3, §7); the caller must
// rekey before sending again.
var ErrSequenceExhausted = errors.New("framing: sequence exhausted, rekey required")
