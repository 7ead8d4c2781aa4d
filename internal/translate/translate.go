// Package translate holds the per-venue translation strategies: pure
// functions from a decoded inbound message and a small translation-state
// value to a normalized instruction list and the next state. No
// implementation in this package performs I/O or touches shared state.
package translate

import (
	"errors"
	"fmt"

	"github.com/0xc0392b/level4/internal/instr"
)

// OutboundFrame is one JSON text frame a Translator asks the Session to
// write to the transport (subscribe or ping frames).
type OutboundFrame []byte

// DecodeError reports an inbound frame that is not valid JSON, or that
// matches no pattern the venue's translator recognizes. The Session
// treats this the same as a transport failure: the translation state may
// now be ambiguous, so it reconnects rather than guess.
type DecodeError struct {
	Venue   string
	Payload []byte
	Cause   error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("translate: %s: decode error: %v", e.Venue, e.Cause)
	}
	return fmt.Sprintf("translate: %s: unrecognized message: %s", e.Venue, truncate(e.Payload, 200))
}

func (e *DecodeError) Unwrap() error { return e.Cause }

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

var errNotOurChannel = errors.New("translate: 3-element frame on a chan_id other than the trades channel")

// Translator is the capability set a per-venue strategy implements. S is
// that venue's translation-state type: a small struct carrying
// subscription identifiers or sequence numbers, never an untyped map.
type Translator[S any] interface {
	// InitialState produces the starting translation state for a market.
	InitialState(base, quote string) S

	// SubscribeMsg produces the one-time frames to send right after
	// connecting.
	SubscribeMsg(base, quote string) []OutboundFrame

	// PingMsg produces the (possibly empty) keepalive frames to emit on
	// the ping timer, given the current state.
	PingMsg(state S) []OutboundFrame

	// Synchronised reports whether the local mirror is trusted to be
	// consistent with the venue, given the current state.
	Synchronised(state S) bool

	// Translate consumes one decoded inbound message and produces zero
	// or more instructions plus the next state. It must be pure.
	Translate(message []byte, state S) ([]instr.Instruction, S, error)
}
