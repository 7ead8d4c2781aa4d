// Package instr defines the normalized instruction vocabulary a
// Translator emits and a Session applies: NoOp, Snapshot, Deltas, Buys,
// Sells.
package instr

import (
	"github.com/0xc0392b/level4/internal/book"
	"github.com/0xc0392b/level4/internal/common/timestamp"
)

// Delta is one incremental change at a single price level.
type Delta struct {
	Side      book.Side
	Price     float64
	Liquidity float64
}

// Trade is a single print: side of the taker, price, size, and the
// instant it occurred, UTC at microsecond resolution.
type Trade struct {
	Side      book.Side
	Price     float64
	Size      float64
	Timestamp timestamp.Timestamp
}

// Instruction is the tagged-variant output of a Translator. Exactly one
// of the concrete types below satisfies it; NoOp has no effect, Snapshot
// replaces the book, Deltas applies in order, Buys/Sells forward trade
// prints.
type Instruction interface {
	instruction()
}

type NoOp struct{}

type Snapshot struct {
	Bids []book.Level
	Asks []book.Level
}

type Deltas struct {
	Deltas []Delta
}

type Buys struct {
	Trades []Trade
}

type Sells struct {
	Trades []Trade
}

func (NoOp) instruction()     {}
func (Snapshot) instruction() {}
func (Deltas) instruction()   {}
func (Buys) instruction()     {}
func (Sells) instruction()    {}
