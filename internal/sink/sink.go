// Package sink defines the two downstream collaborator interfaces a
// Session forwards normalized events to: a book-update consumer and a
// trade-print consumer. Neither is implemented by the core itself per
// spec — the relational/timeseries persistence layer lives elsewhere;
// this package only describes the narrow boundary and ships one
// reference implementation for local operation.
package sink

import (
	"fmt"

	"github.com/0xc0392b/level4/internal/book"
	"github.com/0xc0392b/level4/internal/instr"
	"github.com/0xc0392b/level4/internal/market"
)

// BookSink receives order-book mirror updates already applied to the
// local book, for relay to persistence or candle aggregation.
type BookSink interface {
	Snapshot(m market.Market, bids, asks []book.Level) error
	Deltas(m market.Market, deltas []instr.Delta) error
}

// TradeSink receives trade prints.
type TradeSink interface {
	Trades(m market.Market, side book.Side, trades []instr.Trade) error
}

// Error reports that a downstream consumer refused an event. The core
// does not retry sinks; it surfaces this upward as a lifecycle event and
// continues streaming.
type Error struct {
	Sink  string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sink: %s: %v", e.Sink, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }
