package sink

import (
	"fmt"
	"strings"

	"github.com/0xc0392b/level4/internal/book"
	"github.com/0xc0392b/level4/internal/common/syncio"
	"github.com/0xc0392b/level4/internal/instr"
	"github.com/0xc0392b/level4/internal/market"
)

// CSV writes normalized events as CSV lines to a shared writer. Multiple
// markets' Sessions call into the same CSV concurrently, so writes go
// through a syncio.StringWriter rather than a bare io.StringWriter.
type CSV struct {
	w *syncio.StringWriter
}

func NewCSV(w *syncio.StringWriter) *CSV {
	return &CSV{w: w}
}

func (c *CSV) Snapshot(m market.Market, bids, asks []book.Level) error {
	var b strings.Builder
	for _, l := range bids {
		fmt.Fprintf(&b, "S,%s,BID,%v,%v\n", m.Tag(), l.Price, l.Liquidity)
	}
	for _, l := range asks {
		fmt.Fprintf(&b, "S,%s,ASK,%v,%v\n", m.Tag(), l.Price, l.Liquidity)
	}
	_, err := c.w.WriteString(b.String())
	if err != nil {
		return &Error{Sink: "csv", Cause: err}
	}
	return nil
}

func (c *CSV) Deltas(m market.Market, deltas []instr.Delta) error {
	var b strings.Builder
	for _, d := range deltas {
		fmt.Fprintf(&b, "D,%s,%s,%v,%v\n", m.Tag(), strings.ToUpper(d.Side.String()), d.Price, d.Liquidity)
	}
	_, err := c.w.WriteString(b.String())
	if err != nil {
		return &Error{Sink: "csv", Cause: err}
	}
	return nil
}

func (c *CSV) Trades(m market.Market, side book.Side, trades []instr.Trade) error {
	var b strings.Builder
	for _, tr := range trades {
		fmt.Fprintf(&b, "T,%s,%s,%v,%v,%d\n",
			m.Tag(), strings.ToUpper(side.String()), tr.Price, tr.Size, tr.Timestamp.UnixMicro())
	}
	_, err := c.w.WriteString(b.String())
	if err != nil {
		return &Error{Sink: "csv", Cause: err}
	}
	return nil
}

var _ BookSink = (*CSV)(nil)
var _ TradeSink = (*CSV)(nil)
