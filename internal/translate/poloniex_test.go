package translate

import (
	"testing"

	"github.com/0xc0392b/level4/internal/book"
	"github.com/0xc0392b/level4/internal/instr"
)

func TestPoloniexSnapshot(t *testing.T) {
	var pl Poloniex
	state := pl.InitialState("BTC", "USDT")

	msg := `[148, 1, [["i", {"orderBook":[{"10.0":"2.0"}, {"9.0":"3.0"}]}, 1700000000000]]]`
	insts, _, err := pl.Translate([]byte(msg), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, ok := insts[0].(instr.Snapshot)
	if !ok {
		t.Fatalf("expected Snapshot, got %+v", insts)
	}
	if !levelsEqual(snap.Bids, []book.Level{{Price: 9.0, Liquidity: 3.0}}) {
		t.Fatalf("unexpected bids: %+v", snap.Bids)
	}
	if !levelsEqual(snap.Asks, []book.Level{{Price: 10.0, Liquidity: 2.0}}) {
		t.Fatalf("unexpected asks: %+v", snap.Asks)
	}
}

func TestPoloniexDeltaPair(t *testing.T) {
	var pl Poloniex
	state := pl.InitialState("BTC", "USDT")

	msg := `[148, 2, [["o",1,"9.5","1.0","1700000000000"],["o",0,"10.5","0","1700000000001"]]]`
	insts, _, err := pl.Translate([]byte(msg), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(insts) != 2 {
		t.Fatalf("expected two instructions, got %+v", insts)
	}
	d1 := insts[0].(instr.Deltas).Deltas[0]
	if d1.Side != book.Bid || d1.Price != 9.5 || d1.Liquidity != 1.0 {
		t.Fatalf("unexpected first delta: %+v", d1)
	}
	d2 := insts[1].(instr.Deltas).Deltas[0]
	if d2.Side != book.Ask || d2.Price != 10.5 || d2.Liquidity != 0 {
		t.Fatalf("unexpected second delta: %+v", d2)
	}

	b := book.New()
	b.ApplyDelta(d2.Side, 10.5, 1.0)
	b.ApplyDelta(d2.Side, d2.Price, d2.Liquidity)
	if asks := b.Asks(); len(asks) != 0 {
		t.Fatalf("expected second delta to delete the ask level, got %+v", asks)
	}
}

func TestPoloniexTickerHeartbeatPassthrough(t *testing.T) {
	var pl Poloniex
	state := pl.InitialState("BTC", "USDT")

	for _, msg := range []string{`[1010]`, `[1002]`, `[1003]`} {
		insts, next, err := pl.Translate([]byte(msg), state)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", msg, err)
		}
		if len(insts) != 1 {
			t.Fatalf("expected single instruction for %s, got %+v", msg, insts)
		}
		if _, ok := insts[0].(instr.NoOp); !ok {
			t.Fatalf("expected NoOp for %s, got %+v", msg, insts[0])
		}
		if next != state {
			t.Fatalf("expected state unchanged for %s", msg)
		}
	}
}

func TestPoloniexSequenceGapDetection(t *testing.T) {
	var pl Poloniex
	state := pl.InitialState("BTC", "USDT")

	_, state, err := pl.Translate([]byte(`[148, 1, [["o",1,"9.5","1.0","1700000000000"]]]`), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.GapDetected() {
		t.Fatal("did not expect a gap on the first observed sequence number")
	}

	_, state, err = pl.Translate([]byte(`[148, 5, [["o",1,"9.5","1.0","1700000000000"]]]`), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.GapDetected() {
		t.Fatal("expected a gap when sequence jumps from 1 to 5")
	}
}
