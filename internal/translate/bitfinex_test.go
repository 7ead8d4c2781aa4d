package translate

import (
	"testing"
	"time"

	"github.com/0xc0392b/level4/internal/book"
	"github.com/0xc0392b/level4/internal/instr"
)

func TestBitfinexSubscribeSnapshotDelta(t *testing.T) {
	var bf Bitfinex
	state := bf.InitialState("BTC", "USD")

	insts, state, err := bf.Translate([]byte(`{"event":"subscribed","channel":"book","chanId":42}`), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := insts[0].(instr.NoOp); !ok || state.BookCID != 42 {
		t.Fatalf("expected NoOp and book_cid=42, got %+v state=%+v", insts, state)
	}

	insts, state, err = bf.Translate([]byte(`[42, [[100.0, 1, 2.0], [99.0, 1, 1.5], [101.0, 1, -3.0]]]`), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, ok := insts[0].(instr.Snapshot)
	if !ok {
		t.Fatalf("expected Snapshot, got %+v", insts)
	}
	wantBids := []book.Level{{Price: 100.0, Liquidity: 2.0}, {Price: 99.0, Liquidity: 1.5}}
	wantAsks := []book.Level{{Price: 101.0, Liquidity: 3.0}}
	if !levelsEqual(snap.Bids, wantBids) || !levelsEqual(snap.Asks, wantAsks) {
		t.Fatalf("unexpected snapshot: bids=%+v asks=%+v", snap.Bids, snap.Asks)
	}

	b := book.New()
	applyAll(b, insts)

	insts, _, err = bf.Translate([]byte(`[42, [100.0, 0, 2.0]]`), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deltas, ok := insts[0].(instr.Deltas)
	if !ok || len(deltas.Deltas) != 1 {
		t.Fatalf("expected single Deltas, got %+v", insts)
	}
	d := deltas.Deltas[0]
	if d.Side != book.Bid || d.Price != 100.0 || d.Liquidity != 0 {
		t.Fatalf("unexpected delta: %+v", d)
	}
	applyAll(b, insts)

	bids := b.Bids()
	if len(bids) != 1 || bids[0] != (book.Level{Price: 99.0, Liquidity: 1.5}) {
		t.Fatalf("expected bids=[(99.0,1.5)] after delta, got %+v", bids)
	}
}

func TestBitfinexTrade(t *testing.T) {
	var bf Bitfinex
	state := BitfinexState{BookCID: noChan, TradesCID: 7}

	insts, _, err := bf.Translate([]byte(`[7, "te", [555, 1700000000000, -0.5, 250.0]]`), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sells, ok := insts[0].(instr.Sells)
	if !ok || len(sells.Trades) != 1 {
		t.Fatalf("expected single Sells, got %+v", insts)
	}
	tr := sells.Trades[0]
	if tr.Price != 250.0 || tr.Size != 0.5 {
		t.Fatalf("unexpected trade: %+v", tr)
	}
	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	if !tr.Timestamp.Time().Equal(want) {
		t.Fatalf("expected timestamp %v, got %v", want, tr.Timestamp.Time())
	}
}

func TestBitfinexHeartbeatPassthrough(t *testing.T) {
	var bf Bitfinex
	state := BitfinexState{BookCID: 42, TradesCID: noChan}

	insts, next, err := bf.Translate([]byte(`[42, "hb"]`), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(insts) != 1 {
		t.Fatalf("expected single instruction, got %+v", insts)
	}
	if _, ok := insts[0].(instr.NoOp); !ok {
		t.Fatalf("expected NoOp, got %+v", insts[0])
	}
	if next != state {
		t.Fatalf("expected state unchanged, got %+v", next)
	}
}

func TestBitfinexUnexpectedTradesChannelShapeRejected(t *testing.T) {
	var bf Bitfinex
	state := BitfinexState{BookCID: 42, TradesCID: 7}

	_, _, err := bf.Translate([]byte(`[42, "tu", [1, 2, 3, 4]]`), state)
	if err == nil {
		t.Fatal("expected DecodeError for 3-element array on non-trades channel")
	}
}

func TestBitfinexTranslateIsPure(t *testing.T) {
	var bf Bitfinex
	state := BitfinexState{BookCID: 42, TradesCID: 7}
	msg := []byte(`[42, [[100.0, 1, 2.0]]]`)

	insts1, state1, err1 := bf.Translate(msg, state)
	insts2, state2, err2 := bf.Translate(msg, state)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v %v", err1, err2)
	}
	if state1 != state2 {
		t.Fatalf("expected identical next state, got %+v vs %+v", state1, state2)
	}
	if len(insts1) != len(insts2) {
		t.Fatalf("expected identical instruction count")
	}
}

func levelsEqual(a, b []book.Level) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func applyAll(b *book.Book, insts []instr.Instruction) {
	for _, inst := range insts {
		switch v := inst.(type) {
		case instr.Snapshot:
			b.ApplySnapshot(v.Bids, v.Asks)
		case instr.Deltas:
			for _, d := range v.Deltas {
				b.ApplyDelta(d.Side, d.Price, d.Liquidity)
			}
		}
	}
}
