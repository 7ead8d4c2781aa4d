package translate

import (
	"strings"

	"github.com/valyala/fastjson"
	"github.com/valyala/fastjson/fastfloat"

	"github.com/0xc0392b/level4/internal/book"
	"github.com/0xc0392b/level4/internal/common/timestamp"
	"github.com/0xc0392b/level4/internal/instr"
)

// MarketType distinguishes Poloniex spot from futures markets. The wire
// scheme below is applied uniformly to both; futures divergence is a
// known, explicitly untreated gap (see SPEC_FULL.md).
type MarketType int

const (
	Spot MarketType = iota
	Futures
)

// PoloniexState carries the last-seen sequence number for gap detection.
// A gap sets Desynced; the scheme makes no resync guarantee, it only
// records that one was observed.
type PoloniexState struct {
	HasPreviousSequenceNumber bool
	PreviousSequenceNumber    int64
	Desynced                  bool
}

// GapDetected reports whether the most recent message arrived with a
// sequence number that was not PreviousSequenceNumber+1. Not part of the
// Translator interface; Session consults it only for diagnostics.
func (s PoloniexState) GapDetected() bool {
	return s.Desynced
}

// Poloniex implements Translator[PoloniexState]. The same scheme serves
// both spot and futures markets; MarketType is threaded through for a
// future translator to branch on without breaking callers.
type Poloniex struct {
	MarketType MarketType
}

var _ Translator[PoloniexState] = Poloniex{}

func (Poloniex) InitialState(_, _ string) PoloniexState {
	return PoloniexState{}
}

func (Poloniex) SubscribeMsg(base, quote string) []OutboundFrame {
	channel := strings.ToUpper(quote) + "_" + strings.ToUpper(base)
	return []OutboundFrame{
		OutboundFrame(`{"command":"subscribe","channel":"` + channel + `"}`),
	}
}

func (Poloniex) PingMsg(_ PoloniexState) []OutboundFrame {
	return []OutboundFrame{OutboundFrame(`{"op":"ping"}`)}
}

func (Poloniex) Synchronised(_ PoloniexState) bool {
	return true
}

func (t Poloniex) Translate(message []byte, state PoloniexState) ([]instr.Instruction, PoloniexState, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(message)
	if err != nil {
		return nil, state, &DecodeError{Venue: "poloniex", Payload: message, Cause: err}
	}
	if v.Type() != fastjson.TypeArray {
		return []instr.Instruction{instr.NoOp{}}, state, nil
	}

	arr := v.GetArray()
	if len(arr) < 3 || arr[2].Type() != fastjson.TypeArray {
		return []instr.Instruction{instr.NoOp{}}, state, nil
	}

	if arr[1].Type() == fastjson.TypeNumber {
		seq := arr[1].GetInt64()
		if state.HasPreviousSequenceNumber && seq != state.PreviousSequenceNumber+1 {
			state.Desynced = true
		} else {
			state.Desynced = false
		}
		state.PreviousSequenceNumber = seq
		state.HasPreviousSequenceNumber = true
	}

	messages := arr[2].GetArray()
	insts := make([]instr.Instruction, 0, len(messages))
	for _, m := range messages {
		entry := m.GetArray()
		if len(entry) == 0 || entry[0].Type() != fastjson.TypeString {
			continue
		}
		switch string(entry[0].GetStringBytes()) {
		case "i":
			inst, ok := t.translateSnapshot(entry)
			if ok {
				insts = append(insts, inst)
			}
		case "o":
			inst, ok := t.translateDelta(entry)
			if ok {
				insts = append(insts, inst)
			}
		case "t":
			inst, ok := t.translateTrade(entry)
			if ok {
				insts = append(insts, inst)
			}
		}
	}
	if len(insts) == 0 {
		insts = append(insts, instr.NoOp{})
	}
	return insts, state, nil
}

func (Poloniex) translateSnapshot(entry []*fastjson.Value) (instr.Instruction, bool) {
	if len(entry) < 2 {
		return nil, false
	}
	orderBook := entry[1].Get("orderBook")
	if orderBook == nil || orderBook.Type() != fastjson.TypeArray {
		return nil, false
	}
	sides := orderBook.GetArray()
	if len(sides) != 2 {
		return nil, false
	}
	asks := levelsFromMap(sides[0])
	bids := levelsFromMap(sides[1])
	return instr.Snapshot{Bids: bids, Asks: asks}, true
}

func levelsFromMap(m *fastjson.Value) []book.Level {
	obj, err := m.Object()
	if err != nil {
		return nil
	}
	levels := make([]book.Level, 0, obj.Len())
	obj.Visit(func(key []byte, v *fastjson.Value) {
		price := fastfloat.ParseBestEffort(string(key))
		size := fastfloat.ParseBestEffort(string(v.GetStringBytes()))
		if size > 0 {
			levels = append(levels, book.Level{Price: price, Liquidity: size})
		}
	})
	return levels
}

func (Poloniex) translateDelta(entry []*fastjson.Value) (instr.Instruction, bool) {
	if len(entry) < 4 {
		return nil, false
	}
	side := book.Ask
	if entry[1].GetInt() == 1 {
		side = book.Bid
	}
	price := fastfloat.ParseBestEffort(string(entry[2].GetStringBytes()))
	size := fastfloat.ParseBestEffort(string(entry[3].GetStringBytes()))
	return instr.Deltas{Deltas: []instr.Delta{{Side: side, Price: price, Liquidity: size}}}, true
}

func (Poloniex) translateTrade(entry []*fastjson.Value) (instr.Instruction, bool) {
	if len(entry) < 7 {
		return nil, false
	}
	price := fastfloat.ParseBestEffort(string(entry[3].GetStringBytes()))
	size := fastfloat.ParseBestEffort(string(entry[4].GetStringBytes()))
	epochMs := fastfloat.ParseInt64BestEffort(string(entry[6].GetStringBytes()))
	ts := timestamp.Milli(epochMs)

	if entry[2].GetInt() == 1 {
		return instr.Buys{Trades: []instr.Trade{{Side: book.Bid, Price: price, Size: size, Timestamp: ts}}}, true
	}
	return instr.Sells{Trades: []instr.Trade{{Side: book.Ask, Price: price, Size: size, Timestamp: ts}}}, true
}
