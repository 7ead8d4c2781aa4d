package translate

import (
	"strconv"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/0xc0392b/level4/internal/book"
	"github.com/0xc0392b/level4/internal/common/timestamp"
	"github.com/0xc0392b/level4/internal/instr"
)

const noChan int64 = -1

// BitfinexState carries the two channel identifiers the venue assigns on
// subscription confirmation. Both are noChan until the corresponding
// "subscribed" event arrives.
type BitfinexState struct {
	BookCID   int64
	TradesCID int64
}

// Bitfinex implements Translator[BitfinexState].
type Bitfinex struct{}

var _ Translator[BitfinexState] = Bitfinex{}

func (Bitfinex) InitialState(_, _ string) BitfinexState {
	return BitfinexState{BookCID: noChan, TradesCID: noChan}
}

func (Bitfinex) SubscribeMsg(base, quote string) []OutboundFrame {
	symbol := "t" + strings.ToUpper(base) + strings.ToUpper(quote)
	return []OutboundFrame{
		OutboundFrame(`{"event":"subscribe","channel":"book","symbol":"` + symbol + `"}`),
		OutboundFrame(`{"event":"subscribe","channel":"trades","symbol":"` + symbol + `"}`),
	}
}

func (Bitfinex) PingMsg(state BitfinexState) []OutboundFrame {
	var frames []OutboundFrame
	if state.BookCID != noChan {
		frames = append(frames, OutboundFrame(pingFrame(state.BookCID)))
	}
	if state.TradesCID != noChan {
		frames = append(frames, OutboundFrame(pingFrame(state.TradesCID)))
	}
	return frames
}

func pingFrame(cid int64) string {
	return `{"event":"ping","cid":` + strconv.FormatInt(cid, 10) + `}`
}

func (Bitfinex) Synchronised(_ BitfinexState) bool {
	return true
}

func (t Bitfinex) Translate(message []byte, state BitfinexState) ([]instr.Instruction, BitfinexState, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(message)
	if err != nil {
		return nil, state, &DecodeError{Venue: "bitfinex", Payload: message, Cause: err}
	}

	switch v.Type() {
	case fastjson.TypeObject:
		return t.translateObject(v, state)
	case fastjson.TypeArray:
		return t.translateArray(v, message, state)
	default:
		return []instr.Instruction{instr.NoOp{}}, state, nil
	}
}

func (Bitfinex) translateObject(v *fastjson.Value, state BitfinexState) ([]instr.Instruction, BitfinexState, error) {
	event := string(v.GetStringBytes("event"))
	switch event {
	case "info", "conf", "pong":
		return []instr.Instruction{instr.NoOp{}}, state, nil
	case "subscribed":
		channel := string(v.GetStringBytes("channel"))
		chanID := v.GetInt64("chanId")
		switch channel {
		case "book":
			state.BookCID = chanID
		case "trades":
			state.TradesCID = chanID
		}
		return []instr.Instruction{instr.NoOp{}}, state, nil
	default:
		return []instr.Instruction{instr.NoOp{}}, state, nil
	}
}

func (t Bitfinex) translateArray(v *fastjson.Value, raw []byte, state BitfinexState) ([]instr.Instruction, BitfinexState, error) {
	arr := v.GetArray()
	if len(arr) == 0 {
		return []instr.Instruction{instr.NoOp{}}, state, nil
	}

	if len(arr) == 2 && arr[1].Type() == fastjson.TypeString && string(arr[1].GetStringBytes()) == "hb" {
		return []instr.Instruction{instr.NoOp{}}, state, nil
	}

	if arr[0].Type() != fastjson.TypeNumber {
		return []instr.Instruction{instr.NoOp{}}, state, nil
	}
	chanID := arr[0].GetInt64()

	switch len(arr) {
	case 2:
		return t.translateChannelData(chanID, arr[1], state)
	case 3:
		if chanID != state.TradesCID {
			return nil, state, &DecodeError{Venue: "bitfinex", Payload: raw, Cause: errNotOurChannel}
		}
		return t.translateTrade(arr[2], state)
	default:
		return []instr.Instruction{instr.NoOp{}}, state, nil
	}
}

func (Bitfinex) translateChannelData(chanID int64, data *fastjson.Value, state BitfinexState) ([]instr.Instruction, BitfinexState, error) {
	if chanID == state.TradesCID {
		return []instr.Instruction{instr.NoOp{}}, state, nil
	}
	if chanID != state.BookCID {
		return []instr.Instruction{instr.NoOp{}}, state, nil
	}

	items := data.GetArray()
	if len(items) == 3 && allNumbers(items) {
		d := bookDelta(items)
		return []instr.Instruction{instr.Deltas{Deltas: []instr.Delta{d}}}, state, nil
	}

	bids, asks := bookSnapshot(items)
	return []instr.Instruction{instr.Snapshot{Bids: bids, Asks: asks}}, state, nil
}

func allNumbers(items []*fastjson.Value) bool {
	for _, it := range items {
		if it.Type() != fastjson.TypeNumber {
			return false
		}
	}
	return true
}

func bookDelta(triple []*fastjson.Value) instr.Delta {
	price := triple[0].GetFloat64()
	count := triple[1].GetInt()
	amount := triple[2].GetFloat64()

	if amount > 0 {
		liq := amount
		if count == 0 {
			liq = 0
		}
		return instr.Delta{Side: book.Bid, Price: price, Liquidity: liq}
	}
	liq := -amount
	if count == 0 {
		liq = 0
	}
	return instr.Delta{Side: book.Ask, Price: price, Liquidity: liq}
}

// bookSnapshot partitions a list of [price, count, amount] triples by
// the sign of amount. A price seen under both signs within the same
// snapshot keeps only the last-occurring entry, dropping it from
// whichever side it was previously assigned to.
func bookSnapshot(items []*fastjson.Value) (bids, asks []book.Level) {
	bidIdx := make(map[float64]int)
	askIdx := make(map[float64]int)
	var bidList, askList []book.Level

	for _, it := range items {
		triple := it.GetArray()
		if len(triple) != 3 {
			continue
		}
		price := triple[0].GetFloat64()
		amount := triple[2].GetFloat64()

		if i, ok := bidIdx[price]; ok {
			bidList[i].Liquidity = -1
			delete(bidIdx, price)
		}
		if i, ok := askIdx[price]; ok {
			askList[i].Liquidity = -1
			delete(askIdx, price)
		}

		if amount > 0 {
			bidList = append(bidList, book.Level{Price: price, Liquidity: amount})
			bidIdx[price] = len(bidList) - 1
		} else {
			askList = append(askList, book.Level{Price: price, Liquidity: -amount})
			askIdx[price] = len(askList) - 1
		}
	}

	for _, l := range bidList {
		if l.Liquidity > 0 {
			bids = append(bids, l)
		}
	}
	for _, l := range askList {
		if l.Liquidity > 0 {
			asks = append(asks, l)
		}
	}
	return bids, asks
}

func (Bitfinex) translateTrade(data *fastjson.Value, state BitfinexState) ([]instr.Instruction, BitfinexState, error) {
	items := data.GetArray()
	if len(items) != 4 {
		return []instr.Instruction{instr.NoOp{}}, state, nil
	}
	epochMs := items[1].GetInt64()
	amount := items[2].GetFloat64()
	price := items[3].GetFloat64()
	ts := timestamp.Milli(epochMs)

	if amount > 0 {
		return []instr.Instruction{instr.Buys{Trades: []instr.Trade{
			{Side: book.Bid, Price: price, Size: amount, Timestamp: ts},
		}}}, state, nil
	}
	return []instr.Instruction{instr.Sells{Trades: []instr.Trade{
		{Side: book.Ask, Price: price, Size: -amount, Timestamp: ts},
	}}}, state, nil
}
