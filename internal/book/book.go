// Package book maintains the ordered bid/ask mirror of a market's limit
// order book. It is pure data: no I/O, no knowledge of any venue.
package book

import (
	"sync"

	"github.com/google/btree"
)

const treeDegree = 32

// Level is a (price, liquidity) pair on one side of the book. A Level
// with Liquidity <= 0 is never stored; such a delta is a deletion.
type Level struct {
	Price     float64
	Liquidity float64
}

// Empty reports whether l is the zero-value sentinel returned for an
// empty side by BestBid/BestAsk.
func (l Level) Empty() bool {
	return l == Level{}
}

func lessByPrice(a, b Level) bool {
	return a.Price < b.Price
}

// side is one ordered price->liquidity map. Both Bid and Ask sides are
// stored ascending by price; Bids() reverses the iteration order rather
// than keeping a second comparator, so insert/delete/extremum share one
// code path.
type side struct {
	tree *btree.BTreeG[Level]
}

func newSide() *side {
	return &side{tree: btree.NewG(treeDegree, lessByPrice)}
}

func (s *side) upsert(price, liquidity float64) {
	if liquidity <= 0 {
		s.tree.Delete(Level{Price: price})
		return
	}
	s.tree.ReplaceOrInsert(Level{Price: price, Liquidity: liquidity})
}

func (s *side) replace(levels []Level) {
	next := btree.NewG(treeDegree, lessByPrice)
	for _, l := range levels {
		if l.Liquidity <= 0 {
			next.Delete(Level{Price: l.Price})
			continue
		}
		next.ReplaceOrInsert(Level{Price: l.Price, Liquidity: l.Liquidity})
	}
	s.tree = next
}

func (s *side) ascend() []Level {
	out := make([]Level, 0, s.tree.Len())
	s.tree.Ascend(func(l Level) bool {
		out = append(out, l)
		return true
	})
	return out
}

func (s *side) descend() []Level {
	out := make([]Level, 0, s.tree.Len())
	s.tree.Descend(func(l Level) bool {
		out = append(out, l)
		return true
	})
	return out
}

// Book is a pair of ordered sides: bids (highest price first) and asks
// (lowest price first). All operations appear atomic to callers; bids
// and asks share one lock so a reader never observes one side mid-write
// while the other is still pre-write.
type Book struct {
	mu   sync.RWMutex
	bids *side
	asks *side
}

func New() *Book {
	return &Book{bids: newSide(), asks: newSide()}
}

// Bids returns the bid side highest price first. Empty slice, never nil,
// if the side is empty.
func (b *Book) Bids() []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.descend()
}

// Asks returns the ask side lowest price first.
func (b *Book) Asks() []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks.ascend()
}

// Snapshot returns a consistent (bids, asks) pair in one lock
// acquisition.
func (b *Book) Snapshot() (bids, asks []Level) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.descend(), b.asks.ascend()
}

// BestBid returns the highest bid, or the zero Level if the bid side is
// empty.
func (b *Book) BestBid() (Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.tree.Max()
}

// BestAsk returns the lowest ask, or the zero Level if the ask side is
// empty.
func (b *Book) BestAsk() (Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks.tree.Min()
}

// Side identifies which book side a delta or trade applies to.
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// ApplyDelta inserts, replaces, or (if liquidity <= 0) deletes the price
// level on the given side. Deleting a price that is not present is a
// no-op.
func (b *Book) ApplyDelta(s Side, price, liquidity float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s == Bid {
		b.bids.upsert(price, liquidity)
	} else {
		b.asks.upsert(price, liquidity)
	}
}

// ApplySnapshot atomically replaces both sides. Input need not be
// sorted; duplicate prices within a side collapse last-write-wins, and
// levels with liquidity <= 0 are simply absent from the result.
func (b *Book) ApplySnapshot(bids, asks []Level) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids.replace(bids)
	b.asks.replace(asks)
}

// Reset empties both sides, used on Session reconnect.
func (b *Book) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = newSide()
	b.asks = newSide()
}
