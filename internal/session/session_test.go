package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/0xc0392b/level4/internal/book"
	"github.com/0xc0392b/level4/internal/instr"
	"github.com/0xc0392b/level4/internal/market"
	"github.com/0xc0392b/level4/internal/translate"
)

// fakeState is a minimal translation state for exercising the state
// machine without depending on a real venue scheme.
type fakeState struct {
	calls int
}

// fakeTranslator implements translate.Translator[fakeState].
type fakeTranslator struct{}

func (fakeTranslator) InitialState(_, _ string) fakeState { return fakeState{} }
func (fakeTranslator) SubscribeMsg(_, _ string) []translate.OutboundFrame {
	return []translate.OutboundFrame{[]byte(`{"subscribe":true}`)}
}
func (fakeTranslator) PingMsg(_ fakeState) []translate.OutboundFrame { return nil }
func (fakeTranslator) Synchronised(_ fakeState) bool                { return true }

func (fakeTranslator) Translate(message []byte, state fakeState) ([]instr.Instruction, fakeState, error) {
	state.calls++
	switch string(message) {
	case "snap":
		return []instr.Instruction{instr.Snapshot{
			Bids: []book.Level{{Price: 10, Liquidity: 1}},
		}}, state, nil
	case "bad":
		return nil, state, errors.New("boom")
	default:
		return []instr.Instruction{instr.NoOp{}}, state, nil
	}
}

// fakeConn feeds a fixed script of inbound frames, then reports a read
// error, simulating a disconnect once the script is exhausted.
type fakeConn struct {
	mu      sync.Mutex
	script  [][]byte
	i       int
	written [][]byte
	closed  bool
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.i >= len(c.script) {
		return 0, nil, errors.New("fakeConn: script exhausted")
	}
	msg := c.script[c.i]
	c.i++
	return 1, msg, nil
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// bookProbe is a BookSink that, when a snapshot is forwarded, records
// whether the Session's book already holds bids. The Session calls it
// right after applying the snapshot, before the next disconnect resets
// the book.
type bookProbe struct {
	mu      sync.Mutex
	book    *book.Book
	applied bool
}

func (p *bookProbe) Snapshot(_ market.Market, _, _ []book.Level) error {
	bids, _ := p.book.Snapshot()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(bids) > 0 {
		p.applied = true
	}
	return nil
}

func (p *bookProbe) Deltas(_ market.Market, _ []instr.Delta) error { return nil }

func TestSessionAppliesSnapshotThenResetsOnReconnect(t *testing.T) {
	var mu sync.Mutex
	dials := 0

	// Only the first dial succeeds, so once the second dial has been
	// attempted no later snapshot can refill the book.
	dialer := func(_ context.Context, _ string) (Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials > 1 {
			return nil, errors.New("fakeDialer: refused")
		}
		return &fakeConn{script: [][]byte{[]byte("snap")}}, nil
	}

	m := market.Market{Exchange: "test", Type: "spot", Base: "BTC", Quote: "USD", Endpoint: "ws://fake"}
	probe := &bookProbe{}
	sess := New[fakeState](m, fakeTranslator{}, WithDialer(dialer), WithBackoff(time.Millisecond, 5*time.Millisecond), WithBookSink(probe))
	probe.book = sess.Book()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sess.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		probe.mu.Lock()
		applied := probe.applied
		probe.mu.Unlock()
		if applied {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for snapshot to apply")
		case <-time.After(time.Millisecond):
		}
	}

	// The fake connection's script is one message long; the next read
	// fails, forcing a disconnect and reconnect. Wait for the second
	// dial, then confirm Disconnected reset the book before Connecting
	// again.
	deadline = time.After(2 * time.Second)
	for {
		mu.Lock()
		redialed := dials >= 2
		mu.Unlock()
		if redialed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for reconnect")
		case <-time.After(time.Millisecond):
		}
	}
	if bids, asks := sess.Book().Snapshot(); len(bids) != 0 || len(asks) != 0 {
		t.Fatalf("expected empty book after reconnect, got bids=%+v asks=%+v", bids, asks)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancel")
	}
}

func TestSessionDecodeErrorTriggersReconnect(t *testing.T) {
	var mu sync.Mutex
	dials := 0

	dialer := func(_ context.Context, _ string) (Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		return &fakeConn{script: [][]byte{[]byte("bad")}}, nil
	}

	m := market.Market{Exchange: "test", Type: "spot", Base: "BTC", Quote: "USD", Endpoint: "ws://fake"}
	sess := New[fakeState](m, fakeTranslator{}, WithDialer(dialer), WithBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sess.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		redialed := dials >= 2
		mu.Unlock()
		if redialed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for reconnect after decode error")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancel")
	}
}
