// Package session implements the per-market state machine: it owns the
// venue connection, drives a Translator, applies instructions to an
// OrderBook, emits pings, and reconnects on failure.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/0xc0392b/level4/internal/book"
	"github.com/0xc0392b/level4/internal/common"
	"github.com/0xc0392b/level4/internal/instr"
	"github.com/0xc0392b/level4/internal/market"
	"github.com/0xc0392b/level4/internal/sink"
	"github.com/0xc0392b/level4/internal/translate"
)

// State is one node of the per-market lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Subscribing
	Streaming
	Terminal
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribing:
		return "subscribing"
	case Streaming:
		return "streaming"
	case Terminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// EventKind tags a lifecycle Event. These are instrumentation only; they
// never gate book or translator behavior.
type EventKind int

const (
	Started EventKind = iota
	Connected
	Subscribed
	StreamingStarted
	Desynced
	FailedSink
	DisconnectedEv
	Stopped
)

// Event is one lifecycle occurrence, consumed by an operator-facing
// surface (logging, status output) — never by the book or translator.
type Event struct {
	Kind   EventKind
	Market string
	Err    error
	At     time.Time
}

// TransportError reports a disconnect, timeout, or write failure on the
// underlying connection. It always drives a transition to Disconnected.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string { return fmt.Sprintf("session: transport error: %v", e.Cause) }
func (e *TransportError) Unwrap() error { return e.Cause }

var errShutdown = errors.New("session: shutdown requested")

// Conn is the minimal transport surface a Session needs; *websocket.Conn
// satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a transport connection to endpoint.
type Dialer func(ctx context.Context, endpoint string) (Conn, error)

func defaultDialer(ctx context.Context, endpoint string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(64 * common.KiB)
	return conn, nil
}

const historyCap = 64

// Options configures a Session at construction. Callers set it through
// functional Option values applied over defaultOptions.
type Options struct {
	Logger       zerolog.Logger
	Dialer       Dialer
	PingInterval time.Duration
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	BookSink     sink.BookSink
	TradeSink    sink.TradeSink
}

type Option func(*Options)

func WithLogger(l zerolog.Logger) Option     { return func(o *Options) { o.Logger = l } }
func WithDialer(d Dialer) Option             { return func(o *Options) { o.Dialer = d } }
func WithPingInterval(d time.Duration) Option { return func(o *Options) { o.PingInterval = d } }
func WithBackoff(base, max time.Duration) Option {
	return func(o *Options) { o.BackoffBase, o.BackoffMax = base, max }
}
func WithBookSink(s sink.BookSink) Option   { return func(o *Options) { o.BookSink = s } }
func WithTradeSink(s sink.TradeSink) Option { return func(o *Options) { o.TradeSink = s } }

func defaultOptions() Options {
	return Options{
		Logger:       zerolog.Nop(),
		Dialer:       defaultDialer,
		PingInterval: 30 * time.Second,
		BackoffBase:  1 * time.Second,
		BackoffMax:   32 * time.Second,
	}
}

// Session is a per-market state machine parametrized by the venue's
// translation-state type S. It is the sole writer of its OrderBook and
// the sole owner of its translation state.
type Session[S any] struct {
	market     market.Market
	translator translate.Translator[S]
	book       *book.Book
	opts       Options
	bo         *backoff

	currentState atomic.Int32
	ts           S

	connMu sync.Mutex
	conn   Conn

	historyMu sync.Mutex
	history   []Event

	events atomic.Value // chan Event
	evMu   sync.Mutex
}

func New[S any](m market.Market, t translate.Translator[S], opts ...Option) *Session[S] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.Logger = o.Logger.With().Str("market", m.Tag()).Logger()
	return &Session[S]{
		market:     m,
		translator: t,
		book:       book.New(),
		opts:       o,
		bo:         newBackoff(o.BackoffBase, o.BackoffMax),
	}
}

// Book exposes the order book for concurrent read-only queries.
func (s *Session[S]) Book() *book.Book { return s.book }

// Market returns the market descriptor this Session was built for.
func (s *Session[S]) Market() market.Market { return s.market }

// State reports the current lifecycle state.
func (s *Session[S]) State() State {
	return State(s.currentState.Load())
}

// Events returns this Session's lifecycle event channel, creating it
// lazily on first call so a Session nobody observes does no forwarding
// work.
func (s *Session[S]) Events() <-chan Event {
	if v := s.events.Load(); v != nil {
		return v.(chan Event)
	}
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if v := s.events.Load(); v != nil {
		return v.(chan Event)
	}
	ch := make(chan Event, 32)
	s.events.Store(ch)
	return ch
}

// History returns a copy of the last lifecycle events observed, bounded
// to historyCap.
func (s *Session[S]) History() []Event {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	out := make([]Event, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session[S]) emit(kind EventKind, err error) {
	ev := Event{Kind: kind, Market: s.market.Tag(), Err: err, At: time.Now()}

	s.historyMu.Lock()
	s.history = append(s.history, ev)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.historyMu.Unlock()

	if v := s.events.Load(); v != nil {
		ch := v.(chan Event)
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Session[S]) setConn(c Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conn = c
}

func (s *Session[S]) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Session[S]) writeConn(data []byte) error {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return errors.New("session: no connection")
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Run drives the state machine until ctx is cancelled. On entry to
// Disconnected the book and translation state are always reset, so a
// downstream consumer must assume the book is empty until the next
// Snapshot.
func (s *Session[S]) Run(ctx context.Context) {
	s.emit(Started, nil)
	state := Disconnected

	for {
		if ctx.Err() != nil {
			s.currentState.Store(int32(Terminal))
			s.closeConn()
			s.emit(Stopped, nil)
			return
		}

		s.currentState.Store(int32(state))

		switch state {
		case Disconnected:
			s.book.Reset()
			s.ts = s.translator.InitialState(s.market.Base, s.market.Quote)
			s.emit(DisconnectedEv, nil)

			delay := s.bo.Next()
			select {
			case <-ctx.Done():
				s.emit(Stopped, nil)
				return
			case <-time.After(delay):
			}
			state = Connecting

		case Connecting:
			conn, err := s.opts.Dialer(ctx, s.market.Endpoint)
			if err != nil {
				s.opts.Logger.Warn().Err(err).Msg("connect failed")
				state = Disconnected
				continue
			}
			s.setConn(conn)
			s.emit(Connected, nil)
			state = Subscribing

		case Subscribing:
			if err := s.subscribe(); err != nil {
				s.opts.Logger.Warn().Err(err).Msg("subscribe failed")
				s.closeConn()
				state = Disconnected
				continue
			}
			s.emit(Subscribed, nil)

			err := s.stream(ctx)
			s.closeConn()
			if errors.Is(err, errShutdown) {
				state = Terminal
				continue
			}
			s.opts.Logger.Warn().Err(err).Msg("stream ended, reconnecting")
			state = Disconnected

		case Terminal:
			s.emit(Stopped, nil)
			return
		}
	}
}

func (s *Session[S]) subscribe() error {
	for _, frame := range s.translator.SubscribeMsg(s.market.Base, s.market.Quote) {
		if err := s.writeConn(frame); err != nil {
			return &TransportError{Cause: err}
		}
	}
	return nil
}

// stream reads frames until the connection fails, the shutdown context
// is cancelled, or a DecodeError occurs. Per spec the ping timer only
// starts after the first message is translated without error.
func (s *Session[S]) stream(ctx context.Context) error {
	frames := make(chan []byte)
	readErrs := make(chan error, 1)
	stopReader := make(chan struct{})
	defer close(stopReader)

	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				select {
				case readErrs <- err:
				case <-stopReader:
				}
				return
			}
			select {
			case frames <- data:
			case <-stopReader:
				return
			}
		}
	}()

	var ticker *time.Ticker
	var tickCh <-chan time.Time
	pingActive := false
	streamingAnnounced := false
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return errShutdown

		case err := <-readErrs:
			return &TransportError{Cause: err}

		case data := <-frames:
			insts, next, err := s.translator.Translate(data, s.ts)
			if err != nil {
				return err
			}
			s.ts = next

			if !pingActive && s.market.PingRequired {
				pingActive = true
				ticker = time.NewTicker(s.opts.PingInterval)
				tickCh = ticker.C
			}

			for _, inst := range insts {
				switch inst.(type) {
				case instr.Snapshot, instr.Deltas:
					if !streamingAnnounced {
						streamingAnnounced = true
						s.bo.Reset()
						s.currentState.Store(int32(Streaming))
						s.emit(StreamingStarted, nil)
					}
				}
				s.apply(inst)
			}

			if gd, ok := any(s.ts).(interface{ GapDetected() bool }); ok && gd.GapDetected() {
				s.emit(Desynced, nil)
			}

		case <-tickCh:
			for _, frame := range s.translator.PingMsg(s.ts) {
				if err := s.writeConn(frame); err != nil {
					return &TransportError{Cause: err}
				}
			}
		}
	}
}

func (s *Session[S]) apply(inst instr.Instruction) {
	switch v := inst.(type) {
	case instr.NoOp:
	case instr.Snapshot:
		s.book.ApplySnapshot(v.Bids, v.Asks)
		if s.opts.BookSink != nil {
			if err := s.opts.BookSink.Snapshot(s.market, v.Bids, v.Asks); err != nil {
				s.emit(FailedSink, err)
			}
		}
	case instr.Deltas:
		for _, d := range v.Deltas {
			s.book.ApplyDelta(d.Side, d.Price, d.Liquidity)
		}
		if s.opts.BookSink != nil {
			if err := s.opts.BookSink.Deltas(s.market, v.Deltas); err != nil {
				s.emit(FailedSink, err)
			}
		}
	case instr.Buys:
		if s.opts.TradeSink != nil {
			if err := s.opts.TradeSink.Trades(s.market, book.Bid, v.Trades); err != nil {
				s.emit(FailedSink, err)
			}
		}
	case instr.Sells:
		if s.opts.TradeSink != nil {
			if err := s.opts.TradeSink.Trades(s.market, book.Ask, v.Trades); err != nil {
				s.emit(FailedSink, err)
			}
		}
	}
}
