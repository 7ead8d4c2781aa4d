// Command ingest runs the Level-2 order-book mirror core for every
// market listed in a registry file, plus any ad hoc markets given as
// positional arguments, writing normalized book/trade events as CSV to
// stdout.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"sync"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/0xc0392b/level4/internal/book"
	"github.com/0xc0392b/level4/internal/common"
	"github.com/0xc0392b/level4/internal/common/syncio"
	"github.com/0xc0392b/level4/internal/config"
	"github.com/0xc0392b/level4/internal/diag"
	"github.com/0xc0392b/level4/internal/mainutil"
	"github.com/0xc0392b/level4/internal/market"
	"github.com/0xc0392b/level4/internal/session"
	"github.com/0xc0392b/level4/internal/sink"
	"github.com/0xc0392b/level4/internal/translate"
)

var Options struct {
	Registry   string `traits:"nonzero"`
	CPUProfile string
	Quiet      bool
}

var flags flag.FlagSet

func init() {
	flags.StringVarP(&Options.Registry, "registry", "f", "", "market registry YAML file")
	flags.StringVarP(&Options.CPUProfile, "cpuprofile", "", "", "cpu profile output path")
	flags.BoolVarP(&Options.Quiet, "quiet", "q", false, "suppress per-market lifecycle logging")
	flags.SetInterspersed(false)
	flags.SetOutput(io.Discard)
}

var knownExchanges = []string{"bitfinex", "poloniex"}

// runner is the non-generic handle cmd/ingest holds for a Session[S]
// regardless of which venue's translation-state type S is — every
// Session[S] satisfies it without S ever leaking into this package.
type runner interface {
	Run(ctx context.Context)
	Book() *book.Book
	Market() market.Market
	Events() <-chan session.Event
	History() []session.Event
}

func buildRunner(m market.Market, opts []session.Option) (runner, error) {
	switch m.Translator {
	case "bitfinex":
		return session.New[translate.BitfinexState](m, translate.Bitfinex{}, opts...), nil
	case "poloniex":
		return session.New[translate.PoloniexState](m, translate.Poloniex{}, opts...), nil
	default:
		return nil, &config.Error{Market: m.Tag(), Cause: fmt.Errorf("unknown translator %q", m.Translator)}
	}
}

func run() error {
	if _, err := mainutil.ParseArgs(&flags); err != nil {
		if err == flag.ErrHelp {
			fmt.Fprint(os.Stderr, flags.FlagUsages())
			return nil
		}
		return err
	}
	if err := mainutil.Validate(Options); err != nil {
		return err
	}

	if Options.CPUProfile != "" {
		f, err := os.Create(Options.CPUProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	cfg, err := config.Load(Options.Registry)
	if err != nil {
		return err
	}

	markets := make([]market.Market, 0, len(cfg.Markets)+flags.NArg())
	for _, mc := range cfg.Markets {
		markets = append(markets, mc.Market())
	}
	for _, arg := range flags.Args() {
		exch, base, quote, err := mainutil.ParseMarketArg(arg)
		if err != nil {
			return err
		}
		if !common.ContainsString(knownExchanges, exch) {
			return fmt.Errorf("ingest: unknown exchange %q", exch)
		}
		markets = append(markets, market.Market{
			Exchange:     exch,
			Type:         "spot",
			Base:         base,
			Quote:        quote,
			Endpoint:     defaultEndpoint(exch),
			Translator:   exch,
			PingRequired: true,
		})
	}
	if len(markets) == 0 {
		return fmt.Errorf("ingest: no markets configured")
	}

	out := syncio.NewStringWriter(os.Stdout)
	csvSink := sink.NewCSV(out)

	bar := mainutil.NewConnectProgressBar(len(markets))
	defer bar.Finish()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	for _, m := range markets {
		opts := []session.Option{
			session.WithLogger(logger),
			session.WithPingInterval(cfg.PingInterval),
			session.WithBackoff(cfg.BackoffBase, cfg.BackoffMax),
			session.WithBookSink(csvSink),
			session.WithTradeSink(csvSink),
		}
		r, err := buildRunner(m, opts)
		if err != nil {
			return err
		}

		wg.Add(1)
		go func(m market.Market, r runner) {
			defer wg.Done()
			watchLifecycle(m, r, bar)
			r.Run(ctx)
		}(m, r)
	}

	wg.Wait()
	return nil
}

func watchLifecycle(m market.Market, r runner, bar interface{ Add(int) error }) {
	go func() {
		announced := false
		for ev := range r.Events() {
			if !announced && (ev.Kind == session.Subscribed || ev.Kind == session.StreamingStarted) {
				announced = true
				bar.Add(1)
			}
			if Options.Quiet {
				continue
			}
			e := logger.Info()
			if ev.Err != nil {
				e = logger.Warn()
			}
			diag.Log(e, "market", m).Int("kind", int(ev.Kind)).Msg("lifecycle")
		}
	}()
}

func defaultEndpoint(exchange string) string {
	switch exchange {
	case "bitfinex":
		return "wss://api-pub.bitfinex.com/ws/2"
	case "poloniex":
		return "wss://ws.poloniex.com/ws/public"
	default:
		return ""
	}
}

func main() {
	if err := run(); err != nil {
		logger.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}
