package mainutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-shellwords"
	flag "github.com/spf13/pflag"
)

// ParseArgs merges flags from argv with any piped-in stdin, so a market
// list can be composed across an invocation and a pipeline ("echo
// 'bitfinex:btc/usd' | ingest -f registry.yaml").
func ParseArgs(flags *flag.FlagSet) (argv []string, err error) {
	var argx []string
	if input, err := ReadAllStdin(); err == nil && len(input) > 0 {
		parser := shellwords.NewParser()
		parser.ParseEnv = true
		words, err := parser.Parse(b2s(input))
		if err != nil {
			return nil, err
		}
		argx = words
	} else if err != nil {
		return nil, err
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, err
	}
	argv = append([]string{}, flags.Args()...)
	return argv, flags.Parse(append(os.Args[1:], argx...))
}

// ParseMarketArg splits a positional "exchange:base/quote" argument into
// its three parts, the convention cmd/ingest accepts for ad hoc markets
// not listed in the registry file.
func ParseMarketArg(arg string) (exchange, base, quote string, err error) {
	colon := strings.IndexByte(arg, ':')
	if colon < 0 {
		return "", "", "", fmt.Errorf("mainutil: bad market arg %q: missing ':'", arg)
	}
	exchange, pair := arg[:colon], arg[colon+1:]
	slash := strings.IndexByte(pair, '/')
	if exchange == "" || slash < 0 {
		return "", "", "", fmt.Errorf("mainutil: bad market arg %q: want exchange:base/quote", arg)
	}
	base, quote = pair[:slash], pair[slash+1:]
	if base == "" || quote == "" {
		return "", "", "", fmt.Errorf("mainutil: bad market arg %q: want exchange:base/quote", arg)
	}
	return exchange, base, quote, nil
}
