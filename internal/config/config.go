// Package config loads the market registry file this module's binary
// reads at startup. The registry loader itself is explicitly out of
// scope for the ingestion core; this package exists only so cmd/ingest
// has something to wire Sessions from.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/0xc0392b/level4/internal/market"
	"github.com/0xc0392b/level4/internal/mainutil"
)

// Error reports a malformed market descriptor at startup. Load returns
// it for the first malformed entry and then loads no market at all, so
// one bad entry also keeps the well-formed markets of the file from
// starting.
type Error struct {
	Market string
	Cause  error
}

func (e *Error) Error() string { return fmt.Sprintf("config: %s: %v", e.Market, e.Cause) }
func (e *Error) Unwrap() error { return e.Cause }

// MarketConfig is the on-disk shape of one market entry.
type MarketConfig struct {
	Exchange     string `yaml:"exchange" traits:"nonzero"`
	Type         string `yaml:"type" traits:"oneof=spot\\,perp"`
	Base         string `yaml:"base" traits:"nonzero"`
	Quote        string `yaml:"quote" traits:"nonzero"`
	Endpoint     string `yaml:"endpoint" traits:"nonzero"`
	Translator   string `yaml:"translator" traits:"oneof=bitfinex\\,poloniex"`
	PingRequired bool   `yaml:"ping_required"`
}

// Config is the whole registry file.
type Config struct {
	PingInterval time.Duration  `yaml:"ping_interval"`
	BackoffBase  time.Duration  `yaml:"backoff_base"`
	BackoffMax   time.Duration  `yaml:"backoff_max"`
	Markets      []MarketConfig `yaml:"markets"`
}

func defaults() Config {
	return Config{
		PingInterval: 30 * time.Second,
		BackoffBase:  1 * time.Second,
		BackoffMax:   32 * time.Second,
	}
}

// Load reads and validates the registry file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := defaults()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every market entry, tagging failures with the offending
// market's position so one bad entry doesn't obscure which one it was.
func (c *Config) Validate() error {
	if len(c.Markets) == 0 {
		return &Error{Market: "*", Cause: fmt.Errorf("no markets configured")}
	}
	for i, m := range c.Markets {
		if err := mainutil.Validate(m); err != nil {
			return &Error{Market: fmt.Sprintf("#%d %s:%s", i, m.Exchange, m.Base), Cause: err}
		}
	}
	return nil
}

// Market converts one entry into the immutable descriptor Session
// expects.
func (m MarketConfig) Market() market.Market {
	return market.Market{
		Exchange:     m.Exchange,
		Type:         m.Type,
		Base:         m.Base,
		Quote:        m.Quote,
		Endpoint:     m.Endpoint,
		Translator:   m.Translator,
		PingRequired: m.PingRequired,
	}
}
