package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	yamlDoc := `
markets:
  - exchange: bitfinex
    type: spot
    base: btc
    quote: usd
    endpoint: wss://api-pub.bitfinex.com/ws/2
    translator: bitfinex
    ping_required: true
  - exchange: poloniex
    type: spot
    base: eth
    quote: usdt
    endpoint: wss://ws.poloniex.com/ws/public
    translator: poloniex
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Markets) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(cfg.Markets))
	}
	if cfg.PingInterval == 0 {
		t.Fatal("expected default ping interval to apply")
	}
}

func TestLoadRejectsUnknownTranslator(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	yamlDoc := `
markets:
  - exchange: bitfinex
    type: spot
    base: btc
    quote: usd
    endpoint: wss://api-pub.bitfinex.com/ws/2
    translator: huobi
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unrecognized translator")
	}
}

func TestValidateRejectsEmptyRegistry(t *testing.T) {
	cfg := defaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty market list")
	}
}
