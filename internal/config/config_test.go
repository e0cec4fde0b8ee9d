package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "pricewatch-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.App.ListenAddr != ":8123" {
		t.Fatalf("unexpected App.ListenAddr: %s", cfg.App.ListenAddr)
	}
	if cfg.Provider.Kind != "mixed" {
		t.Fatalf("unexpected Provider.Kind: %s", cfg.Provider.Kind)
	}
	if len(cfg.Provider.Symbols) != 2 || cfg.Provider.Symbols[0] != "BTCUSDT" || cfg.Provider.Symbols[1] != "AAPL" {
		t.Fatalf("unexpected symbols: %+v", cfg.Provider.Symbols)
	}
	if cfg.Provider.Binance.WSURL != "wss://stream.binance.com:9443/stream" {
		t.Fatalf("unexpected Binance.WSURL: %s", cfg.Provider.Binance.WSURL)
	}
	if cfg.Provider.Polygon.MinRequestInterval != Duration(1500*time.Millisecond) {
		t.Fatalf("unexpected Polygon.MinRequestInterval: %v", time.Duration(cfg.Provider.Polygon.MinRequestInterval))
	}
	if cfg.Provider.Polygon.CycleInterval != Duration(30*time.Second) {
		t.Fatalf("unexpected Polygon.CycleInterval: %v", time.Duration(cfg.Provider.Polygon.CycleInterval))
	}
	if cfg.Notify.MaxInFlight != 4 || cfg.Notify.QueueSize != 16 {
		t.Fatalf("unexpected notify bounds: %+v", cfg.Notify)
	}
	if !cfg.Paper.Enabled {
		t.Fatalf("expected paper trading enabled")
	}
	if cfg.Paper.AlpacaBaseURL != "https://paper-api.alpaca.markets" {
		t.Fatalf("unexpected Alpaca base URL: %s", cfg.Paper.AlpacaBaseURL)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minimal.yaml")
	if err := Save(path, &Config{}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Provider.Kind != "mock" {
		t.Fatalf("expected mock default provider, got %s", cfg.Provider.Kind)
	}
	if cfg.Provider.Polygon.MinRequestInterval != Duration(3*time.Second) {
		t.Fatalf("expected default min request interval, got %v", time.Duration(cfg.Provider.Polygon.MinRequestInterval))
	}
	if cfg.Provider.Polygon.CycleInterval != Duration(time.Minute) {
		t.Fatalf("expected default cycle interval, got %v", time.Duration(cfg.Provider.Polygon.CycleInterval))
	}
	if cfg.Notify.MaxInFlight != 8 || cfg.Notify.QueueSize != 64 {
		t.Fatalf("unexpected default notify bounds: %+v", cfg.Notify)
	}
	if cfg.App.LogLevel != "info" {
		t.Fatalf("expected info default log level, got %s", cfg.App.LogLevel)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("POLYGON_API_KEY", "from-env")

	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Provider.Polygon.RequestKey != "from-env" {
		t.Fatalf("expected env override for request key, got %s", cfg.Provider.Polygon.RequestKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadBareNumberIntervals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "provider:\n  polygon:\n    min_request_interval: 3\n    cycle_interval: 60\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Provider.Polygon.MinRequestInterval != Duration(3*time.Second) {
		t.Fatalf("bare number should read as seconds, got %v", time.Duration(cfg.Provider.Polygon.MinRequestInterval))
	}
	if cfg.Provider.Polygon.CycleInterval != Duration(time.Minute) {
		t.Fatalf("bare number should read as seconds, got %v", time.Duration(cfg.Provider.Polygon.CycleInterval))
	}
}

func TestLoadRejectsInvalidInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "provider:\n  polygon:\n    min_request_interval: soon\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable interval")
	}
}
