// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration is a yaml-friendly time.Duration. It accepts "3s"-style strings
// and bare numbers, which are read as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if parsed, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}
	if secs, err := strconv.ParseFloat(value.Value, 64); err == nil {
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration %q", value.Value)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// App captures process-wide runtime settings such as addresses, logging, and storage.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	DBPath      string `yaml:"db_path"`
}

// Provider selects the quote source variant and its upstream parameters.
type Provider struct {
	Kind    string   `yaml:"kind"` // mock | binance | polygon | mixed
	Symbols []string `yaml:"symbols"`
	Binance Binance  `yaml:"binance"`
	Polygon Polygon  `yaml:"polygon"`
}

// Binance configures the streaming upstream endpoints (overridable for tests).
type Binance struct {
	WSURL   string `yaml:"ws_url"`
	RESTURL string `yaml:"rest_url"`
}

// Polygon configures the rate-limited polling upstream.
type Polygon struct {
	RequestKey         string   `yaml:"request_key"`
	BaseURL            string   `yaml:"base_url"`
	MinRequestInterval Duration `yaml:"min_request_interval"`
	CycleInterval      Duration `yaml:"cycle_interval"`
}

// Notify configures the Slack webhook dispatcher and its concurrency bound.
type Notify struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	MaxInFlight     int    `yaml:"max_in_flight"`
	QueueSize       int    `yaml:"queue_size"`
}

// Paper captures Alpaca paper-trading credentials and toggles.
type Paper struct {
	Enabled       bool   `yaml:"enabled"`
	AlpacaKeyID   string `yaml:"alpaca_key_id"`
	AlpacaSecret  string `yaml:"alpaca_secret"`
	AlpacaBaseURL string `yaml:"alpaca_base_url"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Provider Provider `yaml:"provider"`
	Notify   Notify   `yaml:"notify"`
	Paper    Paper    `yaml:"paper"`
}

// Load reads a YAML file from disk, hydrates a Config struct, and applies
// environment overrides for secrets (a .env file is honored if present).
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.applyDefaults()
	config.applyEnv()
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.ListenAddr == "" {
		c.App.ListenAddr = ":8000"
	}
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = ":9100"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.DBPath == "" {
		c.App.DBPath = "data/pricewatch.db"
	}
	if c.Provider.Kind == "" {
		c.Provider.Kind = "mock"
	}
	if c.Provider.Polygon.MinRequestInterval <= 0 {
		c.Provider.Polygon.MinRequestInterval = Duration(3 * time.Second)
	}
	if c.Provider.Polygon.CycleInterval <= 0 {
		c.Provider.Polygon.CycleInterval = Duration(time.Minute)
	}
	if c.Notify.MaxInFlight <= 0 {
		c.Notify.MaxInFlight = 8
	}
	if c.Notify.QueueSize <= 0 {
		c.Notify.QueueSize = 64
	}
	if c.Paper.AlpacaBaseURL == "" {
		c.Paper.AlpacaBaseURL = "https://paper-api.alpaca.markets"
	}
}

func (c *Config) applyEnv() {
	_ = godotenv.Load() // best-effort
	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		c.Provider.Polygon.RequestKey = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		c.Notify.SlackWebhookURL = v
	}
	if v := os.Getenv("ALPACA_API_KEY_ID"); v != "" {
		c.Paper.AlpacaKeyID = v
	}
	if v := os.Getenv("ALPACA_API_SECRET_KEY"); v != "" {
		c.Paper.AlpacaSecret = v
	}
}
