package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/btcpaper/pkg/logger"
)

// Config is the complete service configuration.
type Config struct {
	Trading TradingConfig `json:"trading" yaml:"trading"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	Data    DataConfig    `json:"data" yaml:"data"`
	Model   ModelConfig   `json:"model" yaml:"model"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	State   StateConfig   `json:"state" yaml:"state"`
	Log     logger.Config `json:"log" yaml:"log"`
}

// TradingConfig parameterizes the decision core; Lookback and FeeRate
// must match the values the model was trained with.
type TradingConfig struct {
	Symbol   string  `json:"symbol" yaml:"symbol"`
	Interval string  `json:"interval" yaml:"interval"`
	Lookback int     `json:"lookback" yaml:"lookback"`
	FeeRate  float64 `json:"fee_rate" yaml:"fee_rate"`
	MaxSteps int     `json:"max_steps" yaml:"max_steps"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type DataConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
}

type ModelConfig struct {
	Dir string `json:"dir" yaml:"dir"`
}

// JournalConfig selects the decision sink backend.
type JournalConfig struct {
	Type          string `json:"type" yaml:"type"` // "sqlite" or "csv"
	DBPath        string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	DecisionsFile string `json:"decisions_file,omitempty" yaml:"decisions_file,omitempty"`
	EquityFile    string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
}

type StateConfig struct {
	Dir string `json:"dir" yaml:"dir"`
}

// LoadFromFile loads configuration from a YAML or JSON file, then applies
// BTCPAPER_* environment overrides.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load returns the default configuration with BTCPAPER_* environment
// overrides applied, for running without a config file.
func Load() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays a few deploy-time settings. The environment wins over
// the file so containers can be retargeted without editing configs.
func (c *Config) applyEnv() {
	if v := os.Getenv("BTCPAPER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("BTCPAPER_SYMBOL"); v != "" {
		c.Trading.Symbol = v
	}
	if v := os.Getenv("BTCPAPER_MODEL_DIR"); v != "" {
		c.Model.Dir = v
	}
	if v := os.Getenv("BTCPAPER_DATA_URL"); v != "" {
		c.Data.BaseURL = v
	}
	if v := os.Getenv("BTCPAPER_FEE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Trading.FeeRate = f
		}
	}
	if v := os.Getenv("BTCPAPER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration for the serving process.
func (c *Config) Validate() error {
	if c.Trading.Symbol == "" {
		return fmt.Errorf("trading.symbol is required")
	}
	if c.Trading.Interval == "" {
		return fmt.Errorf("trading.interval is required")
	}
	if c.Trading.Lookback <= 0 {
		return fmt.Errorf("trading.lookback must be positive")
	}
	if c.Trading.FeeRate < 0 {
		return fmt.Errorf("trading.fee_rate must not be negative")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch c.Journal.Type {
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path required for sqlite journal")
		}
	case "csv":
		if c.Journal.DecisionsFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal decisions_file and equity_file required for csv journal")
		}
	default:
		return fmt.Errorf("journal.type must be 'sqlite' or 'csv'")
	}
	return nil
}

// SaveToFile writes the configuration; format follows the extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Trading: TradingConfig{
			Symbol:   "BTCUSDT",
			Interval: "1m",
			Lookback: 60,
			FeeRate:  0.001,
			MaxSteps: 10000,
		},
		Server: ServerConfig{Addr: ":8080"},
		Data:   DataConfig{BaseURL: ""},
		Model:  ModelConfig{Dir: "./models"},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./btcpaper.sqlite",
		},
		State: StateConfig{Dir: "./state"},
		Log:   logger.Config{Level: "info"},
	}
}
