package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "cfg.yaml", `
trading:
  symbol: ETHUSDT
  interval: 5m
  lookback: 30
  fee_rate: 0.0005
server:
  addr: ":9090"
journal:
  type: sqlite
  db_path: /tmp/j.sqlite
`)

	cfg, err := LoadFromFile(path)
	assert.NoError(t, err)
	assert.Equal(t, "ETHUSDT", cfg.Trading.Symbol)
	assert.Equal(t, 30, cfg.Trading.Lookback)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	// Untouched sections keep defaults.
	assert.Equal(t, "./models", cfg.Model.Dir)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "cfg.json", `{
  "trading": {"symbol": "BTCUSDT", "interval": "1m", "lookback": 60, "fee_rate": 0.001},
  "server": {"addr": ":8080"},
  "journal": {"type": "csv", "decisions_file": "d.csv", "equity_file": "e.csv"}
}`)

	cfg, err := LoadFromFile(path)
	assert.NoError(t, err)
	assert.Equal(t, "csv", cfg.Journal.Type)
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := writeFile(t, "cfg.yaml", "::: not a config :::")
	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidateJournal(t *testing.T) {
	cfg := Default()
	cfg.Journal = JournalConfig{Type: "sqlite"}
	assert.Error(t, cfg.Validate())

	cfg.Journal = JournalConfig{Type: "csv", DecisionsFile: "d.csv"}
	assert.Error(t, cfg.Validate())

	cfg.Journal = JournalConfig{Type: "redis"}
	assert.Error(t, cfg.Validate())
}

func TestValidateTrading(t *testing.T) {
	cfg := Default()
	cfg.Trading.Lookback = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Trading.FeeRate = -0.1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Trading.Symbol = ""
	assert.Error(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BTCPAPER_ADDR", ":7070")
	t.Setenv("BTCPAPER_FEE_RATE", "0.002")

	path := writeFile(t, "cfg.yaml", `
trading:
  symbol: BTCUSDT
  interval: 1m
  lookback: 60
journal:
  type: sqlite
  db_path: /tmp/j.sqlite
`)

	cfg, err := LoadFromFile(path)
	assert.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 0.002, cfg.Trading.FeeRate)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	cfg := Default()
	cfg.Trading.Symbol = "ETHUSDT"
	assert.NoError(t, cfg.SaveToFile(path))

	got, err := LoadFromFile(path)
	assert.NoError(t, err)
	assert.Equal(t, "ETHUSDT", got.Trading.Symbol)
}
