package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/fxengine/market"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "USD", cfg.Account.Currency)
	assert.Equal(t, 10000.0, cfg.Account.Balance)
	assert.Equal(t, "EURUSD", cfg.Meta().Name)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"missing currency", func(c *Config) { c.Account.Currency = "" }, "account.currency is required"},
		{"negative balance", func(c *Config) { c.Account.Balance = -1000 }, "account.balance must be positive"},
		{"unknown symbol", func(c *Config) { c.Engine.Symbol = "GBPUSD" }, "unknown symbol GBPUSD"},
		{"symbol mismatch", func(c *Config) {
			c.Symbol = market.Symbols["EURUSD"]
			c.Engine.Symbol = "GBPUSD"
		}, "does not match"},
		{"higher frame too short", func(c *Config) {
			c.Engine.HigherTimeframes = []market.Timeframe{market.M5}
		}, "must be longer"},
		{"bad threshold", func(c *Config) { c.Entry.Threshold = 1.5 }, "entry_score_threshold"},
		{"risk per trade", func(c *Config) { c.Risk.RiskPerTradePct = 0 }, "risk.risk_per_trade_pct"},
		{"exposure below per trade", func(c *Config) { c.Risk.MaxAggregateExposurePct = 0.5 }, "max_aggregate_exposure_pct"},
		{"profit policy", func(c *Config) { c.Session.ProfitPolicy = "double" }, "profit_policy"},
		{"sensitivity", func(c *Config) { c.Reversal.Threshold.Sensitivity = 11 }, "sensitivity"},
		{"retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"retry slippage", func(c *Config) { c.Retry.SlippageGrowth = -1 }, "retry.slippage_growth"},
		{"journal type", func(c *Config) { c.Journal.Type = "parquet" }, "journal.type"},
		{"csv needs files", func(c *Config) { c.Journal.Type = "csv" }, "trades_file and equity_file"},
		{"sqlite needs path", func(c *Config) { c.Journal.Type = "sqlite" }, "db_path"},
		{"events need sqlite", func(c *Config) { c.Journal.Events = true }, "journal.events"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Retry.InitialDelay = 50 * time.Millisecond
			cfg.Exits.TimeStopMinutes = 240
			path := filepath.Join(tmpDir, "test"+tt.ext)

			require.NoError(t, cfg.SaveToFile(path))
			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := []byte(`
engine:
  symbol: USDJPY
  tag: jpy
  timeframe: H1
  higher_timeframes: [H4]
entry:
  signal_confirmation_bars: 3
retry:
  initial_delay: 1s
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "USDJPY", cfg.Meta().Name)
	assert.Equal(t, market.H1, cfg.Engine.Timeframe)
	assert.Equal(t, 3, cfg.Entry.ConfirmationBars)
	assert.Equal(t, time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 0.5, cfg.Retry.SlippageGrowth)
	assert.Equal(t, Default().Entry.Threshold, cfg.Entry.Threshold)
	assert.Equal(t, Default().Session, cfg.Session)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [unclosed"), 0644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "tried YAML and JSON")
}

func TestEngineConfig(t *testing.T) {
	cfg := Default()
	cfg.Engine.MaxSpreadPips = 2
	cfg.Engine.TradingHours.Start, cfg.Engine.TradingHours.End = 7, 20

	ec := cfg.EngineConfig()
	assert.Equal(t, "EURUSD", ec.Symbol)
	assert.Equal(t, 2.0, ec.Entry.MaxSpreadPips)
	assert.Equal(t, 7, ec.Entry.Hours.Start)
	assert.True(t, ec.Entry.HTFBias)
	require.NoError(t, ec.Validate())

	cfg.Engine.HigherTimeframes = nil
	assert.False(t, cfg.EngineConfig().Entry.HTFBias, "no higher frame to agree with")
}

func TestStrategy(t *testing.T) {
	cfg := Default()
	s := cfg.Strategy()
	assert.InDelta(t, 20*0.0001, s.Entry.Config.StopDistance, 1e-12)
	assert.InDelta(t, 0.60, s.Threshold.Value(), 1e-9)
	assert.True(t, s.AdaptiveRSI)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("FXENGINE_SYMBOL", "usdjpy")
	t.Setenv("FXENGINE_TIMEFRAME", "m5")
	t.Setenv("FXENGINE_BALANCE", "2500")
	t.Setenv("FXENGINE_JOURNAL_TYPE", "SQLITE")
	t.Setenv("FXENGINE_JOURNAL_DB", "runs.db")
	t.Setenv("FXENGINE_LOG_LEVEL", "debug")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "USDJPY", cfg.Engine.Symbol)
	assert.Equal(t, market.M5, cfg.Engine.Timeframe)
	assert.Equal(t, 2500.0, cfg.Account.Balance)
	assert.Equal(t, "sqlite", cfg.Journal.Type)
	assert.Equal(t, "runs.db", cfg.Journal.DBPath)
	require.NoError(t, cfg.Validate())

	lvl, err := cfg.Log.ZerologLevel()
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, lvl)
}

func TestApplyEnvRejectsBadNumber(t *testing.T) {
	t.Setenv("FXENGINE_RISK_PER_TRADE_PCT", "lots")
	err := Default().ApplyEnv()
	assert.ErrorContains(t, err, "FXENGINE_RISK_PER_TRADE_PCT")
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("FXENGINE_TAG=from-file\n"), 0644))
	t.Setenv("FXENGINE_TAG", "")
	os.Unsetenv("FXENGINE_TAG")

	require.NoError(t, LoadEnv(path, filepath.Join(dir, "missing.env")))
	t.Cleanup(func() { os.Unsetenv("FXENGINE_TAG") })

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "from-file", cfg.Engine.Tag)
}
