package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/fxengine/broker"
	"github.com/rustyeddy/fxengine/engine"
	"github.com/rustyeddy/fxengine/market"
	"github.com/rustyeddy/fxengine/risk"
	"github.com/rustyeddy/fxengine/signal"
	"github.com/rustyeddy/fxengine/snapshot"
)

// Config is the complete engine configuration. Every section converts into
// the config of the component it feeds.
type Config struct {
	Account    AccountConfig      `json:"account" yaml:"account"`
	Symbol     market.SymbolMeta  `json:"symbol" yaml:"symbol"`
	Engine     EngineConfig       `json:"engine" yaml:"engine"`
	Risk       risk.Limits        `json:"risk" yaml:"risk"`
	Session    risk.SessionLimits `json:"session" yaml:"session"`
	Entry      EntryConfig        `json:"entry" yaml:"entry"`
	Reversal   ReversalConfig     `json:"reversal" yaml:"reversal"`
	Exits      engine.ExitConfig  `json:"exits" yaml:"exits"`
	Retry      broker.RetryConfig `json:"retry" yaml:"retry"`
	Indicators snapshot.Params    `json:"indicators" yaml:"indicators"`
	Journal    JournalConfig      `json:"journal" yaml:"journal"`
	Metrics    MetricsConfig      `json:"metrics" yaml:"metrics"`
	Log        LogConfig          `json:"log" yaml:"log"`
}

type AccountConfig struct {
	ID       string  `json:"id" yaml:"id"`
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
}

type EngineConfig struct {
	Symbol           string             `json:"symbol" yaml:"symbol"`
	Tag              string             `json:"tag" yaml:"tag"`
	Timeframe        market.Timeframe   `json:"timeframe" yaml:"timeframe"`
	HigherTimeframes []market.Timeframe `json:"higher_timeframes" yaml:"higher_timeframes"`

	TradingHours    engine.TradingHours `json:"trading_hours" yaml:"trading_hours"`
	MaxSpreadPips   float64             `json:"max_spread_pips" yaml:"max_spread_pips"`
	MaxSlippagePips float64             `json:"max_slippage_pips" yaml:"max_slippage_pips"`
	AllowHedge      bool                `json:"allow_hedge" yaml:"allow_hedge"`
}

// EntryConfig holds both the engine's entry rules and the scorer settings.
type EntryConfig struct {
	Threshold        float64              `json:"entry_score_threshold" yaml:"entry_score_threshold"`
	QualityMargin    float64              `json:"quality_margin" yaml:"quality_margin"`
	ConfirmationBars int                  `json:"signal_confirmation_bars" yaml:"signal_confirmation_bars"`
	SLATRMultiple    float64              `json:"sl_atr_multiple" yaml:"sl_atr_multiple"`
	TPATRMultiple    float64              `json:"tp_atr_multiple" yaml:"tp_atr_multiple"`
	HTFBias          bool                 `json:"htf_bias" yaml:"htf_bias"`
	ScaleIn          engine.ScaleInConfig `json:"scale_in" yaml:"scale_in"`

	// StopPips feeds the scorer's low volatility gate. 0 disables the gate.
	StopPips    float64                 `json:"stop_pips" yaml:"stop_pips"`
	AdaptiveRSI bool                    `json:"adaptive_rsi" yaml:"adaptive_rsi"`
	Scoring     signal.EntryConfig      `json:"scoring" yaml:"scoring"`
	RSIAdapter  signal.ThresholdAdapter `json:"rsi_adapter" yaml:"rsi_adapter"`
}

type ReversalConfig struct {
	Scoring   signal.ReversalConfig    `json:"scoring" yaml:"scoring"`
	Threshold signal.ReversalThreshold `json:"threshold" yaml:"threshold"`
}

// JournalConfig selects where trades, equity and decision events go.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	// Events tees decision log lines into the sqlite events table.
	Events bool `json:"events" yaml:"events"`
	// OrgPath receives an org-mode summary of each backtest when set.
	OrgPath string `json:"org_path,omitempty" yaml:"org_path,omitempty"`
}

type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"` // empty disables /metrics
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// ZerologLevel parses Level, defaulting to info.
func (l LogConfig) ZerologLevel() (zerolog.Level, error) {
	if l.Level == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(strings.ToLower(l.Level))
}

// LoadFromFile reads YAML, falling back to JSON. Keys missing from the file
// keep their Default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", parseError(err, jerr))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func parseError(yamlErr, jsonErr error) error {
	return fmt.Errorf("yaml: %v; json: %w", yamlErr, jsonErr)
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Meta is the symbol section, or the built-in metadata for engine.symbol
// when the section is left empty.
func (c *Config) Meta() market.SymbolMeta {
	if c.Symbol.Name != "" {
		return c.Symbol
	}
	return market.Symbols[c.Engine.Symbol]
}

func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if c.Engine.Symbol == "" {
		return fmt.Errorf("engine.symbol is required")
	}
	meta := c.Meta()
	if meta.Name == "" {
		return fmt.Errorf("unknown symbol %s: add a symbol section", c.Engine.Symbol)
	}
	if meta.Name != c.Engine.Symbol {
		return fmt.Errorf("symbol.name %s does not match engine.symbol %s", meta.Name, c.Engine.Symbol)
	}
	if err := meta.Validate(); err != nil {
		return err
	}
	for _, h := range c.Engine.HigherTimeframes {
		if !h.Valid() || h.Duration() <= c.Engine.Timeframe.Duration() {
			return fmt.Errorf("engine.higher_timeframes: %q must be longer than %q", h, c.Engine.Timeframe)
		}
	}
	if err := c.EngineConfig().Validate(); err != nil {
		return err
	}

	r := c.Risk
	if r.RiskPerTradePct <= 0 || r.RiskPerTradePct > 100 {
		return fmt.Errorf("risk.risk_per_trade_pct must be in (0, 100]")
	}
	if r.MaxAggregateExposurePct < r.RiskPerTradePct {
		return fmt.Errorf("risk.max_aggregate_exposure_pct must be >= risk_per_trade_pct")
	}
	if r.MaxConcurrentTrades < 1 || r.MaxAddsPerDirection < 0 {
		return fmt.Errorf("risk.max_concurrent_trades must be >= 1 and max_adds_per_direction >= 0")
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}

	if t := c.Reversal.Threshold.Sensitivity; t < 1 || t > 10 {
		return fmt.Errorf("reversal.threshold.sensitivity must be within 1..10")
	}
	if c.Reversal.Scoring.MinCategories < 1 {
		return fmt.Errorf("reversal.scoring.min_categories must be >= 1")
	}
	if c.Entry.StopPips < 0 {
		return fmt.Errorf("entry.stop_pips must be >= 0")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1")
	}
	if c.Retry.SlippageGrowth < 0 || c.Retry.SlippageStep < 0 {
		return fmt.Errorf("retry.slippage_growth and retry.slippage_step must be >= 0")
	}
	if err := c.Indicators.Validate(); err != nil {
		return err
	}

	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}
	if c.Journal.Events && c.Journal.Type != "sqlite" {
		return fmt.Errorf("journal.events needs the sqlite journal")
	}
	if _, err := c.Log.ZerologLevel(); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// EngineConfig assembles the decision engine's settings.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Symbol:    c.Engine.Symbol,
		Tag:       c.Engine.Tag,
		Timeframe: c.Engine.Timeframe,
		Entry: engine.EntryConfig{
			Threshold:        c.Entry.Threshold,
			QualityMargin:    c.Entry.QualityMargin,
			ConfirmationBars: c.Entry.ConfirmationBars,
			SLATRMultiple:    c.Entry.SLATRMultiple,
			TPATRMultiple:    c.Entry.TPATRMultiple,
			HTFBias:          c.Entry.HTFBias && len(c.Engine.HigherTimeframes) > 0,
			MaxSpreadPips:    c.Engine.MaxSpreadPips,
			MaxSlippagePips:  c.Engine.MaxSlippagePips,
			Hours:            c.Engine.TradingHours,
			AllowHedge:       c.Engine.AllowHedge,
			ScaleIn:          c.Entry.ScaleIn,
		},
		Exit: c.Exits,
	}
}

// Strategy builds the composite scorer. The low volatility gate is armed
// from entry.stop_pips in the symbol's pip size.
func (c *Config) Strategy() *signal.Composite {
	entry := c.Entry.Scoring
	entry.StopDistance = c.Entry.StopPips * c.Meta().PipSize()
	return signal.NewComposite(entry, c.Reversal.Scoring, c.Entry.RSIAdapter, c.Reversal.Threshold, c.Entry.AdaptiveRSI)
}

func (c *Config) AccountState() broker.Account {
	return broker.Account{Currency: c.Account.Currency, Balance: c.Account.Balance, Equity: c.Account.Balance}
}

func Default() *Config {
	ec := engine.DefaultEntryConfig()
	return &Config{
		Account: AccountConfig{
			ID:       "SIM-001",
			Currency: "USD",
			Balance:  10000,
		},
		Engine: EngineConfig{
			Symbol:           "EURUSD",
			Tag:              "fxengine",
			Timeframe:        market.M15,
			HigherTimeframes: []market.Timeframe{market.H1},
			TradingHours:     engine.TradingHours{Start: 0, End: 0},
			MaxSpreadPips:    3,
			MaxSlippagePips:  ec.MaxSlippagePips,
		},
		Risk:    risk.DefaultLimits(),
		Session: risk.DefaultSessionLimits(),
		Entry: EntryConfig{
			Threshold:        ec.Threshold,
			QualityMargin:    ec.QualityMargin,
			ConfirmationBars: ec.ConfirmationBars,
			SLATRMultiple:    ec.SLATRMultiple,
			TPATRMultiple:    ec.TPATRMultiple,
			HTFBias:          ec.HTFBias,
			ScaleIn:          ec.ScaleIn,
			StopPips:         20,
			AdaptiveRSI:      true,
			Scoring:          signal.DefaultEntryConfig(),
			RSIAdapter:       signal.DefaultThresholdAdapter(),
		},
		Reversal: ReversalConfig{
			Scoring:   signal.DefaultReversalConfig(),
			Threshold: signal.DefaultReversalThreshold(),
		},
		Exits:      engine.DefaultExitConfig(),
		Retry:      broker.DefaultRetryConfig(),
		Indicators: snapshot.DefaultParams(),
		Journal:    JournalConfig{Type: "none"},
		Log:        LogConfig{Level: "info"},
	}
}
