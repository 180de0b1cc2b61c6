package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/rustyeddy/fxengine/market"
)

// EnvPrefix starts every variable ApplyEnv reads.
const EnvPrefix = "FXENGINE_"

// LoadEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides selected keys from FXENGINE_* variables:
//
//	FXENGINE_SYMBOL, FXENGINE_TAG, FXENGINE_TIMEFRAME,
//	FXENGINE_BALANCE, FXENGINE_RISK_PER_TRADE_PCT,
//	FXENGINE_JOURNAL_TYPE, FXENGINE_JOURNAL_DB,
//	FXENGINE_METRICS_ADDR, FXENGINE_LOG_LEVEL
//
// It returns the first malformed value; the config is left partly applied.
func (c *Config) ApplyEnv() error {
	if v, ok := lookup("SYMBOL"); ok {
		c.Engine.Symbol = strings.ToUpper(v)
	}
	if v, ok := lookup("TAG"); ok {
		c.Engine.Tag = v
	}
	if v, ok := lookup("TIMEFRAME"); ok {
		tf, err := market.ParseTimeframe(v)
		if err != nil {
			return fmt.Errorf("%sTIMEFRAME: %w", EnvPrefix, err)
		}
		c.Engine.Timeframe = tf
	}
	if err := envFloat("BALANCE", &c.Account.Balance); err != nil {
		return err
	}
	if err := envFloat("RISK_PER_TRADE_PCT", &c.Risk.RiskPerTradePct); err != nil {
		return err
	}
	if v, ok := lookup("JOURNAL_TYPE"); ok {
		c.Journal.Type = strings.ToLower(v)
	}
	if v, ok := lookup("JOURNAL_DB"); ok {
		c.Journal.DBPath = v
	}
	if v, ok := lookup("METRICS_ADDR"); ok {
		c.Metrics.Addr = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func envFloat(key string, dst *float64) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = f
	return nil
}
