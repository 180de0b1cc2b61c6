package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/fxengine/config"
)

var rootCmd = &cobra.Command{
	Use:   "fxengine",
	Short: "FX trading decision and risk engine",
	Long: `fxengine scores entries, manages exits and enforces session risk limits
for one symbol on one primary timeframe.

It provides tools for:
  - Backtesting the engine against historical bars on the simulated broker
  - Recording trades, equity, decision events and run summaries in SQLite
  - Generating and validating configuration files`,
	SilenceUsage: true,
}

var (
	logLevel  string
	logPretty bool
	envFiles  []string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides log.level)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", false, "human readable console logs")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", nil, "env files to load (default .env)")
}

// loadConfig reads path (or the defaults when empty), applies FXENGINE_*
// overrides and validates the result.
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logPretty {
		cfg.Log.Pretty = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the log section. Extra writers
// receive the same JSON lines the console does.
func newLogger(lc config.LogConfig, out io.Writer, extra ...io.Writer) (zerolog.Logger, error) {
	lvl, err := lc.ZerologLevel()
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if out == nil {
		out = os.Stderr
	}

	console := out
	if lc.Pretty {
		console = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	w := console
	if len(extra) > 0 {
		w = zerolog.MultiLevelWriter(append([]io.Writer{console}, extra...)...)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
