package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/fxengine/backtest"
	"github.com/rustyeddy/fxengine/config"
	"github.com/rustyeddy/fxengine/internal/id"
	"github.com/rustyeddy/fxengine/journal"
	"github.com/rustyeddy/fxengine/metrics"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical bars through the engine",
	Long: `Backtest replays a bar CSV through the decision engine on the simulated
broker and prints a performance summary.

Bar files are either "time,open,high,low,close[,volume]" with RFC3339 times
or Dukascopy exports ("20060102 150405;open;high;low;close;volume", EST).

Example:
  fxengine backtest -f eurusd.yaml -d data/eurusd-m15.csv --journal runs.sqlite`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

var (
	btConfigPath  string
	btDataPath    string
	btFrom        string
	btTo          string
	btJournalPath string
	btEvents      bool
	btMetricsAddr string
	btSpreadPips  float64
	btRunID       string
	btCloseEnd    bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btConfigPath, "file", "f", "", "config file (defaults when empty)")
	backtestCmd.Flags().StringVarP(&btDataPath, "data", "d", "", "bar CSV (required)")
	backtestCmd.Flags().StringVar(&btFrom, "from", "", "first bar to replay (2006-01-02 or RFC3339)")
	backtestCmd.Flags().StringVar(&btTo, "to", "", "replay bars before this time (2006-01-02 or RFC3339)")
	backtestCmd.Flags().StringVar(&btJournalPath, "journal", "", "SQLite journal path (overrides journal section)")
	backtestCmd.Flags().BoolVar(&btEvents, "events", false, "store decision events in the SQLite journal")
	backtestCmd.Flags().StringVar(&btMetricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address")
	backtestCmd.Flags().Float64Var(&btSpreadPips, "spread", 1.0, "simulated spread in pips")
	backtestCmd.Flags().StringVar(&btRunID, "run-id", "", "run id (ULID when empty)")
	backtestCmd.Flags().BoolVar(&btCloseEnd, "close-end", true, "close open positions after the last bar")

	backtestCmd.MarkFlagRequired("data")
}

func parseWhen(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}

// openJournal returns the journal named by the config. sq is set when it
// is SQLite so runs and events can be stored too.
func openJournal(jc config.JournalConfig) (j journal.Journal, sq *journal.SQLite, err error) {
	switch jc.Type {
	case "csv":
		j, err = journal.NewCSV(jc.TradesFile, jc.EquityFile)
		return j, nil, err
	case "sqlite":
		sq, err = journal.NewSQLite(jc.DBPath)
		return sq, sq, err
	default:
		return journal.Discard{}, nil, nil
	}
}

// serveMetrics starts /metrics on addr and returns a shutdown func.
func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("serving /metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(btConfigPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if btJournalPath != "" {
		cfg.Journal.Type = "sqlite"
		cfg.Journal.DBPath = btJournalPath
	}
	if btEvents {
		cfg.Journal.Events = true
	}
	if btMetricsAddr != "" {
		cfg.Metrics.Addr = btMetricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	from, err := parseWhen(btFrom)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := parseWhen(btTo)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	runID := btRunID
	if runID == "" {
		runID = id.New()
	}

	j, sq, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	var extra []io.Writer
	if sq != nil {
		sq.SetRun(runID)
		if cfg.Journal.Events {
			extra = append(extra, &journal.EventWriter{Sink: sq, RunID: runID})
		}
	}
	log, err := newLogger(cfg.Log, cmd.ErrOrStderr(), extra...)
	if err != nil {
		return err
	}

	feed, err := backtest.NewCSVBarFeed(btDataPath, cfg.Engine.Timeframe, from, to)
	if err != nil {
		return fmt.Errorf("open data: %w", err)
	}

	r := &backtest.Runner{
		Config:  cfg,
		Feed:    feed,
		Journal: j,
		Logger:  log,
		RunID:   runID,
		Options: backtest.Options{SpreadPips: btSpreadPips, CloseEnd: btCloseEnd},
	}
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		c := metrics.New(reg)
		r.Observer, r.Hook = c, c
		stop, err := serveMetrics(cfg.Metrics.Addr, reg, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	res, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	if sq != nil || cfg.Journal.OrgPath != "" {
		raw, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		run := res.BacktestRun(cfg, btDataPath, raw)
		if sq != nil {
			if err := sq.RecordBacktest(ctx, run); err != nil {
				return fmt.Errorf("record run: %w", err)
			}
		}
		if run.OrgPath != "" {
			if err := run.WriteBacktestOrg(); err != nil {
				return fmt.Errorf("org report: %w", err)
			}
		}
	}

	printSummary(cmd.OutOrStdout(), res, feed.Stats())
	return nil
}

func printSummary(w io.Writer, res backtest.Result, st backtest.FeedStats) {
	s := res.Summary
	pf := fmt.Sprintf("%.2f", s.ProfitFactor)
	if math.IsInf(s.ProfitFactor, 1) {
		pf = "inf"
	}

	fmt.Fprintf(w, "Backtest complete: %s\n", res.RunID)
	fmt.Fprintf(w, "  Bars: %d (dup %d, out of order %d, bad %d, gaps %d weekend / %d suspicious)\n",
		res.Bars, st.Duplicates, st.OutOfOrder, st.BadRows, st.WeekendGaps, st.SuspiciousGaps)
	fmt.Fprintf(w, "  Trades: %d (%d won, %d lost, win rate %.1f%%)\n", s.Trades, s.Wins, s.Losses, s.WinRate)
	fmt.Fprintf(w, "  Balance: %.2f -> %.2f (net %.2f, %.2f%%)\n", s.StartBalance, res.Balance, s.NetPL, s.ReturnPct)
	fmt.Fprintf(w, "  Profit factor: %s  Expectancy: %.2f  Sharpe: %.2f\n", pf, s.Expectancy, s.Sharpe)
	fmt.Fprintf(w, "  Max drawdown: %.2f (%.2f%%)\n", s.MaxDrawdown, s.MaxDrawdownPct)
	if res.Session.Dormant {
		fmt.Fprintf(w, "  Session halted: %s\n", res.Session.DormantReason)
	}
}
