package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/fxengine/config"
	"github.com/rustyeddy/fxengine/journal"
)

// run executes the root command with args after restoring flag defaults.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	logLevel, logPretty, envFiles = "", false, nil
	btConfigPath, btDataPath, btFrom, btTo = "", "", "", ""
	btJournalPath, btEvents, btMetricsAddr, btRunID = "", false, "", ""
	btSpreadPips, btCloseEnd = 1.0, true
	configInitOutput, configValidatePath = "fxengine.yaml", ""
	journalDBPath, journalEvent = "./fxengine.sqlite", ""

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeBars(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("time,open,high,low,close,volume\n")
	start := time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		p := 1.1000 + float64(i)*0.0005
		fmt.Fprintf(&b, "%s,%.5f,%.5f,%.5f,%.5f,100\n",
			start.Add(time.Duration(i)*15*time.Minute).Format(time.RFC3339), p, p+0.0006, p-0.0002, p+0.0004)
	}
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "fxengine version "+version+"\n", out)
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eurusd.yaml")

	out, err := run(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created default configuration: "+path)
	assert.FileExists(t, path)

	out, err = run(t, "config", "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "Engine: EURUSD M15 tag=fxengine")
	assert.Contains(t, out, "Journal: none")
}

func TestConfigValidateRejects(t *testing.T) {
	cfg := config.Default()
	cfg.Risk.RiskPerTradePct = 0
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, cfg.SaveToFile(path))

	_, err := run(t, "config", "validate", "-f", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, err.Error(), "risk_per_trade_pct")

	good := filepath.Join(t.TempDir(), "good.yaml")
	require.NoError(t, config.Default().SaveToFile(good))
	_, err = run(t, "config", "validate", "-f", good, "--log-level", "loud")
	assert.ErrorContains(t, err, "log.level")
}

func TestBacktestRecordsRun(t *testing.T) {
	dir := t.TempDir()
	bars := writeBars(t, 40)
	db := filepath.Join(dir, "runs.sqlite")

	out, err := run(t, "backtest", "-d", bars, "--journal", db, "--events",
		"--run-id", "run-1", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Contains(t, out, "Backtest complete: run-1")
	assert.Contains(t, out, "Bars: 40 ")

	j, err := journal.NewSQLite(db)
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	rec, err := j.GetBacktestRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", rec.Symbol)
	assert.Equal(t, "M15", rec.Timeframe)
	assert.Equal(t, bars, rec.Dataset)
	assert.Contains(t, string(rec.Config), "symbol: EURUSD")

	evs, err := j.ListEvents(ctx, "run-1", "backtest_done")
	require.NoError(t, err)
	assert.Len(t, evs, 1)

	out, err = run(t, "journal", "run", "run-1", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "* BACKTEST: EURUSD M15")

	out, err = run(t, "journal", "events", "run-1", "--db", db, "--event", "backtest_done")
	require.NoError(t, err)
	assert.Contains(t, out, `"event":"backtest_done"`)

	_, err = run(t, "journal", "trades", "run-1", "--db", db)
	assert.NoError(t, err)
}

func TestBacktestOrgReport(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Journal.OrgPath = filepath.Join(dir, "run.org")
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, cfg.SaveToFile(path))

	_, err := run(t, "backtest", "-f", path, "-d", writeBars(t, 5), "--run-id", "org-1")
	require.NoError(t, err)

	b, err := os.ReadFile(cfg.Journal.OrgPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), ":RUN_ID:      org-1")
}

func TestBacktestErrors(t *testing.T) {
	_, err := run(t, "backtest")
	assert.Error(t, err, "data is required")

	_, err = run(t, "backtest", "-d", filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorContains(t, err, "open data")

	_, err = run(t, "backtest", "-d", writeBars(t, 3), "--from", "june")
	assert.ErrorContains(t, err, "--from")

	empty := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("time,open,high,low,close\n"), 0644))
	_, err = run(t, "backtest", "-d", empty)
	assert.ErrorContains(t, err, "no bars")
}

func TestParseWhen(t *testing.T) {
	got, err := parseWhen("2024-06-05")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), got)

	got, err = parseWhen("2024-06-05T10:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 5, 8, 30, 0, 0, time.UTC), got)

	got, err = parseWhen("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestNewLogger(t *testing.T) {
	var console, tee bytes.Buffer
	log, err := newLogger(config.LogConfig{Level: "warn"}, &console, &tee)
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Str("event", "standby").Msg("shown")
	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), `"event":"standby"`)
	assert.Equal(t, console.String(), tee.String())

	_, err = newLogger(config.LogConfig{Level: "loud"}, &console)
	assert.Error(t, err)
}
