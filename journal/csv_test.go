package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournalHeaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.Equal(t, [][]string{tradeHeader}, readCSV(t, tradesPath))
	assert.Equal(t, [][]string{equityHeader}, readCSV(t, equityPath))
}

func TestCSVJournalRecordTrade(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)

	open := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	closeT := time.Date(2024, 1, 2, 4, 5, 6, 0, time.UTC)

	require.NoError(t, j.RecordTrade(TradeRecord{
		RunID:      "R1",
		DealID:     "D1",
		Ticket:     7,
		Symbol:     "EURUSD",
		Tag:        "fx",
		Direction:  "long",
		Volume:     0.05,
		EntryPrice: 1.1,
		ExitPrice:  1.2,
		OpenTime:   open,
		CloseTime:  closeT,
		RealizedPL: 500,
		Reason:     "partial",
	}))
	require.NoError(t, j.RecordEquity(EquitySnapshot{RunID: "R1", Time: closeT, Balance: 10500, Equity: 10510}))
	require.NoError(t, j.Close())

	trades := readCSV(t, tradesPath)
	require.Len(t, trades, 2)
	assert.Equal(t, []string{
		"D1", "R1", "7", "EURUSD", "fx", "long",
		"0.050000", "1.100000", "1.200000",
		open.Format(time.RFC3339), closeT.Format(time.RFC3339),
		"500.000000", "partial",
	}, trades[1])

	equity := readCSV(t, equityPath)
	require.Len(t, equity, 2)
	assert.Equal(t, []string{"R1", closeT.Format(time.RFC3339), "10500.000000", "10510.000000"}, equity[1])
}
