package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/fxengine/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the SQLite journal",
	Long: `Query backtest runs, trades and decision events from a SQLite journal.

Subcommands:
  run     - Print the org report of a run
  trades  - List the closing deals of a run
  events  - List the decision events of a run

Examples:
  fxengine journal run 01J0000000000000000000000
  fxengine journal events 01J0000000000000000000000 --event entry_veto`,
}

var journalRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Print the org report of a backtest run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRun,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades <run-id>",
	Short: "List the closing deals of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrades,
}

var journalEventsCmd = &cobra.Command{
	Use:   "events <run-id>",
	Short: "List the decision events of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalEvents,
}

var (
	journalDBPath string
	journalEvent  string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRunCmd)
	journalCmd.AddCommand(journalTradesCmd)
	journalCmd.AddCommand(journalEventsCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./fxengine.sqlite", "path to SQLite journal DB")
	journalEventsCmd.Flags().StringVar(&journalEvent, "event", "", "only this event name")
}

func runJournalRun(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	run, err := j.GetBacktestRun(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	b, err := run.Org()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	recs, err := j.ListTradesByRunID(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "| close time | ticket | dir | volume | entry | exit | p/l | reason |")
	fmt.Fprintln(out, "|------------+--------+-----+--------+-------+------+-----+--------|")
	for _, r := range recs {
		fmt.Fprintf(out, "| %s | %d | %s | %.2f | %.5f | %.5f | %.2f | %s |\n",
			r.CloseTime.UTC().Format(time.RFC3339), r.Ticket, r.Direction, r.Volume,
			r.EntryPrice, r.ExitPrice, r.RealizedPL, r.Reason)
	}
	return nil
}

func runJournalEvents(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	evs, err := j.ListEvents(cmd.Context(), args[0], journalEvent)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	for _, e := range evs {
		fmt.Fprintln(cmd.OutOrStdout(), e.Payload)
	}
	return nil
}
