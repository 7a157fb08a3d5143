package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/btcpaper/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the decision journal",
	Long: `Query and display paper-trade decisions from a SQLite journal.

Subcommands:
  get    - Show a single decision by ID
  recent - List the most recent decisions
  day    - List decisions from a specific day

Examples:
  btcpaper journal get <decision-id>
  btcpaper journal recent -n 20
  btcpaper journal day 2026-08-01`,
}

var journalGetCmd = &cobra.Command{
	Use:   "get <decision-id>",
	Short: "Show a single decision",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalGet,
}

var journalRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recent decisions",
	Args:  cobra.NoArgs,
	RunE:  runJournalRecent,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List decisions from a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var (
	journalDBPath string
	journalLimit  int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalGetCmd)
	journalCmd.AddCommand(journalRecentCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./btcpaper.sqlite", "path to SQLite journal DB")
	journalRecentCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "number of decisions to show")
}

func runJournalGet(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	rec, err := j.GetDecision(args[0])
	if err != nil {
		return fmt.Errorf("get decision: %w", err)
	}

	fmt.Printf("Decision %s\n", rec.ID)
	fmt.Printf("  Time:     %s\n", rec.Time.Format(time.RFC3339))
	fmt.Printf("  Symbol:   %s %s\n", rec.Symbol, rec.Interval)
	fmt.Printf("  Price:    %.2f\n", rec.Price)
	fmt.Printf("  Action:   %+.4f -> Position %+.4f\n", rec.Action, rec.Position)
	fmt.Printf("  Equity:   %.6f\n", rec.Equity)
	fmt.Printf("  Model:    %s\n", rec.ModelVersion)
	if rec.Degraded {
		fmt.Println("  Degraded: yes")
	}
	return nil
}

func runJournalRecent(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	recs, err := j.ListRecentDecisions(journalLimit)
	if err != nil {
		return fmt.Errorf("query decisions: %w", err)
	}
	printDecisions(recs)
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	start, end, err := dayBounds(time.Local, args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	recs, err := j.ListDecisionsBetween(start, end)
	if err != nil {
		return fmt.Errorf("query decisions: %w", err)
	}
	printDecisions(recs)
	return nil
}

func printDecisions(recs []journal.DecisionRecord) {
	if len(recs) == 0 {
		fmt.Println("no decisions")
		return
	}
	fmt.Printf("%-27s %-10s %10s %8s %8s %10s\n", "TIME", "SYMBOL", "PRICE", "ACTION", "POS", "EQUITY")
	for _, r := range recs {
		flag := ""
		if r.Degraded {
			flag = " (degraded)"
		}
		fmt.Printf("%-27s %-10s %10.2f %+8.4f %+8.4f %10.6f%s\n",
			r.Time.Format(time.RFC3339), r.Symbol, r.Price, r.Action, r.Position, r.Equity, flag)
	}
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)
	return start, end, nil
}
