package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/btcpaper/backtest"
	"github.com/rustyeddy/btcpaper/env"
	"github.com/rustyeddy/btcpaper/journal"
	"github.com/rustyeddy/btcpaper/market"
	"github.com/rustyeddy/btcpaper/policy"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay a policy over historical bar data",
	Long: `Backtest replays one paper-trading episode over a bar CSV and reports
final equity and max drawdown.

Without a model directory the policy degrades to a flat (zero) position,
which is useful as a fee-only baseline.

Example:
  btcpaper backtest -t data/BTCUSDT-1m.csv -m ./models --lookback 60`,
	RunE: runBacktestCmd,
}

var (
	btBarsPath string
	btModelDir string
	btDBPath   string
	btSymbol   string
	btInterval string
	btLookback int
	btFeeRate  float64
	btMaxSteps int
	btStart    int
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btBarsPath, "bars", "t", "", "path to bar CSV (timestamp,open,high,low,close,volume) (required)")
	backtestCmd.Flags().StringVarP(&btModelDir, "models", "m", "", "model directory; empty runs the flat baseline")
	backtestCmd.Flags().StringVarP(&btDBPath, "db", "d", "", "optional SQLite journal DB for per-step decisions")
	backtestCmd.Flags().StringVar(&btSymbol, "symbol", "BTCUSDT", "symbol recorded in the journal")
	backtestCmd.Flags().StringVar(&btInterval, "interval", "1m", "bar interval recorded in the journal")
	backtestCmd.Flags().IntVar(&btLookback, "lookback", 60, "observation window length in bars")
	backtestCmd.Flags().Float64Var(&btFeeRate, "fee", 0.001, "proportional fee per unit of position change")
	backtestCmd.Flags().IntVar(&btMaxSteps, "max-steps", 0, "step cap per episode (0 = run to end of data)")
	backtestCmd.Flags().IntVar(&btStart, "start", -1, "start bar index (-1 = first valid index)")

	backtestCmd.MarkFlagRequired("bars")
}

func runBacktestCmd(cmd *cobra.Command, args []string) error {
	bars, err := market.ReadCSV(btBarsPath)
	if err != nil {
		return fmt.Errorf("read bars: %w", err)
	}

	var provider policy.Provider = policy.Static{}
	if btModelDir != "" {
		mgr := policy.NewManager(btModelDir, btLookback)
		defer mgr.Close()
		if loaded, err := mgr.Reload(); err != nil {
			return fmt.Errorf("load model: %w", err)
		} else if !loaded {
			return fmt.Errorf("no model found in %s", btModelDir)
		}
		provider = mgr
	}

	var j journal.Journal
	if btDBPath != "" {
		j, err = journal.NewSQLite(btDBPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer j.Close()
	}

	start := btStart
	if start < 0 {
		start = btLookback - 1
	}

	runner := &backtest.Runner{
		Config: env.Config{
			Lookback: btLookback,
			FeeRate:  btFeeRate,
			MaxSteps: btMaxSteps,
		},
		Decider:  policy.NewEngine(provider),
		Journal:  j,
		Symbol:   btSymbol,
		Interval: btInterval,
	}

	fmt.Printf("Running backtest\n")
	fmt.Printf("  Bars:     %s (%d bars)\n", btBarsPath, len(bars))
	fmt.Printf("  Model:    %s\n", orBaseline(btModelDir))
	fmt.Printf("  Lookback: %d, Fee: %.4f\n\n", btLookback, btFeeRate)

	res, err := runner.Run(context.Background(), bars, start)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	fmt.Printf("Backtest Complete!\n")
	fmt.Printf("  Steps:        %d\n", res.Steps)
	fmt.Printf("  Final Equity: %.6f\n", res.FinalEquity)
	fmt.Printf("  Max Drawdown: %.2f%%\n", res.MaxDrawdown*100)
	fmt.Printf("  Degraded:     %d\n", res.Degraded)
	fmt.Printf("  Range:        %s -> %s\n", res.Start.Format("2006-01-02 15:04"), res.End.Format("2006-01-02 15:04"))
	if res.Done {
		fmt.Println("  Episode ended: equity exhausted")
	}
	if btDBPath != "" {
		fmt.Printf("\nDecisions saved to: %s\n", btDBPath)
	}
	return nil
}

func orBaseline(dir string) string {
	if dir == "" {
		return "(none, flat baseline)"
	}
	return dir
}
