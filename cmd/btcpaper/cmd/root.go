package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "btcpaper",
	Short: "A BTC paper-trading service driven by a learned policy",
	Long: `btcpaper turns a trained trading policy into a continuously running
paper-trading service.

It provides tools for:
  - Serving tick-driven paper-trade decisions over HTTP
  - Backtesting a policy over historical bar data
  - Querying the decision journal and equity curve
  - Downloading historical klines from Binance Vision

Complete documentation is available at https://github.com/rustyeddy/btcpaper`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()
}
