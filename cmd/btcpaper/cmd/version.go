package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("btcpaper version %s\n", version)
		fmt.Println("A BTC paper-trading service driven by a learned policy")
		fmt.Println("https://github.com/rustyeddy/btcpaper")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
