package main

import (
	"os"

	"github.com/rustyeddy/btcpaper/cmd/btcpaper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
