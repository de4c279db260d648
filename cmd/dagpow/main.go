package main

import (
	"os"

	"github.com/chronodrachma/dagpow/cmd/dagpow/commands"
)

func main() {
	rootCmd := commands.RootCmd

	rootCmd.AddCommand(
		commands.NewSeedHashCmd(),
		commands.NewMakeCacheCmd(),
		commands.NewMakeDAGCmd(),
		commands.NewHashCmd(),
		commands.NewMineCmd(),
		commands.NewServeCmd(),
		commands.NewVerifyCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
