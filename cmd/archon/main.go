package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "archon",
		Short: "ARCHON - Autonomous supervision and production control",
		Long: `ARCHON evaluates plans submitted by planning agents, records every
decision in a persistent ledger, and drives approved work through an
external build pipeline with self-healing retries. Agent trust weights
adapt continuously from observed build outcomes.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
