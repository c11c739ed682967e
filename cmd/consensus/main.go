// Copyright (C) 2024-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command consensus is a library demo and parameter harness for the
// dagbft core: it runs a small in-process committee through the commit
// engine and exposes the runtime parameter set for inspection, in the
// same cobra-subcommand shape as the teacher's cmd/consensus tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "consensus",
	Short: "dagbft consensus core demo and parameter tools",
	Long: `The consensus command runs a small in-process committee through the
DAG-BFT commit engine and manages its runtime parameters.`,
}

func main() {
	rootCmd.AddCommand(demoCmd(), paramsCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
