// Copyright (C) 2024-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dagbft/core/config"
)

func paramsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Manage consensus runtime parameters",
	}

	checkCmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a parameter file, or the built-in defaults if none is given",
		RunE:  runParamsCheck,
	}

	genCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a parameter preset",
		RunE:  runParamsGenerate,
	}
	genCmd.Flags().String("preset", "default", "Parameter preset: default, small, large")
	genCmd.Flags().String("output", "", "Output file (YAML); prints to stdout if omitted")

	cmd.AddCommand(checkCmd, genCmd)
	return cmd
}

func runParamsCheck(cmd *cobra.Command, args []string) error {
	var p config.Parameters
	if len(args) == 1 {
		loaded, err := config.Load(args[0])
		if err != nil {
			return err
		}
		p = loaded
	} else {
		p = config.DefaultParams()
	}

	if err := p.Valid(); err != nil {
		fmt.Printf("invalid: %v\n", err)
		return err
	}
	fmt.Println("parameters are valid")
	displayParams(p)
	return nil
}

func runParamsGenerate(cmd *cobra.Command, args []string) error {
	preset, _ := cmd.Flags().GetString("preset")
	output, _ := cmd.Flags().GetString("output")

	p := config.DefaultParams()
	switch preset {
	case "default":
		// already set
	case "small":
		p.GCDepth = 10
		p.RoundBound = 50
		p.ProposerMinDelay = 10 * time.Millisecond
		p.MaxFetchConcurrency = 2
	case "large":
		p.GCDepth = 200
		p.RoundBound = 2000
		p.MaxFetchConcurrency = 32
	default:
		return fmt.Errorf("unknown preset: %s (available: default, small, large)", preset)
	}

	if err := p.Valid(); err != nil {
		return fmt.Errorf("generated preset is invalid: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	if output == "" {
		fmt.Print(string(data))
		return nil
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Printf("wrote %s\n", output)
	return nil
}

func displayParams(p config.Parameters) {
	data, _ := json.MarshalIndent(p, "", "  ")
	fmt.Println(string(data))
}
