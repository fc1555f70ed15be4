package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gatewise-ai/gatewise/pkg/config"
)

var version = "dev"

// loadConfig returns defaults when no config path is given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func main() {
	root := &cobra.Command{
		Use:     "gatewise",
		Short:   "Gatewise is cost-governed admission control for metered backends",
		Version: version,
	}

	root.AddCommand(
		newSimulateCmd(),
		newHistoryCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
