package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gatewise-ai/gatewise/pkg/admission"
	"github.com/gatewise-ai/gatewise/pkg/history"
	"github.com/gatewise-ai/gatewise/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve Gatewise observability as an MCP server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			store, err := history.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init history: %w", err)
			}
			defer func() { _ = store.Close() }()

			// Read-only surface: no requests are processed here, so the
			// controller is built without an executor.
			ctrl, err := admission.FromConfig(cfg, nil)
			if err != nil {
				return err
			}

			srv := mcp.New(ctrl, store, version)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("starting gatewise mcp server (version %s)", version)
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}
