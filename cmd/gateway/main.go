// Package main is the gateway process entry point: it accepts runner WS
// connections, brokers permission decisions, and exposes a pluggable
// Notifier seam for whatever sits upstream (chat UI, webhook, CLI client).
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/discode/fabric/internal/appconfig"
	"github.com/discode/fabric/internal/gateway"
	"github.com/discode/fabric/internal/gatewayapp"
	"github.com/discode/fabric/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fabric-gateway",
		Short:        "Brokers runner connections, permission decisions, and session sync",
		Version:      fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd())
	return root
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway's HTTP/WS listener until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.LoadGateway(configPath)
			if err != nil {
				return fmt.Errorf("gateway: %w", err)
			}

			logger := logging.New(logging.Config{Format: cfg.Logging.Format, Level: cfg.Logging.Level})
			slog.SetDefault(logger)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			app := gatewayapp.New(*cfg, gateway.LogNotifier{Logger: logger}, logger)
			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "gateway.yaml", "Path to gateway YAML configuration")
	return cmd
}
