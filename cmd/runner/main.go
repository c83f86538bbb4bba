// Package main is the runner process entry point: it loads runner.yaml,
// connects to the gateway, and hosts CLI sessions on this machine.
//
// Command tree shape (root + "run" + "version") follows nexus's
// cmd/nexus/main.go buildRootCmd pattern, trimmed to the two subcommands
// this process actually needs.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/discode/fabric/internal/appconfig"
	"github.com/discode/fabric/internal/logging"
	"github.com/discode/fabric/internal/runnerapp"
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
		Use:          "runner-agent",
		Short:        "Hosts CLI coding-agent sessions and streams them to a fabric gateway",
		Version:      fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(buildRunCmd())
	return root
}

func buildRunCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the gateway and serve CLI sessions until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.LoadRunner(configPath)
			if err != nil {
				return fmt.Errorf("runner: %w", err)
			}

			logger := logging.New(logging.Config{Format: cfg.Logging.Format, Level: cfg.Logging.Level})
			slog.SetDefault(logger)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			app := runnerapp.New(*cfg, logger)

			if cfg.Metrics.Enabled {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				mux.Handle("/healthz", app.HealthHandler())
				metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
				go func() {
					if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Warn("runner-agent: metrics server stopped", "error", err)
					}
				}()
				go func() {
					<-ctx.Done()
					_ = metricsSrv.Close()
				}()
			}

			logger.Info("runner-agent: starting", "runner_name", cfg.RunnerName, "gateway", cfg.GatewayURL)
			app.Run(ctx)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "runner.yaml", "Path to runner YAML configuration")
	return cmd
}
