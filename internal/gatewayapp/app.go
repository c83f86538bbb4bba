// Package gatewayapp wires L10 (internal/gateway's Hub) to the gateway
// process's HTTP listener, permission store sweep loop, and a pluggable
// Notifier -- the seam where a chat UI or other upstream consumer plugs in.
//
// Follows the shape of nexus's internal/gateway.Server/lifecycle.go: one
// struct owning the listener and background loops, started and stopped from
// cmd/gateway/main.go.
package gatewayapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/discode/fabric/internal/appconfig"
	"github.com/discode/fabric/internal/gateway"
	"github.com/discode/fabric/internal/metrics"
	"github.com/discode/fabric/internal/permission"
)

// App is the gateway process: an HTTP server exposing the runner WS
// endpoint plus a health check, backed by a permission Store and Hub.
type App struct {
	cfg    appconfig.GatewayConfig
	logger *slog.Logger
	hub    *gateway.Hub
	store  *permission.Store
	notify gateway.Notifier
	srv    *http.Server
}

// New constructs an App. notify receives normalized runner events; pass a
// no-op implementation if nothing upstream is wired yet.
func New(cfg appconfig.GatewayConfig, notify gateway.Notifier, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	store := permission.NewStore(cfg.Permission.RequestTTL(), cfg.Permission.AckTimeout())
	hub := gateway.NewHub(logger)
	gw := metrics.NewGateway()
	gateway.RegisterHandlers(hub, store, gateway.MeteredNotifier(notify, gw), logger)

	mux := http.NewServeMux()
	mux.Handle("/v1/runner", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		hub:    hub,
		store:  store,
		notify: notify,
		srv: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: mux,
		},
	}
}

// Hub exposes the runner connection hub for callers that need to dispatch
// commands (session_start, user_message, ...) to a connected runner.
func (a *App) Hub() *gateway.Hub { return a.hub }

// Store exposes the permission store so an upstream UI can record
// decisions via gateway.Decide.
func (a *App) Store() *permission.Store { return a.store }

// Run starts the HTTP listener and the permission sweep loop, blocking
// until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	go gateway.SweepLoop(ctx, a.hub, a.store, a.cfg.Permission.AckTimeout(), a.logger)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("gatewayapp: listening", "addr", a.srv.Addr)
		errCh <- a.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
