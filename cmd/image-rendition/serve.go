package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ironsheep/image-rendition-mcp/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the rendition tools over MCP on stdin/stdout",
		Long: `Serve speaks JSON-RPC 2.0 (MCP) on stdin and stdout. Logs go to stderr.

Configure it as a stdio server in your MCP client. When --metrics-addr is set,
Prometheus metrics are exported over HTTP at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	cmd.Flags().String("metrics-addr", "", "listen address for Prometheus metrics, e.g. :9090")
	_ = a.v.BindPFlag("metrics.addr", cmd.Flags().Lookup("metrics-addr"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if addr := a.cfg.Metrics.Addr; addr != "" {
		metrics := a.startMetrics(addr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metrics.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("error stopping metrics server", "error", err)
			}
		}()
	}

	srv := server.New(server.Options{
		Index:         a.index(),
		Renderer:      a.renderer(reg),
		DefaultScales: a.cfg.Render.DefaultScales,
		Version:       Version,
		Logger:        a.logger,
	})

	a.logger.Info("image rendition server starting",
		"version", Version,
		"commit", GitCommit,
		"static_dir", a.cfg.StaticDir,
	)
	err := srv.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) startMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info("starting metrics server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
