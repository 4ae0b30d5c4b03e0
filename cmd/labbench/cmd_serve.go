package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"labbench/internal/adapters/sessions"
	"labbench/internal/adapters/ws"
	"labbench/internal/blob"
	"labbench/internal/core"
	"labbench/pkg/domain"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve experiment sessions over websocket and HTTP",
		Long: `Start the session server.

Routes:
  GET  /ws?experiment=<id>&session=<id>   websocket session (actions in, state out)
  GET  /api/v1/experiments                built-in experiments
  GET  /api/v1/sessions[/<id>[/report]]    saved sessions and reports
  POST /api/v1/sessions/<id>/report       publish a report to blob storage
  GET  /metrics                           Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return serve(ctx, rt)
		},
	}
}

// services are the long-lived dependencies behind the HTTP routes.
type services struct {
	store   core.SessionStore
	reports blob.Store
	metrics *core.PrometheusMetricsRecorder
	tracer  core.Tracer
}

func serve(ctx context.Context, rt runtime) error {
	store, err := core.OpenSessionStore(ctx, rt.cfg.Storage)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer func() { _ = store.Close() }()
	reports, err := blob.Open(ctx, rt.cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	metrics, err := core.NewPrometheusMetricsRecorder(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	svc := services{store: store, reports: reports, metrics: metrics}
	if rt.cfg.TraceStdout {
		tp, err := newStdoutTracerProvider()
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				rt.logger.Warn("tracing shutdown failed", "error", err)
			}
		}()
		svc.tracer = core.NewOTelTracer(tp)
	}

	srv := &http.Server{
		Addr:              rt.cfg.ListenAddr,
		Handler:           newMux(rt, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("serving sessions", "addr", rt.cfg.ListenAddr,
			"storage", rt.cfg.Storage.Driver, "blob", reports.Driver())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	rt.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMux(rt runtime, svc services) *http.ServeMux {
	wsServer := ws.NewServer(rt.catalog, svc.store, rt.logger)
	wsServer.Tracker = svc.metrics
	wsServer.EngineOptions = func(exp domain.ExperimentConfig, sessionID string) []core.EngineOption {
		extra := []core.EngineOption{core.WithMetricsRecorder(svc.metrics)}
		if svc.tracer != nil {
			extra = append(extra, core.WithTracer(svc.tracer))
		}
		return rt.engineOptions(exp, sessionID, extra...)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	mux.Handle("/api/v1/", sessions.NewHandler(rt.catalog, svc.store, svc.reports))
	mux.Handle("/metrics", svc.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func newStdoutTracerProvider() (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stdout), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("stdout trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", "labbench"))),
	), nil
}
