package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/chi-demo/app"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tendant/simple-media/pkg/simplemedia/api"
	"github.com/tendant/simple-media/pkg/simplemedia/config"
)

const shutdownTimeout = 15 * time.Second

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n\n%s\n", os.Args[0], config.EnvUsage())
	}
	flag.Parse()

	if err := run(); err != nil {
		slog.Error("Server failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(
		config.WithEnv(),
		config.WithMetricsRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(cfg.Environment)
	slog.SetDefault(logger)
	cfg.Logger = logger

	if cfg.TracingEnabled {
		shutdownTracing, err := setupTracing()
		if err != nil {
			return err
		}
		defer shutdownTracing()
	}

	svc, cleanup, err := cfg.BuildService(ctx)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer cleanup()

	var ja *jwtauth.JWTAuth
	if cfg.JWTSecret != "" {
		ja = jwtauth.New("HS256", []byte(cfg.JWTSecret), nil)
	} else {
		logger.Warn("JWT auth disabled, tenant is read from the " + api.CompanyIDHeader + " header")
	}

	handlerOpts := []api.HandlerOption{
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
		api.WithTmpDir(cfg.UploadTmpDir),
		api.WithHandlerLogger(logger.With("component", "api")),
	}
	if cfg.UploadRateLimit > 0 {
		handlerOpts = append(handlerOpts, api.WithUploadLimiter(rate.NewLimiter(rate.Limit(cfg.UploadRateLimit), cfg.UploadBurst)))
	}
	filesHandler := api.NewFilesHandler(svc, handlerOpts...)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(api.Tenant(ja))
			r.Mount("/files", filesHandler.Routes())
		})
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting media server",
			"addr", server.Addr,
			"environment", cfg.Environment,
			"database", cfg.DatabaseType,
			"storage", cfg.DefaultStorageBackend,
			"bucket", cfg.FilesBucket,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down media server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newLogger(environment string) *slog.Logger {
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// setupTracing installs a global tracer provider exporting spans to stdout.
func setupTracing() (func(), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("Failed to shut down tracer provider", "err", err)
		}
	}, nil
}
