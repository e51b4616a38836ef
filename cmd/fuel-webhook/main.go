// Command fuel-webhook stands in for the automation backend: it stores
// submitted fill-ups and answers the history webhook in a chosen shape.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fueltrack/internal/backend"
	"fueltrack/internal/cli"
	"fueltrack/internal/log"
	"fueltrack/internal/metrics"
	"fueltrack/internal/middleware/security"
	"fueltrack/internal/middleware/trace"
	"fueltrack/internal/stub"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg.LogLevel, nil)
	cli.MustValidate(logger, cfg.ValidateStub)

	metrics.Init()

	shape, err := stub.ParseShape(cfg.StubShape)
	if err != nil {
		logger.Error("Invalid stub shape", log.FieldError, err)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, "backend", cfg.StubBackend)
		os.Exit(1)
	}

	st := stub.New(result.Backend, shape, logger, stub.WithBackendName(cfg.StubBackend))

	mux := http.NewServeMux()
	mux.Handle("/", st.Handler())
	mux.Handle("GET /metrics", promhttp.Handler())

	detector := security.NewDetector()
	srv := &http.Server{
		Addr:           ":" + cfg.StubPort,
		Handler:        trace.NewMiddleware(logger, detector.ExtractClientIP).Middleware(mux),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Warn("Backend cleanup error", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting fuel-webhook stand-in",
		"port", cfg.StubPort,
		"backend", cfg.StubBackend,
		log.FieldShape, string(shape),
		"submit_path", stub.SubmitPath,
		"history_path", stub.HistoryPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.StubPort)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
