package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"fueltrack/internal/amqp"
	"fueltrack/internal/analytics"
	"fueltrack/internal/cache"
	"fueltrack/internal/cli"
	"fueltrack/internal/form"
	apphttp "fueltrack/internal/http"
	"fueltrack/internal/log"
	"fueltrack/internal/metrics"
	"fueltrack/internal/normalize"
	"fueltrack/internal/webhook"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg.LogLevel, nil)
	cli.MustValidate(logger, cfg.Validate)

	metrics.Init()
	loc := cfg.Location()

	client := webhook.New(webhook.Config{
		SubmitURL:  cfg.SubmitWebhookURL,
		HistoryURL: cfg.HistoryWebhookURL,
		Timeout:    cfg.WebhookTimeout,
	}, webhook.WithLogger(logger))

	charts := cache.NewLRUCache[[]byte](cfg.ChartCacheSize, cfg.ChartCacheTTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(charts)
	cacheManager.StartCleanup(cfg.ChartCacheTTL)

	view := analytics.NewView(client, normalize.New(loc),
		analytics.WithLogger(logger),
		analytics.WithChartCache(charts),
		analytics.WithFetchTimeout(cfg.WebhookTimeout),
	)

	// Refresh fan-out between dashboard instances
	var bus *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		bus, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, instanceID(), logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	refresher := form.RefresherFunc(func() {
		view.Refresh()
		if bus == nil {
			return
		}
		go func() {
			if err := bus.PublishRefresh(context.Background(), amqp.ReasonFillUpSubmitted); err != nil {
				logger.Warn("Failed to publish refresh", log.FieldError, err)
			}
		}()
	})

	fm := form.New(client, refresher,
		form.WithResetDelay(cfg.FormResetDelay),
		form.WithLogger(logger),
	)

	srv := apphttp.NewServer(":"+cfg.Port, view, fm, logger,
		apphttp.WithRateLimit(cfg.RateLimitPerMinute),
		apphttp.WithFormResetDelay(cfg.FormResetDelay),
	)
	srv.ReadTimeout = 10 * time.Second
	// a submit waits for the webhook
	srv.WriteTimeout = cfg.WebhookTimeout + 10*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if bus != nil {
			if err := bus.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
	})

	if bus != nil {
		go func() {
			err := bus.ConsumeRefresh(ctx, func(m *amqp.RefreshMessage) error {
				view.RefreshFrom(metrics.RefreshRemote)
				return nil
			})
			if err != nil && ctx.Err() == nil {
				logger.Error("Refresh consumer stopped", log.FieldError, err)
			}
		}()
	}

	// warm the first snapshot so charts and exports have data early
	go view.Load(ctx)

	logger.Info("Starting fueltrack dashboard",
		"port", cfg.Port,
		"timezone", loc.String(),
		"amqp", bus != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "fueltrack"
	}
	return host + "-" + uuid.NewString()[:8]
}
