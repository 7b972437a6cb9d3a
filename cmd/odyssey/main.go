package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if len(os.Args) > 1 {
		os.Exit(runCLI(ctx, cfg, logger, os.Args[1:]))
	}
	metrics := observability.NewMetrics()

	ledger, err := app.BuildLedger(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("build ledger", slog.Any("error", err))
		os.Exit(1)
	}
	defer ledger.Close()

	var enqueuer integration.Enqueuer
	var inspector *asynq.Inspector
	if !cfg.InMemory() {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		client, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		enqueuer = client

		inspector = asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
	}

	params := app.NewHandlers(logger, ledger, enqueuer)
	params.Logger = logger
	params.Config = cfg
	params.Metrics = metrics
	params.JobHandler = jobs.NewHandler(inspector, logger)
	router := app.NewRouter(params)

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.Store))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func runCLI(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	rates := func(ctx context.Context) (*cli.RatesCLI, func(), error) {
		ledger, err := app.BuildLedger(ctx, cfg, logger, nil)
		if err != nil {
			return nil, nil, err
		}
		ratesCLI, err := cli.NewRatesCLI(ledger.Rates, ledger.Documents)
		if err != nil {
			ledger.Close()
			return nil, nil, err
		}
		return ratesCLI, ledger.Close, nil
	}
	jobsCLI := func() (*cli.JobsCLI, error) {
		return cli.NewJobsCLI(cfg.RedisAddr)
	}
	return cli.Execute(ctx, cli.NewRootCommand(rates, jobsCLI), args)
}
