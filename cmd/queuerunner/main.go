// Command queuerunner is the supervised AMQP consumer fleet binary.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/facile-ops/queuerunner/internal/broker"
	"github.com/facile-ops/queuerunner/internal/config"
	"github.com/facile-ops/queuerunner/internal/dispatch"
	"github.com/facile-ops/queuerunner/internal/logging"
	"github.com/facile-ops/queuerunner/internal/registry"
	"github.com/facile-ops/queuerunner/internal/supervisor"
	"github.com/facile-ops/queuerunner/internal/wait"
)

const (
	appName        = "RabbitMQ Consumer"
	appDescription = "A configurable RabbitMQ consumer, useful for a stable and reliable CLI commands processor."
	metricsAddr    = ":9100"
)

func main() {
	logger := logging.New(false)
	defer logger.Sync()

	app := &cli.App{
		Name:  appName,
		Usage: appDescription,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env", Aliases: []string{"e"}, Value: "local", Usage: "Environment for configuration file loading"},
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Value: "config", Usage: "Base config file path"},
		},
		Action: func(c *cli.Context) error {
			return run(logger, c.String("env"), c.String("path"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("exiting after error", zap.Error(err))
	}
	// Exit 0 on clean exit or unrecoverable error after logging — spec 6.
}

func run(logger *zap.Logger, env, path string) error {
	logger.Info(fmt.Sprintf("%s by the queuerunner maintainers", appName))
	logger.Info(appDescription)
	logger.Info("")

	cfg, err := config.Load(env, path)
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, closeReg, err := buildRegistry(ctx, cfg)
	if err != nil {
		logger.Error("failed to build queue registry", zap.Error(err))
		return nil
	}
	if closeReg != nil {
		defer closeReg()
	}

	connMgr := broker.NewConnectionManager(broker.Endpoint{
		Host:     cfg.Rabbit.Host,
		Port:     cfg.Rabbit.Port,
		Username: cfg.Rabbit.Username,
		Password: cfg.Rabbit.Password,
		Vhost:    cfg.Rabbit.Vhost,
	})

	scheduler := wait.NewScheduler()
	dispatcher := dispatch.NewDispatcher(scheduler, logger)

	sup := &supervisor.Supervisor{
		Conn:        connMgr,
		Registry:    reg,
		Dispatcher:  dispatcher,
		Logger:      logger,
		QueuePrefix: cfg.Rabbit.QueuePrefix,
		Waiter:      supervisor.NewWaiter(cfg.Rabbit.Reconnections),
	}

	stopMetrics := startMetricsServer(logger)
	defer stopMetrics()

	_, err = supervisor.RunClient(ctx, sup, logger)
	return err
}

func buildRegistry(ctx context.Context, cfg *config.Config) (registry.Registry, func(), error) {
	if !cfg.Database.Enabled {
		defs, err := cfg.QueueDefinitions()
		if err != nil {
			return nil, nil, err
		}
		return registry.NewFileRegistry(defs), nil, nil
	}

	retries := int32(registry.DefaultRetries)
	if cfg.Database.Retries != nil {
		retries = *cfg.Database.Retries
	}
	port := 5432
	if cfg.Database.Port != nil {
		port = *cfg.Database.Port
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.Database.User, cfg.Database.Password, cfg.Database.Host, port, cfg.Database.DBName)

	pgReg, err := registry.NewPostgresRegistry(ctx, dsn, retries)
	if err != nil {
		return nil, nil, err
	}
	return pgReg, pgReg.Close, nil
}

func startMetricsServer(logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         metricsAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics/health server listening", zap.String("addr", metricsAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
