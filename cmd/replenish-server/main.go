// Command replenish-server serves demand forecasts over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/YuminosukeSato/replenish/artifact"
	"github.com/YuminosukeSato/replenish/config"
	"github.com/YuminosukeSato/replenish/features"
	"github.com/YuminosukeSato/replenish/forecast"
	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/pkg/log"
	"github.com/YuminosukeSato/replenish/predictions"
	"github.com/YuminosukeSato/replenish/sales"
	"github.com/YuminosukeSato/replenish/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "replenish-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	provider, err := log.SetupLogger(cfg.Log.Level, os.Stdout)
	if err != nil {
		return err
	}
	logger := provider.GetLogger()
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := predictions.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = predictions.Close(db) }()
	repo := predictions.NewRepository(db, time.Now, provider.GetLoggerWithName("predictions"))

	store, closeStore, err := artifact.Open(ctx, cfg.Model.Path, cfg.Model.GCSBucket, cfg.Model.GCSPrefix, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		store = artifact.NewNotifyingStore(store, rdb, cfg.Redis.Channel, logger)
	}

	predictor := forecast.NewPredictor(store, provider.GetLoggerWithName("predictor"))
	if rdb != nil {
		err := artifact.Subscribe(ctx, rdb, cfg.Redis.Channel, logger, func(u artifact.Update) {
			logger.Info("Reloading model after update", log.ModelVersionKey, u.ModelVersion)
			predictor.Invalidate()
		})
		if err != nil {
			return errors.Wrap(err, "failed to subscribe to model updates")
		}
	}

	src := sales.NewHTTPSource(cfg.Sales.BaseURL, cfg.Sales.APIKey,
		sales.WithRateLimit(cfg.Sales.RateLimit, cfg.Sales.RateBurst),
		sales.WithLogger(provider.GetLoggerWithName("sales")))

	svc := forecast.NewService(cfg.Forecast, forecast.Deps{
		Sales:       src,
		Predictions: repo,
		Builder:     features.NewBuilder(cfg.Features, logger),
		Predictor:   predictor,
		Trainer:     forecast.NewTrainer(cfg.Training, store, forecast.WithTrainerLogger(logger)),
		Logger:      provider.GetLoggerWithName("forecast"),
	})

	if info, err := predictor.Info(ctx); err != nil {
		logger.Warn("No model loaded at startup, forecasts are unavailable until one is trained", log.ErrAttrKey, err)
	} else {
		logger.Info("Model loaded", log.ModelVersionKey, info.ModelVersion, log.SamplesKey, info.TrainingSamples)
	}

	srv := server.New(server.Config{AllowOrigins: cfg.Server.AllowOrigins}, svc, repo,
		func(ctx context.Context) error { return predictions.Ping(ctx, db) },
		provider.GetLoggerWithName("http"))
	return srv.Run(ctx, ":"+cfg.Server.Port)
}
