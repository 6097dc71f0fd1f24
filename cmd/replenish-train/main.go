// Command replenish-train trains the demand model from the sales API or an
// Excel workbook and writes a feature importance chart.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/YuminosukeSato/replenish/artifact"
	"github.com/YuminosukeSato/replenish/config"
	"github.com/YuminosukeSato/replenish/features"
	"github.com/YuminosukeSato/replenish/forecast"
	"github.com/YuminosukeSato/replenish/pkg/log"
	"github.com/YuminosukeSato/replenish/report"
	"github.com/YuminosukeSato/replenish/sales"
)

func main() {
	excelPath := flag.String("excel", "", "train from an .xlsx workbook instead of the sales API")
	chartPath := flag.String("chart", "", "feature importance chart path (default: next to the model)")
	top := flag.Int("top", 10, "number of features drawn in the chart")
	verbose := flag.Bool("v", false, "log at debug level regardless of LOG_LEVEL")
	flag.Parse()

	if err := run(*excelPath, *chartPath, *top, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "replenish-train: %v\n", err)
		os.Exit(1)
	}
}

func run(excelPath, chartPath string, top int, verbose bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	provider, err := log.SetupLogger(cfg.Log.Level, os.Stdout)
	if err != nil {
		return err
	}
	if verbose {
		provider.SetLevel(log.LevelDebug)
		log.SetGlobal(provider.GetLogger())
	}
	logger := provider.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := artifact.Open(ctx, cfg.Model.Path, cfg.Model.GCSBucket, cfg.Model.GCSPrefix, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		store = artifact.NewNotifyingStore(store, rdb, cfg.Redis.Channel, logger)
	}

	svc := forecast.NewService(cfg.Forecast, forecast.Deps{
		Builder: features.NewBuilder(cfg.Features, logger),
		Trainer: forecast.NewTrainer(cfg.Training, store, forecast.WithTrainerLogger(logger)),
		Logger:  provider.GetLoggerWithName("train"),
	})

	start := time.Now()
	var info *forecast.ModelInfo
	if excelPath != "" {
		src, err := sales.OpenExcel(excelPath)
		if err != nil {
			return err
		}
		logger.Info("Training from workbook", "path", excelPath, log.ObservationsKey, src.Len())
		info, err = svc.TrainOn(ctx, src.All())
		if err != nil {
			return err
		}
	} else {
		src := sales.NewHTTPSource(cfg.Sales.BaseURL, cfg.Sales.APIKey,
			sales.WithRateLimit(cfg.Sales.RateLimit, cfg.Sales.RateBurst),
			sales.WithLogger(provider.GetLoggerWithName("sales")))
		info, err = svc.Train(ctx, src)
		if err != nil {
			return err
		}
	}

	if chartPath == "" {
		dir := filepath.Dir(cfg.Model.Path)
		if cfg.Model.GCSBucket != "" {
			dir = "."
		}
		chartPath = filepath.Join(dir, "feature_importance_"+info.ModelVersion+".png")
	}
	if err := report.SaveImportanceChart(chartPath, info, top); err != nil {
		logger.Warn("Failed to write feature importance chart", log.ErrAttrKey, err)
	}

	logger.Info("Training finished",
		log.ModelVersionKey, info.ModelVersion,
		log.SamplesKey, info.TrainingSamples,
		log.MAEKey, info.Metrics.MAE,
		log.RMSEKey, info.Metrics.RMSE,
		log.MAPEKey, info.Metrics.MAPE,
		log.R2ScoreKey, info.Metrics.R2Score,
		"chart", chartPath,
		log.DurationMsKey, time.Since(start).Milliseconds())
	return nil
}
