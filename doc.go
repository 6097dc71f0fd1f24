// Package replenish forecasts monthly product demand per store from sales
// history with gradient-boosted trees.
//
// Raw sales observations are turned into a feature table (calendar fields,
// lagged sales, rolling means, discount statistics and a next-period
// target), a regressor is trained on it, and the versioned model artifact
// is served for single-row predictions. Each prediction is persisted and
// scored once the real demand is known.
//
// # Quick Start
//
//	store := artifact.NewFileStore("./models/demand_model.gob", nil)
//	svc := forecast.NewService(forecast.DefaultServiceConfig(), forecast.Deps{
//	    Sales:       sales.NewHTTPSource("http://localhost:3000/api", apiKey),
//	    Predictions: predictions.NewRepository(db, time.Now, nil),
//	    Predictor:   forecast.NewPredictor(store, nil),
//	    Trainer:     forecast.NewTrainer(forecast.DefaultTrainerConfig(), store),
//	})
//
//	resp, err := svc.Forecast(ctx, forecast.ForecastRequest{
//	    StoreID:       "S1",
//	    ProductID:     "P1",
//	    ForecastMonth: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
//	})
//
// # Packages
//
//   - features: observation to feature-row transformation
//   - forecast: training, prediction and outcome recording
//   - metrics: regression metrics and prediction accuracy
//   - sklearn/gbdt: gradient-boosted regression trees
//   - sklearn/model_selection: seeded train/test split
//   - sklearn/drift: DDM drift detection over prediction accuracy
//   - artifact: model artifact storage (file, Cloud Storage) and Redis update notifications
//   - sales: sales history from the upstream HTTP API or Excel workbooks
//   - predictions: prediction records on Postgres or SQLite via gorm
//   - server: HTTP API
//   - config: .env, YAML and environment configuration
//   - report: feature importance charts
//   - core/model: gob persistence and fitted-state tracking
//   - core/parallel: bounded concurrent fan-out
//   - pkg/errors, pkg/log: error taxonomy and structured logging
//
// # Commands
//
//   - cmd/replenish-server serves the HTTP API.
//   - cmd/replenish-train trains a model from the sales API or, with -excel,
//     from a workbook.
package replenish
