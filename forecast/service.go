package forecast

import (
	"context"
	"time"

	"github.com/YuminosukeSato/replenish/core/parallel"
	"github.com/YuminosukeSato/replenish/features"
	"github.com/YuminosukeSato/replenish/metrics"
	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/pkg/log"
	"github.com/YuminosukeSato/replenish/sklearn/drift"
)

// ServiceConfig controls history windows and batch training.
type ServiceConfig struct {
	// HistoricalMonths is the default history window, in 30-day months.
	HistoricalMonths int `yaml:"historical_months"`
	// ForecastHorizon is the number of months ahead a client may ask for.
	ForecastHorizon int `yaml:"forecast_horizon"`

	TrainStores           int `yaml:"train_stores"`
	TrainProductsPerStore int `yaml:"train_products_per_store"`
	TrainLookbackDays     int `yaml:"train_lookback_days"`
	TrainConcurrency      int `yaml:"train_concurrency"`

	// TrainParallelThreshold is the largest batch fetched sequentially.
	TrainParallelThreshold int `yaml:"train_parallel_threshold"`
}

// DefaultServiceConfig returns a 12 month history, 3 month horizon and a
// batch of 3 stores × 5 products over 365 days.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		HistoricalMonths:      12,
		ForecastHorizon:       3,
		TrainStores:           3,
		TrainProductsPerStore: 5,
		TrainLookbackDays:     365,
		TrainConcurrency:      4,

		TrainParallelThreshold: 2,
	}
}

// Service wires the feature builder, predictor, trainer and stores into the
// forecast, feedback and batch training workflows.
type Service struct {
	cfg         ServiceConfig
	sales       SalesSource
	predictions PredictionStore
	builder     *features.Builder
	predictor   *Predictor
	trainer     *Trainer
	drift       *drift.DDM
	now         func() time.Time
	logger      log.Logger

	onTrained func(*ModelInfo)
}

// Deps are the collaborators of a Service. Sales and Predictions may be nil
// for a training-only process.
type Deps struct {
	Sales       SalesSource
	Predictions PredictionStore
	Builder     *features.Builder
	Predictor   *Predictor
	Trainer     *Trainer
	Drift       *drift.DDM
	Clock       func() time.Time
	Logger      log.Logger
	// OnTrained runs after a successful Train, e.g. to notify other processes.
	OnTrained func(*ModelInfo)
}

// NewService creates a Service.
func NewService(cfg ServiceConfig, deps Deps) *Service {
	s := &Service{
		cfg:         cfg,
		sales:       deps.Sales,
		predictions: deps.Predictions,
		builder:     deps.Builder,
		predictor:   deps.Predictor,
		trainer:     deps.Trainer,
		drift:       deps.Drift,
		now:         deps.Clock,
		logger:      deps.Logger,
		onTrained:   deps.OnTrained,
	}
	if s.builder == nil {
		s.builder = features.NewBuilder(features.DefaultConfig(), nil)
	}
	if s.drift == nil {
		s.drift = drift.NewDDM()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = log.GetLoggerWithName("forecast.service")
	}
	return s
}

// DriftStatus reports the outcomes the drift detector has seen since the
// last training or detected drift.
func (s *Service) DriftStatus() DriftStatus {
	st := s.drift.Stats()
	return DriftStatus{
		Outcomes:  st.NumInstances,
		Errors:    st.NumErrors,
		ErrorRate: errors.SafeDivide(float64(st.NumErrors), float64(st.NumInstances)),
		Warning:   st.WarningDetected,
	}
}

// Predictor returns the predictor the service serves from.
func (s *Service) Predictor() *Predictor {
	return s.predictor
}

// Forecast predicts demand for one store/product in the requested month and
// persists the prediction.
func (s *Service) Forecast(ctx context.Context, req ForecastRequest) (*ForecastResponse, error) {
	scope := errors.For(req.StoreID, req.ProductID)
	if req.StoreID == "" || req.ProductID == "" {
		return nil, errors.NewInputError("forecast.request", scope, errors.New("store_id and product_id are required"))
	}
	if req.ForecastMonth.IsZero() {
		return nil, errors.NewInputError("forecast.request", scope, errors.New("forecast_month is required"))
	}
	if h := s.cfg.ForecastHorizon; h > 0 && req.ForecastMonth.After(s.now().AddDate(0, h, 0)) {
		return nil, errors.NewInputError("forecast.request", scope,
			errors.Newf("forecast_month %s is more than %d months ahead", req.ForecastMonth.Format("2006-01"), h))
	}
	months := req.HistoricalMonths
	if months <= 0 {
		months = s.cfg.HistoricalMonths
	}

	end := req.ForecastMonth.AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -30*months)
	obs, err := s.sales.Fetch(ctx, req.StoreID, req.ProductID, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch sales history")
	}
	if len(obs) == 0 {
		return nil, errors.NewInputError("forecast.fetch", scope, errors.ErrNoSalesData)
	}

	table, err := s.builder.Build(obs)
	if err != nil {
		return nil, err
	}
	last, ok := table.Last()
	if !ok {
		return nil, errors.NewInputError("forecast.build", scope, errors.Wrap(errors.ErrEmptyData, "insufficient data for prediction"))
	}

	pred, err := s.predictor.Predict(ctx, last.WithCalendar(req.ForecastMonth))
	if err != nil {
		return nil, err
	}

	rec := &PredictionRecord{
		StoreID:           req.StoreID,
		ProductID:         req.ProductID,
		ForecastMonth:     req.ForecastMonth,
		PredictedQuantity: pred.Quantity,
		ConfidenceScore:   pred.Confidence,
		ModelVersion:      pred.ModelVersion,
		FeaturesUsed:      features.Columns(),
		CreatedAt:         s.now().UTC(),
	}
	id, err := s.predictions.Create(ctx, rec)
	if err != nil {
		return nil, errors.Wrap(err, "failed to persist prediction")
	}

	s.logger.Info("Forecast created",
		log.PhaseKey, log.PhaseInference,
		log.PredictionIDKey, id,
		log.StoreIDKey, req.StoreID,
		log.ProductIDKey, req.ProductID,
		log.ForecastMonthKey, req.ForecastMonth,
		log.PredictedQuantityKey, pred.Quantity,
		log.ConfidenceKey, pred.Confidence,
		log.ModelVersionKey, pred.ModelVersion)

	return &ForecastResponse{
		PredictionID:      id,
		StoreID:           rec.StoreID,
		ProductID:         rec.ProductID,
		ForecastMonth:     rec.ForecastMonth,
		PredictedQuantity: rec.PredictedQuantity,
		ConfidenceScore:   rec.ConfidenceScore,
		ModelVersion:      rec.ModelVersion,
		CreatedAt:         rec.CreatedAt,
		FeaturesUsed:      rec.FeaturesUsed,
	}, nil
}

// RecordActual stores the real demand for a prediction together with its
// accuracy and feeds the outcome to the drift detector. A prediction is
// scored once; a second call fails with ErrActualRecorded.
func (s *Service) RecordActual(ctx context.Context, id string, actual int) (*PredictionRecord, error) {
	rec, err := s.predictions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actual < 0 {
		return nil, errors.NewInputError("forecast.actual", errors.For(rec.StoreID, rec.ProductID),
			errors.Newf("negative actual quantity %d", actual))
	}
	if rec.ActualQuantity != nil {
		return nil, errors.NewInputError("forecast.actual", errors.For(rec.StoreID, rec.ProductID),
			errors.Wrapf(errors.ErrActualRecorded, "prediction %s", id))
	}

	acc, err := metrics.Accuracy(float64(rec.PredictedQuantity), float64(actual))
	if err != nil {
		return nil, err
	}
	ok, err := s.predictions.Update(ctx, id, Update{ActualQuantity: &actual, Accuracy: &acc})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.WithStack(errors.ErrNotFound)
	}

	logger := s.logger.With(log.PhaseKey, log.PhaseFeedback, log.PredictionIDKey, id)
	logger.Info("Recorded actual demand",
		log.StoreIDKey, rec.StoreID,
		log.ProductIDKey, rec.ProductID,
		log.AccuracyKey, acc)

	if r := s.drift.UpdateWithAccuracy(acc); r.DriftDetected {
		logger.Warn("Prediction accuracy drift detected",
			log.ErrAttrKey, errors.NewModelDriftWarning("ddm", rec.ModelVersion, r.Score, r.Threshold, "retrain"))
	} else if r.WarningDetected {
		logger.Warn("Prediction accuracy is degrading",
			log.ModelVersionKey, rec.ModelVersion,
			"error_rate", r.ErrorRate)
	}

	return s.predictions.Get(ctx, id)
}

// Train fetches recent history for the first stores and products listed by
// src, builds the feature table and trains a new model.
func (s *Service) Train(ctx context.Context, src BatchSource) (*ModelInfo, error) {
	type series struct{ store, product string }

	stores, err := src.Stores(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stores")
	}
	stores = firstN(stores, s.cfg.TrainStores)

	var pairs []series
	for _, store := range stores {
		products, err := src.Products(ctx, store)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list products for store %s", store)
		}
		for _, product := range firstN(products, s.cfg.TrainProductsPerStore) {
			pairs = append(pairs, series{store, product})
		}
	}
	if len(pairs) == 0 {
		return nil, errors.NewInputError("forecast.train", errors.Scope{}, errors.ErrNoSalesData)
	}

	end := s.now().UTC()
	start := end.AddDate(0, 0, -s.cfg.TrainLookbackDays)
	histories := make([][]features.Observation, len(pairs))
	err = parallel.ForEachWithThreshold(ctx, len(pairs), s.cfg.TrainParallelThreshold, s.cfg.TrainConcurrency, func(ctx context.Context, i int) error {
		obs, err := src.Fetch(ctx, pairs[i].store, pairs[i].product, start, end)
		if err != nil {
			return errors.Wrapf(err, "failed to fetch %s/%s", pairs[i].store, pairs[i].product)
		}
		histories[i] = obs
		return nil
	})
	if err != nil {
		return nil, err
	}

	var all []features.Observation
	for i, h := range histories {
		s.logger.Debug("Fetched sales history",
			log.StoreIDKey, pairs[i].store,
			log.ProductIDKey, pairs[i].product,
			log.ObservationsKey, len(h))
		all = append(all, h...)
	}
	if len(all) == 0 {
		return nil, errors.NewInputError("forecast.train", errors.Scope{}, errors.ErrNoSalesData)
	}

	return s.TrainOn(ctx, all)
}

// TrainOn builds features from obs and trains a new model.
func (s *Service) TrainOn(ctx context.Context, obs []features.Observation) (*ModelInfo, error) {
	table, err := s.builder.Build(obs)
	if err != nil {
		return nil, err
	}
	info, err := s.trainer.Train(ctx, table)
	if err != nil {
		return nil, err
	}
	if s.predictor != nil {
		s.predictor.Invalidate()
	}
	s.drift.Reset()

	for _, fi := range firstN(info.FeatureImportance, 10) {
		s.logger.Info("Feature importance",
			log.ModelVersionKey, info.ModelVersion,
			log.RankKey, fi.Rank,
			log.FeatureNameKey, fi.FeatureName,
			log.ImportanceKey, fi.ImportanceScore)
	}
	if s.onTrained != nil {
		s.onTrained(info)
	}
	return info, nil
}

func firstN[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
