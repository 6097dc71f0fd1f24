package log

// Standard attribute keys. Use these instead of ad-hoc strings so log
// queries work the same way for the server, the training job and tests.
const (
	// ComponentKey identifies which package or subsystem emitted the record.
	ComponentKey = "component"

	// OperationKey specifies the operation being performed (fit, predict, ...).
	OperationKey = "ml.operation"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"

	// StageKey names the pipeline stage (fetch, build, split, fit, evaluate, save).
	StageKey = "ml.stage"

	// ModelNameKey identifies the type of model.
	ModelNameKey = "model.name"

	// ModelVersionKey is the artifact version, e.g. v20250101_120000.
	ModelVersionKey = "model.version"

	// StoreIDKey and ProductIDKey identify the forecast series.
	StoreIDKey   = "store.id"
	ProductIDKey = "product.id"

	// ForecastMonthKey is the first day of the forecast month.
	ForecastMonthKey = "forecast.month"

	// SamplesKey indicates the number of rows in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of feature columns.
	FeaturesKey = "data.features"

	// ObservationsKey is the number of raw sales observations.
	ObservationsKey = "data.observations"

	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	MAEKey     = "metrics.mae"
	RMSEKey    = "metrics.rmse"
	MAPEKey    = "metrics.mape"
	R2ScoreKey = "metrics.r2_score"

	// AccuracyKey records the accuracy of a single prediction against its actual.
	AccuracyKey = "metrics.accuracy"

	// PredictedQuantityKey is the integer forecast returned to the caller.
	PredictedQuantityKey = "preds.quantity"

	// ConfidenceKey records the heuristic confidence score.
	ConfidenceKey = "preds.confidence"

	// PredictionIDKey is the persisted prediction record ID.
	PredictionIDKey = "preds.id"

	// Feature-importance entry attributes.
	FeatureNameKey = "feature.name"
	ImportanceKey  = "feature.importance"
	RankKey        = "feature.rank"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// HTTP request attributes used by the server middleware.
	HTTPMethodKey = "http.method"
	HTTPPathKey   = "http.path"
	HTTPStatusKey = "http.status"
)

// Operation values for OperationKey.
const (
	OperationFit      = "fit"
	OperationPredict  = "predict"
	OperationEvaluate = "evaluate"
	OperationBuild    = "build_features"
	OperationSave     = "save_artifact"
	OperationLoad     = "load_artifact"
)

// Phase values for PhaseKey.
const (
	PhaseTraining  = "training"
	PhaseInference = "inference"
	PhaseFeedback  = "feedback"
)
