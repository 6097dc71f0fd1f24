package forecast

import (
	"context"
	"sort"
	"time"

	"github.com/YuminosukeSato/replenish/features"
	"github.com/YuminosukeSato/replenish/metrics"
	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/pkg/log"
	"github.com/YuminosukeSato/replenish/sklearn/gbdt"
	"github.com/YuminosukeSato/replenish/sklearn/model_selection"
)

const versionLayout = "20060102_150405"

// TrainerConfig holds the model hyperparameters and the evaluation split.
type TrainerConfig struct {
	NEstimators  int     `yaml:"n_estimators"`
	MaxDepth     int     `yaml:"max_depth"`
	LearningRate float64 `yaml:"learning_rate"`
	RegLambda    float64 `yaml:"reg_lambda"`
	Seed         int     `yaml:"seed"`
	TestSize     float64 `yaml:"test_size"`
}

// DefaultTrainerConfig returns 100 trees of depth 6, learning rate 0.1,
// seed 42 and a 20% test partition.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		NEstimators:  100,
		MaxDepth:     6,
		LearningRate: 0.1,
		RegLambda:    1.0,
		Seed:         42,
		TestSize:     0.2,
	}
}

// Trainer fits a model on a feature table, evaluates it and publishes it as
// the current artifact.
type Trainer struct {
	cfg    TrainerConfig
	store  ArtifactStore
	now    func() time.Time
	logger log.Logger
}

// TrainerOption configures a Trainer.
type TrainerOption func(*Trainer)

// WithClock replaces time.Now, which stamps the model version.
func WithClock(now func() time.Time) TrainerOption {
	return func(t *Trainer) { t.now = now }
}

// WithTrainerLogger sets the logger.
func WithTrainerLogger(logger log.Logger) TrainerOption {
	return func(t *Trainer) { t.logger = logger }
}

// NewTrainer creates a Trainer that saves through store.
func NewTrainer(cfg TrainerConfig, store ArtifactStore, opts ...TrainerOption) *Trainer {
	t := &Trainer{
		cfg:    cfg,
		store:  store,
		now:    time.Now,
		logger: log.GetLoggerWithName("forecast.trainer"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func stageError(err error, stage string) error {
	return errors.Wrapf(err, "training failed at %s", stage)
}

// Train runs split, fit, evaluate and save. Nothing is saved unless every
// stage succeeds.
func (t *Trainer) Train(ctx context.Context, table *features.Table) (*ModelInfo, error) {
	start := time.Now()
	columns := features.ModelColumns()

	X, err := table.Matrix(columns)
	if err != nil {
		return nil, stageError(err, "split")
	}
	y, err := table.Targets()
	if err != nil {
		return nil, stageError(err, "split")
	}
	split, err := model_selection.TrainTestSplit(X, y, t.cfg.TestSize, t.cfg.Seed)
	if err != nil {
		return nil, stageError(err, "split")
	}

	logger := t.logger.With(log.PhaseKey, log.PhaseTraining)
	logger.Info("Training demand model",
		log.SamplesKey, table.Len(),
		log.FeaturesKey, len(columns),
		"train_samples", len(split.TrainIndices),
		"test_samples", len(split.TestIndices),
		log.RandomSeedKey, t.cfg.Seed)

	reg := gbdt.NewRegressor().
		WithNEstimators(t.cfg.NEstimators).
		WithMaxDepth(t.cfg.MaxDepth).
		WithLearningRate(t.cfg.LearningRate).
		WithRegLambda(t.cfg.RegLambda).
		WithRandomState(t.cfg.Seed).
		WithFeatureNames(columns)
	logger.Debug("Model hyperparameters", "params", reg.GetParams())
	if err := reg.Fit(split.XTrain, split.YTrain); err != nil {
		return nil, stageError(err, "fit")
	}
	_, nSamples := reg.Dimensions()

	preds, err := reg.Predict(split.XTest)
	if err != nil {
		return nil, stageError(err, "evaluate")
	}
	report, err := metrics.Evaluate(split.YTest, preds)
	if err != nil {
		return nil, stageError(err, "evaluate")
	}

	version, trainedAt, err := t.nextVersion(ctx)
	if err != nil {
		return nil, stageError(err, "save")
	}

	a := &Artifact{
		ModelVersion:   version,
		Model:          reg.Model,
		FeatureColumns: columns,
		TrainingDate:   trainedAt,
		Metrics: ModelMetrics{
			MAE:          report.MAE,
			MAPE:         report.MAPE,
			RMSE:         report.RMSE,
			R2Score:      report.R2,
			TrainingDate: trainedAt,
			ModelVersion: version,
		},
		FeatureImportance: rankImportance(columns, reg.FeatureImportance()),
		NSamples:          nSamples,
	}
	if err := t.store.Save(ctx, a); err != nil {
		return nil, stageError(err, "save")
	}

	logger.Info("Model trained",
		log.ModelVersionKey, version,
		log.MAEKey, report.MAE,
		log.RMSEKey, report.RMSE,
		log.MAPEKey, report.MAPE,
		log.R2ScoreKey, report.R2,
		log.DurationMsKey, time.Since(start).Milliseconds())
	return a.Info(), nil
}

// nextVersion stamps vYYYYMMDD_HHMMSS from the clock, moved one second past
// the stored version when the clock has not advanced beyond it.
func (t *Trainer) nextVersion(ctx context.Context) (string, time.Time, error) {
	now := t.now().UTC().Truncate(time.Second)

	prev, err := t.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNoArtifact):
		return "v" + now.Format(versionLayout), now, nil
	case err != nil:
		// an unreadable artifact is about to be replaced anyway
		t.logger.Warn("Previous model artifact is unreadable", log.ErrAttrKey, err)
		return "v" + now.Format(versionLayout), now, nil
	}

	if prevAt, perr := time.Parse("v"+versionLayout, prev.ModelVersion); perr == nil && !now.After(prevAt) {
		now = prevAt.Add(time.Second)
	}
	return "v" + now.Format(versionLayout), now, nil
}

func rankImportance(columns []string, scores []float64) []FeatureImportance {
	out := make([]FeatureImportance, len(columns))
	for i, c := range columns {
		out[i] = FeatureImportance{FeatureName: c}
		if i < len(scores) {
			out[i].ImportanceScore = scores[i]
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ImportanceScore > out[j].ImportanceScore
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
