// Package gbdt implements gradient-boosted regression trees in the style of
// XGBoost's exact greedy algorithm: depth-wise growth, second-order gain with
// L2 leaf regularisation, learned default directions for missing values and
// gain-based feature importance.
//
// Basic usage:
//
//	reg := gbdt.NewRegressor().
//	    WithNEstimators(100).
//	    WithMaxDepth(6).
//	    WithLearningRate(0.1).
//	    WithRandomState(42)
//	if err := reg.Fit(XTrain, yTrain); err != nil {
//	    return err
//	}
//	preds, err := reg.Predict(XTest)
package gbdt

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/replenish/core/model"
	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/pkg/log"
)

// Regressor is a boosted tree regressor with a scikit-learn style API.
type Regressor struct {
	state *model.StateManager

	// Model is the trained ensemble, nil before Fit.
	Model *Model

	NEstimators     int
	MaxDepth        int
	LearningRate    float64
	RegLambda       float64
	Gamma           float64
	MinChildWeight  float64
	Subsample       float64
	ColsampleByTree float64
	RandomState     int
	Objective       string
	FeatureNames    []string
}

// NewRegressor creates a regressor with DefaultParams.
func NewRegressor() *Regressor {
	p := DefaultParams()
	return &Regressor{
		state:           model.NewStateManager(),
		NEstimators:     p.NumIterations,
		MaxDepth:        p.MaxDepth,
		LearningRate:    p.LearningRate,
		RegLambda:       p.Lambda,
		Gamma:           p.Gamma,
		MinChildWeight:  p.MinChildWeight,
		Subsample:       p.Subsample,
		ColsampleByTree: p.ColsampleByTree,
		RandomState:     p.Seed,
		Objective:       p.Objective,
	}
}

// NewRegressorFromModel wraps an already trained model, e.g. one loaded
// from an artifact.
func NewRegressorFromModel(m *Model) *Regressor {
	r := NewRegressor()
	r.Model = m
	r.NEstimators = m.NumIteration
	r.MaxDepth = m.MaxDepth
	r.LearningRate = m.LearningRate
	r.RegLambda = m.Lambda
	r.RandomState = m.Seed
	r.FeatureNames = m.FeatureNames
	r.state.SetFitted(m.NumFeatures, 0)
	return r
}

// WithNEstimators sets the number of trees
func (r *Regressor) WithNEstimators(n int) *Regressor {
	r.NEstimators = n
	return r
}

// WithMaxDepth sets the maximum depth
func (r *Regressor) WithMaxDepth(d int) *Regressor {
	r.MaxDepth = d
	return r
}

// WithLearningRate sets the learning rate
func (r *Regressor) WithLearningRate(lr float64) *Regressor {
	r.LearningRate = lr
	return r
}

// WithRandomState sets the random seed
func (r *Regressor) WithRandomState(seed int) *Regressor {
	r.RandomState = seed
	return r
}

// WithRegLambda sets the L2 regularisation on leaf weights
func (r *Regressor) WithRegLambda(lambda float64) *Regressor {
	r.RegLambda = lambda
	return r
}

// WithSubsample sets the row sampling ratio per tree
func (r *Regressor) WithSubsample(ratio float64) *Regressor {
	r.Subsample = ratio
	return r
}

// WithColsampleByTree sets the column sampling ratio per tree
func (r *Regressor) WithColsampleByTree(ratio float64) *Regressor {
	r.ColsampleByTree = ratio
	return r
}

// WithFeatureNames records column names in the trained model
func (r *Regressor) WithFeatureNames(names []string) *Regressor {
	r.FeatureNames = append([]string(nil), names...)
	return r
}

func (r *Regressor) params() TrainingParams {
	return TrainingParams{
		NumIterations:   r.NEstimators,
		LearningRate:    r.LearningRate,
		MaxDepth:        r.MaxDepth,
		Lambda:          r.RegLambda,
		Gamma:           r.Gamma,
		MinChildWeight:  r.MinChildWeight,
		Subsample:       r.Subsample,
		ColsampleByTree: r.ColsampleByTree,
		Objective:       r.Objective,
		Seed:            r.RandomState,
	}
}

// Fit trains the regressor
func (r *Regressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "gbdt.Regressor.Fit")
	// a failed refit must not leave the previous model servable
	r.state.Reset()

	rows, cols := X.Dims()
	if r.FeatureNames != nil && len(r.FeatureNames) != cols {
		return errors.NewDimensionError("gbdt.Regressor.Fit", len(r.FeatureNames), cols, 1)
	}

	logger := log.GetLoggerWithName("gbdt.regressor")
	logger.Debug("Training Regressor",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.RandomSeedKey, r.RandomState)

	trainer := NewTrainer(r.params())
	if err := trainer.Fit(X, y); err != nil {
		return errors.Wrap(err, "training failed")
	}

	r.Model = trainer.GetModel()
	r.Model.FeatureNames = r.FeatureNames
	r.state.SetFitted(cols, rows)
	return nil
}

// Predict returns one prediction per row of X
func (r *Regressor) Predict(X mat.Matrix) (_ *mat.VecDense, err error) {
	defer errors.Recover(&err, "gbdt.Regressor.Predict")

	if err := r.state.RequireFitted("Regressor", "Predict"); err != nil {
		return nil, err
	}
	_, cols := X.Dims()
	if err := r.state.RequireFeatures("gbdt.Regressor.Predict", cols); err != nil {
		return nil, err
	}
	return r.Model.Predict(X)
}

// FeatureImportance returns average-gain importance normalised to sum to 1,
// or nil before Fit.
func (r *Regressor) FeatureImportance() []float64 {
	if !r.state.IsFitted() {
		return nil
	}
	return r.Model.FeatureImportance(ImportanceGain)
}

// IsFitted reports whether the regressor has a trained model
func (r *Regressor) IsFitted() bool {
	return r.state.IsFitted()
}

// Dimensions returns the feature and sample counts seen by the last Fit,
// or zeros when the regressor is not fitted.
func (r *Regressor) Dimensions() (nFeatures, nSamples int) {
	return r.state.GetDimensions()
}

// GetParams returns the hyperparameters
func (r *Regressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":     r.NEstimators,
		"max_depth":        r.MaxDepth,
		"learning_rate":    r.LearningRate,
		"reg_lambda":       r.RegLambda,
		"gamma":            r.Gamma,
		"min_child_weight": r.MinChildWeight,
		"subsample":        r.Subsample,
		"colsample_bytree": r.ColsampleByTree,
		"random_state":     r.RandomState,
		"objective":        r.Objective,
	}
}

var (
	_ model.Regressor          = (*Regressor)(nil)
	_ model.ImportanceProvider = (*Regressor)(nil)
)
