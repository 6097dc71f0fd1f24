package forecast

import (
	"context"
	"math"
	"slices"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/replenish/features"
	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/pkg/log"
	"github.com/YuminosukeSato/replenish/sklearn/gbdt"
)

// Prediction is the served result for one feature row.
type Prediction struct {
	Quantity     int
	Confidence   float64
	ModelVersion string
	// Raw is the unrounded model output.
	Raw float64
}

// Predictor serves predictions from the current artifact. The artifact is
// loaded on first use and cached until Invalidate.
type Predictor struct {
	store  ArtifactStore
	logger log.Logger

	mu       sync.RWMutex
	artifact *Artifact
	reg      *gbdt.Regressor
}

// NewPredictor creates a Predictor reading from store.
func NewPredictor(store ArtifactStore, logger log.Logger) *Predictor {
	if logger == nil {
		logger = log.GetLoggerWithName("forecast.predictor")
	}
	return &Predictor{store: store, logger: logger}
}

func (p *Predictor) current(ctx context.Context) (*Artifact, *gbdt.Regressor, error) {
	p.mu.RLock()
	a, reg := p.artifact, p.reg
	p.mu.RUnlock()
	if a != nil {
		return a, reg, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.artifact != nil {
		return p.artifact, p.reg, nil
	}

	a, err := p.store.Load(ctx)
	if errors.Is(err, ErrNoArtifact) {
		return nil, nil, errors.NewModelUnavailableError("forecast.Predictor.load", "no model artifact has been saved")
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load model artifact")
	}
	if a.Model == nil {
		return nil, nil, errors.NewModelUnavailableError("forecast.Predictor.load", "artifact "+a.ModelVersion+" has no model")
	}
	if want := features.ModelColumns(); !slices.Equal(a.FeatureColumns, want) {
		return nil, nil, errors.NewColumnMismatchError("forecast.Predictor.load", want, a.FeatureColumns)
	}

	p.artifact = a
	p.reg = gbdt.NewRegressorFromModel(a.Model)
	p.logger.Info("Loaded model artifact",
		log.OperationKey, log.OperationLoad,
		log.ModelVersionKey, a.ModelVersion,
		log.SamplesKey, a.NSamples)
	return p.artifact, p.reg, nil
}

// Predict returns the non-negative integer quantity and confidence for row.
func (p *Predictor) Predict(ctx context.Context, row features.Row) (Prediction, error) {
	a, reg, err := p.current(ctx)
	if err != nil {
		return Prediction{}, err
	}

	x, err := row.Vector(a.FeatureColumns)
	if err != nil {
		return Prediction{}, err
	}
	out, err := reg.Predict(mat.NewDense(1, len(x), x))
	if err != nil {
		return Prediction{}, errors.Wrap(err, "model prediction failed")
	}
	raw := out.AtVec(0)
	if err := errors.CheckScalar("forecast.Predictor.Predict", raw); err != nil {
		return Prediction{}, err
	}

	pred := Prediction{
		Quantity:     int(math.Max(0, math.Round(raw))),
		Confidence:   Confidence(row),
		ModelVersion: a.ModelVersion,
		Raw:          raw,
	}
	p.logger.Debug("Predicted demand",
		log.OperationKey, log.OperationPredict,
		log.StoreIDKey, row.StoreID,
		log.ProductIDKey, row.ProductID,
		log.PredictedQuantityKey, pred.Quantity,
		log.ConfidenceKey, pred.Confidence)
	return pred, nil
}

// Info returns the current model description.
func (p *Predictor) Info(ctx context.Context) (*ModelInfo, error) {
	a, _, err := p.current(ctx)
	if err != nil {
		return nil, err
	}
	return a.Info(), nil
}

// Version returns the cached model version, or "" when nothing is loaded.
func (p *Predictor) Version() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.artifact == nil {
		return ""
	}
	return p.artifact.ModelVersion
}

// Loaded reports whether an artifact is cached.
func (p *Predictor) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.artifact != nil
}

// Invalidate drops the cached artifact; the next call reloads it.
func (p *Predictor) Invalidate() {
	p.mu.Lock()
	p.artifact = nil
	p.reg = nil
	p.mu.Unlock()
}

type calendarRange struct {
	column string
	lo, hi float64
}

var confidenceRanges = []calendarRange{
	{features.ColMonth, 1, 12},
	{features.ColYear, 2020, 2030},
	{features.ColDayOfWeek, 0, 6},
	{features.ColQuarter, 1, 4},
}

// Confidence is a sanity score for the row's calendar fields, not a
// statistical interval. Each in-range field multiplies by 0.95, each
// out-of-range field by 0.5, and the result is clamped to [0.1, 1].
func Confidence(row features.Row) float64 {
	c := 1.0
	for _, r := range confidenceRanges {
		v, _ := row.Value(r.column)
		if v >= r.lo && v <= r.hi {
			c *= 0.95
		} else {
			c *= 0.5
		}
	}
	return errors.ClipValue(c, 0.1, 1.0)
}
