package gbdt

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/replenish/core/model"
	"github.com/YuminosukeSato/replenish/pkg/errors"
)

// stepData returns y = 10 when x0 >= 20, else 0; x1 is an uninformative column.
func stepData(n int) (*mat.Dense, *mat.VecDense) {
	X := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64((i*7)%11))
		if i >= n/2 {
			y.SetVec(i, 10)
		}
	}
	return X, y
}

func TestRegressorFitsStepFunction(t *testing.T) {
	X, y := stepData(40)

	reg := NewRegressor()
	require.NoError(t, reg.Fit(X, y))
	require.True(t, reg.IsFitted())

	preds, err := reg.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 40; i++ {
		assert.InDelta(t, y.AtVec(i), preds.AtVec(i), 0.5, "row %d", i)
	}

	assert.Equal(t, 100, reg.Model.NumIteration)
	assert.InDelta(t, 5.0, reg.Model.InitScore, 1e-12)
	for _, tree := range reg.Model.Trees {
		assert.LessOrEqual(t, tree.MaxDepth, 6)
	}
}

func TestRegressorDeterministic(t *testing.T) {
	X, y := stepData(30)

	a := NewRegressor().WithSubsample(0.8).WithColsampleByTree(0.5)
	b := NewRegressor().WithSubsample(0.8).WithColsampleByTree(0.5)
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))

	pa, err := a.Predict(X)
	require.NoError(t, err)
	pb, err := b.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(pa, pb))
}

func TestFeatureImportance(t *testing.T) {
	X, y := stepData(40)
	reg := NewRegressor()
	assert.Nil(t, reg.FeatureImportance())

	require.NoError(t, reg.Fit(X, y))
	imp := reg.FeatureImportance()
	require.Len(t, imp, 2)
	assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-9)
	assert.Greater(t, imp[0], imp[1])

	split := reg.Model.FeatureImportance(ImportanceSplit)
	total := reg.Model.FeatureImportance(ImportanceTotalGain)
	assert.InDelta(t, 1.0, split[0]+split[1], 1e-9)
	assert.InDelta(t, 1.0, total[0]+total[1], 1e-9)
}

func TestConstantTargetHasNoSplits(t *testing.T) {
	X, _ := stepData(10)
	y := mat.NewVecDense(10, []float64{3, 3, 3, 3, 3, 3, 3, 3, 3, 3})

	reg := NewRegressor().WithNEstimators(5)
	require.NoError(t, reg.Fit(X, y))
	for _, tree := range reg.Model.Trees {
		assert.Len(t, tree.Nodes, 1)
	}
	assert.Equal(t, []float64{0, 0}, reg.FeatureImportance())

	preds, err := reg.Predict(X)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, preds.AtVec(0), 1e-9)
}

func TestMissingValuesLearnDefaultDirection(t *testing.T) {
	n := 40
	X := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		switch {
		case i < 10:
			X.Set(i, 0, math.NaN())
			y.SetVec(i, 10)
		case i < 25:
			X.Set(i, 0, float64(i))
			y.SetVec(i, 0)
		default:
			X.Set(i, 0, float64(i))
			y.SetVec(i, 10)
		}
	}

	reg := NewRegressor()
	require.NoError(t, reg.Fit(X, y))

	got := reg.Model.PredictSingle([]float64{math.NaN()})
	assert.InDelta(t, 10.0, got, 1.0)
}

func TestRegressorErrors(t *testing.T) {
	X, y := stepData(10)

	_, err := NewRegressor().Predict(X)
	var notFitted *errors.NotFittedError
	assert.True(t, errors.As(err, &notFitted))

	reg := NewRegressor().WithNEstimators(3)
	require.NoError(t, reg.Fit(X, y))
	_, err = reg.Predict(mat.NewDense(1, 3, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	err = NewRegressor().Fit(X, mat.NewVecDense(9, nil))
	assert.True(t, errors.As(err, &dimErr))

	err = NewRegressor().WithFeatureNames([]string{"only_one"}).Fit(X, y)
	assert.True(t, errors.As(err, &dimErr))
}

func TestRegressorRefit(t *testing.T) {
	X, y := stepData(20)

	tests := []struct {
		name     string
		refitX   mat.Matrix
		refitY   mat.Matrix
		fitted   bool
		features int
		samples  int
	}{
		{"successful refit", mat.NewDense(8, 2, nil), mat.NewVecDense(8, nil), true, 2, 8},
		{"failed refit", X, mat.NewVecDense(3, nil), false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegressor().WithNEstimators(3)
			require.NoError(t, reg.Fit(X, y))
			nf, ns := reg.Dimensions()
			assert.Equal(t, 2, nf)
			assert.Equal(t, 20, ns)

			err := reg.Fit(tt.refitX, tt.refitY)
			assert.Equal(t, tt.fitted, err == nil)
			assert.Equal(t, tt.fitted, reg.IsFitted())
			nf, ns = reg.Dimensions()
			assert.Equal(t, tt.features, nf)
			assert.Equal(t, tt.samples, ns)
		})
	}
}

func TestGetParams(t *testing.T) {
	p := NewRegressor().WithNEstimators(7).WithMaxDepth(2).WithRandomState(3).GetParams()
	assert.Equal(t, 7, p["n_estimators"])
	assert.Equal(t, 2, p["max_depth"])
	assert.Equal(t, 3, p["random_state"])
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	tests := []struct {
		name   string
		mutate func(p *TrainingParams)
	}{
		{"learning rate", func(p *TrainingParams) { p.LearningRate = 2 }},
		{"depth", func(p *TrainingParams) { p.MaxDepth = -1 }},
		{"lambda", func(p *TrainingParams) { p.Lambda = -1 }},
		{"subsample", func(p *TrainingParams) { p.Subsample = 1.5 }},
		{"objective", func(p *TrainingParams) { p.Objective = "binary:logistic" }},
	}
	X, y := stepData(10)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := NewTrainer(p).Fit(X, y)
			var valErr *errors.ValidationError
			assert.True(t, errors.As(err, &valErr), "got %v", err)
		})
	}
}

func TestModelGobRoundTrip(t *testing.T) {
	X, y := stepData(20)
	reg := NewRegressor().WithNEstimators(10).WithFeatureNames([]string{"x0", "x1"})
	require.NoError(t, reg.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, model.SaveToWriter(reg.Model, &buf))

	var loaded Model
	require.NoError(t, model.LoadFromReader(&loaded, &buf))
	assert.Equal(t, []string{"x0", "x1"}, loaded.FeatureNames)

	restored := NewRegressorFromModel(&loaded)
	want, err := reg.Predict(X)
	require.NoError(t, err)
	got, err := restored.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))
}
