package forecast

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/replenish/features"
	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/pkg/log"
)

func newTestPredictor(store ArtifactStore) *Predictor {
	logger, _ := log.NewTestLogger(log.LevelError)
	return NewPredictor(store, logger)
}

func calendarRow(month, year, dow, quarter int) features.Row {
	return features.Row{StoreID: "S1", ProductID: "P1", Month: month, Year: year, DayOfWeek: dow, Quarter: quarter}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name string
		row  features.Row
		want float64
	}{
		{"all in range", calendarRow(6, 2024, 2, 2), math.Pow(0.95, 4)},
		{"month 13", calendarRow(13, 2024, 2, 2), math.Pow(0.95, 3) * 0.5},
		{"year out of range", calendarRow(6, 2035, 2, 2), math.Pow(0.95, 3) * 0.5},
		{"two out of range", calendarRow(0, 2019, 2, 2), 0.95 * 0.95 * 0.25},
		{"all out of range clamps", calendarRow(13, 1999, 9, 7), 0.1},
		{"range bounds are inclusive", calendarRow(12, 2030, 6, 4), math.Pow(0.95, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(tt.row)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.GreaterOrEqual(t, got, 0.1)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestPredictor_NoArtifact(t *testing.T) {
	p := newTestPredictor(NewMemoryStore())

	_, err := p.Predict(context.Background(), calendarRow(6, 2024, 2, 2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrModelUnavailable))
	var unavailable *errors.ModelUnavailableError
	assert.True(t, errors.As(err, &unavailable))
	assert.False(t, p.Loaded())

	_, err = p.Info(context.Background())
	assert.True(t, errors.Is(err, errors.ErrModelUnavailable))
}

func TestPredictor_ColumnMismatch(t *testing.T) {
	store := NewMemoryStore()
	a := constantArtifact("v20250101_000000", 5)
	a.FeatureColumns = append([]string{features.ColStoreID}, a.FeatureColumns[:12]...)
	require.NoError(t, store.Save(context.Background(), a))

	_, err := newTestPredictor(store).Predict(context.Background(), calendarRow(6, 2024, 2, 2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrColumnMismatch))
	var inputErr *errors.InputError
	assert.True(t, errors.As(err, &inputErr))
}

func TestPredictor_Quantity(t *testing.T) {
	tests := []struct {
		name string
		raw  float64
		want int
	}{
		{"rounds half away from zero", 12.5, 13},
		{"rounds down", 7.4, 7},
		{"negative clamps to zero", -50, 0},
		{"small negative clamps to zero", -0.4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			require.NoError(t, store.Save(context.Background(), constantArtifact("v20250101_000000", tt.raw)))
			p := newTestPredictor(store)

			got, err := p.Predict(context.Background(), calendarRow(6, 2024, 2, 2))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Quantity)
			assert.GreaterOrEqual(t, got.Quantity, 0)
			assert.Equal(t, tt.raw, got.Raw)
			assert.Equal(t, "v20250101_000000", got.ModelVersion)
		})
	}
}

func TestPredictor_TrainedModelNeverNegative(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	table := trainingTable(t)
	_, err := newTestTrainer(store, fixedClock).Train(ctx, table)
	require.NoError(t, err)

	p := newTestPredictor(store)
	for _, row := range table.Rows {
		pred, err := p.Predict(ctx, row)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, pred.Quantity, 0)
		assert.GreaterOrEqual(t, pred.Confidence, 0.1)
		assert.LessOrEqual(t, pred.Confidence, 1.0)
	}

	// undefined lags take the learned default branch
	row := table.Rows[0]
	row.SalesLag3Month = math.NaN()
	_, err = p.Predict(ctx, row)
	assert.NoError(t, err)
}

func TestPredictor_CachesUntilInvalidate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, constantArtifact("v1", 10)))
	p := newTestPredictor(store)

	got, err := p.Predict(ctx, calendarRow(6, 2024, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity)
	assert.True(t, p.Loaded())
	assert.Equal(t, "v1", p.Version())

	require.NoError(t, store.Save(ctx, constantArtifact("v2", 20)))
	got, err = p.Predict(ctx, calendarRow(6, 2024, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity, "cached artifact is served until invalidated")

	p.Invalidate()
	assert.False(t, p.Loaded())
	got, err = p.Predict(ctx, calendarRow(6, 2024, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, 20, got.Quantity)
	assert.Equal(t, "v2", got.ModelVersion)
}

func TestPredictor_ConcurrentReload(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, constantArtifact("v1", 10)))
	p := newTestPredictor(store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			got, err := p.Predict(ctx, calendarRow(6, 2024, 2, 2))
			assert.NoError(t, err)
			assert.Contains(t, []int{10, 20}, got.Quantity)
		}()
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_ = store.Save(ctx, constantArtifact("v2", 20))
			}
			p.Invalidate()
		}()
	}
	wg.Wait()
}

func TestArtifactInfo(t *testing.T) {
	a := constantArtifact("v20250101_000000", 1)
	a.NSamples = 42
	a.TrainingDate = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	info := a.Info()
	assert.Equal(t, "v20250101_000000", info.ModelVersion)
	assert.Equal(t, 13, info.FeatureCount)
	assert.Equal(t, 42, info.TrainingSamples)
}
