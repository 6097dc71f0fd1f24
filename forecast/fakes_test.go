package forecast

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/YuminosukeSato/replenish/features"
	"github.com/YuminosukeSato/replenish/metrics"
	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/sklearn/gbdt"
)

var fixedNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// monthlySeries returns one observation per month starting at start.
func monthlySeries(store, product string, start time.Time, months int, base int) []features.Observation {
	out := make([]features.Observation, months)
	for i := range out {
		d := start.AddDate(0, i, 0)
		q := base + 3*int(d.Month()) + i%4
		out[i] = features.Observation{
			StoreID:    store,
			ProductID:  product,
			Date:       d,
			Quantity:   q,
			Revenue:    float64(q) * 120,
			Discount:   0.05 * float64(i%3),
			IsFestival: d.Month() == time.December,
		}
	}
	return out
}

type fakeSales struct {
	mu       sync.Mutex
	data     map[string][]features.Observation
	stores   []string
	products map[string][]string
	calls    int
	fetched  []string
	err      error
}

func newFakeSales() *fakeSales {
	return &fakeSales{data: map[string][]features.Observation{}, products: map[string][]string{}}
}

func (f *fakeSales) add(obs ...features.Observation) {
	for _, o := range obs {
		key := o.StoreID + "/" + o.ProductID
		if _, ok := f.data[key]; !ok {
			if _, seen := f.products[o.StoreID]; !seen {
				f.stores = append(f.stores, o.StoreID)
			}
			f.products[o.StoreID] = append(f.products[o.StoreID], o.ProductID)
		}
		f.data[key] = append(f.data[key], o)
	}
}

func (f *fakeSales) Fetch(_ context.Context, storeID, productID string, start, end time.Time) ([]features.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.fetched = append(f.fetched, storeID+"/"+productID)
	if f.err != nil {
		return nil, f.err
	}
	var out []features.Observation
	for _, o := range f.data[storeID+"/"+productID] {
		if !o.Date.Before(start) && !o.Date.After(end) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeSales) Stores(context.Context) ([]string, error) {
	return f.stores, nil
}

func (f *fakeSales) Products(_ context.Context, storeID string) ([]string, error) {
	return f.products[storeID], nil
}

type fakePredictions struct {
	mu      sync.Mutex
	seq     int
	records map[string]*PredictionRecord
}

func newFakePredictions() *fakePredictions {
	return &fakePredictions{records: map[string]*PredictionRecord{}}
}

func (f *fakePredictions) Create(_ context.Context, rec *PredictionRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	cp := *rec
	cp.ID = fmt.Sprintf("pred-%d", f.seq)
	f.records[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakePredictions) Get(_ context.Context, id string) (*PredictionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, errors.WithStack(errors.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (f *fakePredictions) List(_ context.Context, filter Filter, limit int) ([]PredictionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PredictionRecord
	for _, r := range f.records {
		if (filter.StoreID == "" || r.StoreID == filter.StoreID) && (filter.ProductID == "" || r.ProductID == filter.ProductID) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePredictions) Recent(ctx context.Context, limit int) ([]PredictionRecord, error) {
	return f.List(ctx, Filter{}, limit)
}

func (f *fakePredictions) Update(_ context.Context, id string, u Update) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return false, nil
	}
	if u.ActualQuantity != nil {
		rec.ActualQuantity = u.ActualQuantity
	}
	if u.Accuracy != nil {
		rec.Accuracy = u.Accuracy
	}
	now := fixedNow
	rec.UpdatedAt = &now
	return true, nil
}

func (f *fakePredictions) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[id]
	delete(f.records, id)
	return ok, nil
}

func (f *fakePredictions) AccuracyStats(_ context.Context, storeID string) (AccuracyStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	var outcomes []metrics.Outcome
	for _, r := range f.records {
		if storeID != "" && r.StoreID != storeID {
			continue
		}
		total++
		if r.ActualQuantity != nil && r.Accuracy != nil {
			outcomes = append(outcomes, metrics.Outcome{
				Predicted: float64(r.PredictedQuantity),
				Actual:    float64(*r.ActualQuantity),
				Accuracy:  *r.Accuracy,
			})
		}
	}
	return AccuracyStats(metrics.SummarizeAccuracy(total, outcomes)), nil
}

// constantArtifact returns an artifact whose model always predicts value.
func constantArtifact(version string, value float64) *Artifact {
	cols := features.ModelColumns()
	return &Artifact{
		ModelVersion:   version,
		Model:          &gbdt.Model{Objective: "reg:squarederror", NumFeatures: len(cols), InitScore: value},
		FeatureColumns: cols,
		TrainingDate:   fixedNow,
	}
}
