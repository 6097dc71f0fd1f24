package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/replenish/features"
	"github.com/YuminosukeSato/replenish/forecast"
	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/pkg/log"
	"github.com/YuminosukeSato/replenish/predictions"
	"github.com/YuminosukeSato/replenish/sklearn/gbdt"
)

var fixedNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSales struct {
	mu  sync.Mutex
	obs []features.Observation
}

func (s *stubSales) Fetch(_ context.Context, storeID, productID string, start, end time.Time) ([]features.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []features.Observation
	for _, o := range s.obs {
		if o.StoreID == storeID && o.ProductID == productID && !o.Date.Before(start) && !o.Date.After(end) {
			out = append(out, o)
		}
	}
	return out, nil
}

type fixture struct {
	server    *Server
	artifacts forecast.ArtifactStore
	repo      *predictions.Repository
	logger    *log.TestLogger
	pingErr   error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := log.NewTestLogger(log.LevelDebug)

	db, err := predictions.Open(predictions.DriverSQLite, filepath.Join(t.TempDir(), "predictions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = predictions.Close(db) })

	f := &fixture{
		artifacts: forecast.NewMemoryStore(),
		repo:      predictions.NewRepository(db, time.Now, logger),
		logger:    logger,
	}

	sales := &stubSales{}
	for i := 0; i < 3; i++ {
		d := time.Date(2024, time.October+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		sales.obs = append(sales.obs, features.Observation{
			StoreID: "S1", ProductID: "P1", Date: d, Quantity: 10 + i, Revenue: 1200, Discount: 0.1,
		})
	}

	svc := forecast.NewService(forecast.DefaultServiceConfig(), forecast.Deps{
		Sales:       sales,
		Predictions: f.repo,
		Builder:     features.NewBuilder(features.DefaultConfig(), logger),
		Predictor:   forecast.NewPredictor(f.artifacts, logger),
		Clock:       func() time.Time { return fixedNow },
		Logger:      logger,
	})
	ping := func(ctx context.Context) error {
		if f.pingErr != nil {
			return f.pingErr
		}
		return predictions.Ping(ctx, db)
	}
	f.server = New(Config{}, svc, f.repo, ping, logger)
	return f
}

func (f *fixture) saveModel(t *testing.T, value float64) {
	t.Helper()
	cols := features.ModelColumns()
	require.NoError(t, f.artifacts.Save(context.Background(), &forecast.Artifact{
		ModelVersion:   "v20250101_000000",
		Model:          &gbdt.Model{Objective: "reg:squarederror", NumFeatures: len(cols), InitScore: value},
		FeatureColumns: cols,
		TrainingDate:   fixedNow,
		NSamples:       120,
	}))
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func forecastBody(store string) map[string]any {
	return map[string]any{
		"store_id":       store,
		"product_id":     "P1",
		"forecast_month": "2025-02-01T00:00:00Z",
	}
}

func (f *fixture) forecast(t *testing.T) string {
	t.Helper()
	w, body := f.do(t, http.MethodPost, "/predict-forecast", forecastBody("S1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return body["prediction_id"].(string)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, Version, body["version"])
	assert.Equal(t, true, body["database_connected"])
	assert.Equal(t, false, body["model_loaded"])

	f.saveModel(t, 7.4)
	f.forecast(t)
	_, body = f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, true, body["model_loaded"])
	assert.Equal(t, "v20250101_000000", body["model_version"])

	f.pingErr = errors.New("connection refused")
	_, body = f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, false, body["database_connected"])
}

func TestPredictForecast(t *testing.T) {
	f := newFixture(t)
	f.saveModel(t, 7.4)

	w, body := f.do(t, http.MethodPost, "/predict-forecast", forecastBody("S1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(7), body["predicted_quantity"])
	assert.Equal(t, "v20250101_000000", body["model_version"])
	assert.Len(t, body["features_used"], len(features.Columns()))

	id := body["prediction_id"].(string)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	w, rec := f.do(t, http.MethodGet, "/predictions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "S1", rec["store_id"])
	assert.Equal(t, float64(7), rec["predicted_quantity"])
	assert.NotContains(t, rec, "actual_quantity")
}

func TestPredictForecast_Errors(t *testing.T) {
	tests := []struct {
		name      string
		withModel bool
		body      any
		status    int
		message   string
	}{
		{"malformed json", true, "{", http.StatusBadRequest, ""},
		{"missing product", true, map[string]any{"store_id": "S1", "forecast_month": "2025-02-01T00:00:00Z"}, http.StatusBadRequest, ""},
		{"history window too long", true, map[string]any{
			"store_id": "S1", "product_id": "P1", "forecast_month": "2025-02-01T00:00:00Z", "historical_months": 61,
		}, http.StatusBadRequest, ""},
		{"beyond horizon", true, map[string]any{
			"store_id": "S1", "product_id": "P1", "forecast_month": "2026-01-01T00:00:00Z",
		}, http.StatusBadRequest, ""},
		{"no sales", true, forecastBody("S9"), http.StatusNotFound, "No sales data found for the specified store and product"},
		{"no model", false, forecastBody("S1"), http.StatusServiceUnavailable, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.withModel {
				f.saveModel(t, 7.4)
			}
			w, body := f.do(t, http.MethodPost, "/predict-forecast", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			require.Contains(t, body, "error")
			if tt.message != "" {
				assert.Equal(t, tt.message, body["error"])
			}
		})
	}
}

func TestRecordActual(t *testing.T) {
	f := newFixture(t)
	f.saveModel(t, 7.4)
	id := f.forecast(t)

	w, rec := f.do(t, http.MethodPost, "/predictions/"+id+"/actual", map[string]any{"actual_quantity": 14})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(14), rec["actual_quantity"])
	assert.InDelta(t, 0.5, rec["accuracy"], 1e-9)
	fresh := f.forecast(t)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"unknown id", "/predictions/" + uuid.NewString() + "/actual", map[string]any{"actual_quantity": 3}, http.StatusNotFound},
		{"malformed id", "/predictions/not-an-id/actual", map[string]any{"actual_quantity": 3}, http.StatusNotFound},
		{"missing quantity", "/predictions/" + id + "/actual", map[string]any{}, http.StatusBadRequest},
		{"negative quantity", "/predictions/" + id + "/actual", map[string]any{"actual_quantity": -1}, http.StatusBadRequest},
		{"zero actual", "/predictions/" + fresh + "/actual", map[string]any{"actual_quantity": 0}, http.StatusUnprocessableEntity},
		{"already recorded", "/predictions/" + id + "/actual", map[string]any{"actual_quantity": 14}, http.StatusConflict},
		{"already recorded through update", "/predictions/" + id, map[string]any{"actual_quantity": 20}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if !strings.HasSuffix(tt.path, "/actual") {
				method = http.MethodPut
			}
			w, body := f.do(t, method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Contains(t, body, "error")
		})
	}

	w, kept := f.do(t, http.MethodGet, "/predictions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(14), kept["actual_quantity"], "first actual is kept")
}

func TestPredictionCRUD(t *testing.T) {
	f := newFixture(t)

	w, created := f.do(t, http.MethodPost, "/predictions", map[string]any{
		"store_id":           "S2",
		"product_id":         "P7",
		"forecast_month":     "2025-03-01T00:00:00Z",
		"predicted_quantity": 20,
		"confidence_score":   0.8,
		"model_version":      "manual",
		"features_used":      []string{"month"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := created["id"].(string)
	assert.Equal(t, "P7", created["product_id"])

	w, _ = f.do(t, http.MethodPost, "/predictions", map[string]any{"store_id": "S2", "confidence_score": 1.5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, updated := f.do(t, http.MethodPut, "/predictions/"+id, map[string]any{"actual_quantity": 10, "accuracy": 0.25})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(10), updated["actual_quantity"])
	assert.InDelta(t, 0.25, updated["accuracy"], 1e-9)

	w, _ = f.do(t, http.MethodPut, "/predictions/"+id, map[string]any{"actual_quantity": 25})
	assert.Equal(t, http.StatusConflict, w.Code, "an actual is recorded once")

	w, other := f.do(t, http.MethodPost, "/predictions", map[string]any{
		"store_id":           "S2",
		"product_id":         "P8",
		"forecast_month":     "2025-03-01",
		"predicted_quantity": 20,
		"model_version":      "manual",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w, updated = f.do(t, http.MethodPut, "/predictions/"+other["id"].(string), map[string]any{"actual_quantity": 25})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.InDelta(t, 0.8, updated["accuracy"], 1e-9)

	w, _ = f.do(t, http.MethodPut, "/predictions/"+uuid.NewString(), map[string]any{"accuracy": 0.5})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := f.do(t, http.MethodDelete, "/predictions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Prediction deleted successfully", body["message"])

	w, body = f.do(t, http.MethodGet, "/predictions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Prediction not found", body["error"])

	w, _ = f.do(t, http.MethodDelete, "/predictions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListPredictions(t *testing.T) {
	f := newFixture(t)
	for _, store := range []string{"S1", "S1", "S2"} {
		_, err := f.repo.Create(context.Background(), &forecast.PredictionRecord{
			StoreID: store, ProductID: "P1", ForecastMonth: fixedNow, PredictedQuantity: 5, ModelVersion: "v1",
		})
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"all", "/predictions", http.StatusOK, 3},
		{"by store", "/predictions?store_id=S1", http.StatusOK, 2},
		{"by store and product", "/predictions?store_id=S2&product_id=P1", http.StatusOK, 1},
		{"no match", "/predictions?product_id=P9", http.StatusOK, 0},
		{"limited", "/predictions?limit=1", http.StatusOK, 1},
		{"recent", "/predictions/recent?limit=2", http.StatusOK, 2},
		{"limit too large", "/predictions?limit=1001", http.StatusBadRequest, 0},
		{"limit not a number", "/predictions/recent?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.query, nil)
			w := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(w, req)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			var recs []forecast.PredictionRecord
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
			assert.Len(t, recs, tt.count)
		})
	}
}

func TestAccuracyStatsAndModelInfo(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(t, http.MethodGet, "/model/info", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	f.saveModel(t, 7.4)
	id := f.forecast(t)
	w, _ = f.do(t, http.MethodPost, "/predictions/"+id+"/actual", map[string]any{"actual_quantity": 7})
	require.Equal(t, http.StatusOK, w.Code)

	w, stats := f.do(t, http.MethodGet, "/stats/accuracy?store_id=S1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), stats["total_predictions"])
	assert.Equal(t, float64(1), stats["predictions_with_actual"])
	assert.InDelta(t, 1.0, stats["average_accuracy"], 1e-9)

	w, info := f.do(t, http.MethodGet, "/model/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "v20250101_000000", info["model_version"])
	assert.Equal(t, float64(len(features.ModelColumns())), info["features_count"])
	assert.Equal(t, float64(120), info["training_samples"])
	drift, ok := info["drift"].(map[string]any)
	require.True(t, ok, "model info reports drift status")
	assert.Equal(t, float64(1), drift["outcomes"])
	assert.Equal(t, float64(0), drift["errors"])
	assert.Equal(t, false, drift["warning"])
}

func TestForecastMonthFormats(t *testing.T) {
	tests := []struct {
		name  string
		month any
		code  int
	}{
		{"rfc3339", "2025-02-01T00:00:00Z", http.StatusOK},
		{"with offset", "2025-02-01T09:00:00+09:00", http.StatusOK},
		{"no zone", "2025-02-01T00:00:00", http.StatusOK},
		{"no zone with fraction", "2025-02-01T00:00:00.123456", http.StatusOK},
		{"space separated", "2025-02-01 00:00:00", http.StatusOK},
		{"date only", "2025-02-01", http.StatusOK},
		{"not a date", "next month", http.StatusBadRequest},
		{"number", 20250201, http.StatusBadRequest},
		{"null", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.saveModel(t, 7.4)

			w, body := f.do(t, http.MethodPost, "/predict-forecast", map[string]any{
				"store_id": "S1", "product_id": "P1", "forecast_month": tt.month,
			})
			require.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.code == http.StatusOK {
				assert.True(t, strings.HasPrefix(body["forecast_month"].(string), "2025-02-01T00:00:00"), body["forecast_month"])
			}

			w, body = f.do(t, http.MethodPost, "/predictions", map[string]any{
				"store_id": "S2", "product_id": "P7", "forecast_month": tt.month,
				"predicted_quantity": 5, "model_version": "manual",
			})
			if tt.code == http.StatusOK {
				require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
				assert.True(t, strings.HasPrefix(body["forecast_month"].(string), "2025-02-01T00:00:00"), body["forecast_month"])
			} else {
				assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			}
		})
	}
}

func TestRequestLogging(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/predictions/"+uuid.NewString(), nil)

	assert.True(t, f.logger.ContainsMessage("HTTP request"))
	assert.True(t, f.logger.ContainsField(log.HTTPPathKey, "/predictions/:id"))
	assert.True(t, f.logger.ContainsField(log.HTTPStatusKey, float64(http.StatusNotFound)))
	assert.NotEmpty(t, f.logger.EntriesAt(log.LevelWarn))
}

func TestStatusFor(t *testing.T) {
	scope := errors.For("S1", "P1")
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"no sales", errors.NewInputError("forecast.fetch", scope, errors.ErrNoSalesData), http.StatusNotFound},
		{"not found", errors.Wrapf(errors.ErrNotFound, "prediction %s", "x"), http.StatusNotFound},
		{"input", errors.NewInputError("forecast.request", scope, errors.ErrEmptyData), http.StatusBadRequest},
		{"validation", errors.NewValidationError("limit", "too large", 2000), http.StatusBadRequest},
		{"actual recorded", errors.NewInputError("forecast.actual", scope, errors.ErrActualRecorded), http.StatusConflict},
		{"column mismatch", errors.NewColumnMismatchError("predict", []string{"a"}, []string{"b"}), http.StatusServiceUnavailable},
		{"unavailable", errors.NewModelUnavailableError("predict", "no artifact"), http.StatusServiceUnavailable},
		{"computation", errors.NewComputationError("accuracy", "actual must be positive", 0), http.StatusUnprocessableEntity},
		{"storage", errors.NewStorageError("predictions.Create", "sqlite", errors.New("disk full")), http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, statusFor(tt.err))
		})
	}
}
