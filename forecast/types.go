// Package forecast trains the demand model, serves single-row predictions
// from the current model artifact and records prediction outcomes.
//
// The package depends only on the contracts declared in contracts.go. Sales
// history, prediction persistence and artifact storage are injected.
package forecast

import (
	"encoding/json"
	"time"

	"github.com/YuminosukeSato/replenish/features"
	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/sklearn/gbdt"
)

// Artifact is a trained model together with the metadata needed to serve it.
// It is gob-encoded by artifact stores.
type Artifact struct {
	ModelVersion      string
	Model             *gbdt.Model
	FeatureColumns    []string
	TrainingDate      time.Time
	Metrics           ModelMetrics
	FeatureImportance []FeatureImportance
	NSamples          int
}

// Info summarises the artifact.
func (a *Artifact) Info() *ModelInfo {
	return &ModelInfo{
		ModelVersion:      a.ModelVersion,
		TrainingDate:      a.TrainingDate,
		FeatureCount:      len(a.FeatureColumns),
		TrainingSamples:   a.NSamples,
		Metrics:           a.Metrics,
		FeatureImportance: a.FeatureImportance,
	}
}

// ModelMetrics are computed on the held-out test partition. MAPE is a
// percentage.
type ModelMetrics struct {
	MAE          float64   `json:"mae"`
	MAPE         float64   `json:"mape"`
	RMSE         float64   `json:"rmse"`
	R2Score      float64   `json:"r2_score"`
	TrainingDate time.Time `json:"training_date"`
	ModelVersion string    `json:"model_version"`
}

// FeatureImportance is one ranked feature. Rank starts at 1.
type FeatureImportance struct {
	FeatureName     string  `json:"feature_name"`
	ImportanceScore float64 `json:"importance_score"`
	Rank            int     `json:"rank"`
}

// ModelInfo describes the current model.
type ModelInfo struct {
	ModelVersion      string              `json:"model_version"`
	TrainingDate      time.Time           `json:"training_date"`
	FeatureCount      int                 `json:"features_count"`
	TrainingSamples   int                 `json:"training_samples"`
	Metrics           ModelMetrics        `json:"metrics"`
	FeatureImportance []FeatureImportance `json:"feature_importance"`
}

// DriftStatus summarises prediction outcomes seen by the drift detector
// since the last training or detected drift.
type DriftStatus struct {
	Outcomes  int     `json:"outcomes"`
	Errors    int     `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
	Warning   bool    `json:"warning"`
}

// PredictionRecord is a persisted forecast. ActualQuantity and Accuracy are
// filled in once the real demand is known.
type PredictionRecord struct {
	ID                string     `json:"id"`
	StoreID           string     `json:"store_id"`
	ProductID         string     `json:"product_id"`
	ForecastMonth     time.Time  `json:"forecast_month"`
	PredictedQuantity int        `json:"predicted_quantity"`
	ConfidenceScore   float64    `json:"confidence_score"`
	ModelVersion      string     `json:"model_version"`
	FeaturesUsed      []string   `json:"features_used"`
	ActualQuantity    *int       `json:"actual_quantity,omitempty"`
	Accuracy          *float64   `json:"accuracy,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// Filter narrows prediction listings. Empty fields match everything.
type Filter struct {
	StoreID   string
	ProductID string
}

// Update is a partial prediction update. Nil fields are left unchanged.
type Update struct {
	ActualQuantity *int     `json:"actual_quantity"`
	Accuracy       *float64 `json:"accuracy"`
}

// AccuracyStats aggregates recorded outcomes.
type AccuracyStats struct {
	TotalPredictions      int     `json:"total_predictions"`
	PredictionsWithActual int     `json:"predictions_with_actual"`
	AverageAccuracy       float64 `json:"average_accuracy"`
	MinAccuracy           float64 `json:"min_accuracy"`
	MaxAccuracy           float64 `json:"max_accuracy"`
	AvgMAPE               float64 `json:"avg_mape"`
}

// ForecastRequest asks for the demand of one store/product in a month.
// HistoricalMonths of zero uses the service default.
type ForecastRequest struct {
	StoreID          string    `json:"store_id" binding:"required"`
	ProductID        string    `json:"product_id" binding:"required"`
	ForecastMonth    time.Time `json:"forecast_month" binding:"required"`
	HistoricalMonths int       `json:"historical_months" binding:"omitempty,min=1,max=60"`
}

// UnmarshalJSON reads forecast_month as a Date.
func (r *ForecastRequest) UnmarshalJSON(data []byte) error {
	type Alias ForecastRequest
	aux := struct {
		*Alias
		ForecastMonth Date `json:"forecast_month"`
	}{Alias: (*Alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.ForecastMonth = aux.ForecastMonth.Time()
	return nil
}

// Date is a JSON time that also accepts timestamps without a zone and
// plain dates such as "2025-02-01". Values without a zone are UTC.
type Date time.Time

// UnmarshalJSON implements json.Unmarshaler. null leaves d unchanged.
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "date must be a string")
	}
	t, err := features.ParseTime(s)
	if err != nil {
		return err
	}
	*d = Date(t)
	return nil
}

// MarshalJSON writes d in RFC 3339.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(d))
}

// Time returns d as a time.Time.
func (d Date) Time() time.Time {
	return time.Time(d)
}

// ForecastResponse is returned for a persisted forecast.
type ForecastResponse struct {
	PredictionID      string    `json:"prediction_id"`
	StoreID           string    `json:"store_id"`
	ProductID         string    `json:"product_id"`
	ForecastMonth     time.Time `json:"forecast_month"`
	PredictedQuantity int       `json:"predicted_quantity"`
	ConfidenceScore   float64   `json:"confidence_score"`
	ModelVersion      string    `json:"model_version"`
	CreatedAt         time.Time `json:"created_at"`
	FeaturesUsed      []string  `json:"features_used"`
}
