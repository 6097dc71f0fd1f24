package predictions

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/YuminosukeSato/replenish/forecast"
)

// Prediction is the predictions table row.
type Prediction struct {
	ID                string         `gorm:"primaryKey;size:36"`
	StoreID           string         `gorm:"index;not null"`
	ProductID         string         `gorm:"index;not null"`
	ForecastMonth     time.Time      `gorm:"not null"`
	PredictedQuantity int            `gorm:"not null"`
	ConfidenceScore   float64        `gorm:"not null"`
	ModelVersion      string         `gorm:"size:32;not null"`
	FeaturesUsed      datatypes.JSON `gorm:"type:json"`
	ActualQuantity    *int
	Accuracy          *float64
	CreatedAt         time.Time  `gorm:"index;autoCreateTime:false"`
	UpdatedAt         *time.Time `gorm:"autoUpdateTime:false"`
}

// TableName pins the table name.
func (Prediction) TableName() string {
	return "predictions"
}

func fromRecord(rec *forecast.PredictionRecord) (*Prediction, error) {
	featuresUsed, err := json.Marshal(rec.FeaturesUsed)
	if err != nil {
		return nil, err
	}
	return &Prediction{
		ID:                rec.ID,
		StoreID:           rec.StoreID,
		ProductID:         rec.ProductID,
		ForecastMonth:     rec.ForecastMonth.UTC(),
		PredictedQuantity: rec.PredictedQuantity,
		ConfidenceScore:   rec.ConfidenceScore,
		ModelVersion:      rec.ModelVersion,
		FeaturesUsed:      datatypes.JSON(featuresUsed),
		ActualQuantity:    rec.ActualQuantity,
		Accuracy:          rec.Accuracy,
		CreatedAt:         rec.CreatedAt.UTC(),
		UpdatedAt:         rec.UpdatedAt,
	}, nil
}

func (p *Prediction) toRecord() (forecast.PredictionRecord, error) {
	rec := forecast.PredictionRecord{
		ID:                p.ID,
		StoreID:           p.StoreID,
		ProductID:         p.ProductID,
		ForecastMonth:     p.ForecastMonth.UTC(),
		PredictedQuantity: p.PredictedQuantity,
		ConfidenceScore:   p.ConfidenceScore,
		ModelVersion:      p.ModelVersion,
		ActualQuantity:    p.ActualQuantity,
		Accuracy:          p.Accuracy,
		CreatedAt:         p.CreatedAt.UTC(),
	}
	if p.UpdatedAt != nil {
		u := p.UpdatedAt.UTC()
		rec.UpdatedAt = &u
	}
	if len(p.FeaturesUsed) > 0 {
		if err := json.Unmarshal(p.FeaturesUsed, &rec.FeaturesUsed); err != nil {
			return forecast.PredictionRecord{}, err
		}
	}
	return rec, nil
}
