package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/replenish/pkg/errors"
)

// Accuracy は1件の予測の精度 max(0, 1 − |predicted − actual| / actual) を返す。
// actual が0以下の場合は定義できないため ComputationError を返す（NaNは返さない）。
func Accuracy(predicted, actual float64) (float64, error) {
	if actual <= 0 {
		return 0, errors.NewComputationError("metrics.Accuracy", "actual quantity must be positive", actual)
	}
	if predicted < 0 {
		return 0, errors.NewComputationError("metrics.Accuracy", "predicted quantity must be non-negative", predicted)
	}
	acc := 1 - math.Abs(predicted-actual)/actual
	return math.Max(0, acc), nil
}

// Outcome は実績が判明した予測1件
type Outcome struct {
	Predicted float64
	Actual    float64
	Accuracy  float64
}

// AccuracySummary は予測精度の集計結果
type AccuracySummary struct {
	TotalPredictions      int
	PredictionsWithActual int
	AverageAccuracy       float64
	MinAccuracy           float64
	MaxAccuracy           float64
	AvgMAPE               float64
}

// SummarizeAccuracy は実績付き予測の精度を集計する。
// 精度は小数4桁、MAPE は小数2桁に丸める。MAPE の分母は max(actual, 1)。
func SummarizeAccuracy(total int, outcomes []Outcome) AccuracySummary {
	s := AccuracySummary{TotalPredictions: total, PredictionsWithActual: len(outcomes)}
	if len(outcomes) == 0 {
		return s
	}

	accs := make([]float64, len(outcomes))
	apes := make([]float64, len(outcomes))
	for i, o := range outcomes {
		accs[i] = o.Accuracy
		apes[i] = math.Abs(o.Predicted-o.Actual) / math.Max(o.Actual, 1)
	}

	s.AverageAccuracy = round(stat.Mean(accs, nil), 4)
	s.MinAccuracy = round(floats.Min(accs), 4)
	s.MaxAccuracy = round(floats.Max(accs), 4)
	s.AvgMAPE = round(stat.Mean(apes, nil)*100, 2)
	return s
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
