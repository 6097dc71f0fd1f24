// Package metrics は回帰評価指標と予測精度の計算を提供する。
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/replenish/pkg/errors"
)

func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewInputError(op, errors.Scope{}, errors.ErrEmptyData)
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("metrics.MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MSE = (1/n) * Σ(yTrue - yPred)²
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("metrics.MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}
	return sum / float64(n), nil
}

// R2Score は決定係数（R²）を計算する。
// yTrue に分散がない場合は定義できないため、0 を返して UndefinedMetricWarning を出す。
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("metrics.R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	yMean := stat.Mean(values(yTrue), nil)

	// 全変動（TSS）と残差変動（RSS）
	var tss, rss float64
	for i := 0; i < n; i++ {
		yt := yTrue.AtVec(i)
		yp := yPred.AtVec(i)
		tss += (yt - yMean) * (yt - yMean)
		rss += (yt - yp) * (yt - yp)
	}

	if tss == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("r2_score", "no variance in y_true", 0))
		return 0, nil
	}
	return 1 - rss/tss, nil
}

// MAPE は平均絶対パーセンテージ誤差（%）を計算する。
// 実績値が0の行はゼロ除算になるため除外する。すべて0の場合は 0 を返し、
// UndefinedMetricWarning を出す。
func MAPE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("metrics.MAPE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MAPE = (100/n) * Σ|yTrue - yPred|/|yTrue|
	var sum float64
	validCount := 0
	for i := 0; i < n; i++ {
		yt := yTrue.AtVec(i)
		if yt == 0 {
			continue
		}
		sum += math.Abs(yt-yPred.AtVec(i)) / math.Abs(yt)
		validCount++
	}

	if validCount == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("mape", "all y_true values are zero", 0))
		return 0, nil
	}
	return (sum / float64(validCount)) * 100, nil
}

// Report は1回の学習で計算される回帰評価指標
type Report struct {
	MAE  float64
	MSE  float64
	RMSE float64
	R2   float64
	MAPE float64
}

// Evaluate はテスト区間の実績と予測からすべての指標を計算する。
// NaN や Inf が含まれる場合は ComputationError を返す。
func Evaluate(yTrue, yPred *mat.VecDense) (Report, error) {
	if _, err := checkPair("metrics.Evaluate", yTrue, yPred); err != nil {
		return Report{}, err
	}
	if err := errors.CheckValues("metrics.Evaluate", values(yPred)); err != nil {
		return Report{}, err
	}

	var r Report
	var err error
	if r.MAE, err = MAE(yTrue, yPred); err != nil {
		return Report{}, err
	}
	if r.MSE, err = MSE(yTrue, yPred); err != nil {
		return Report{}, err
	}
	r.RMSE = math.Sqrt(r.MSE)
	if r.R2, err = R2Score(yTrue, yPred); err != nil {
		return Report{}, err
	}
	if r.MAPE, err = MAPE(yTrue, yPred); err != nil {
		return Report{}, err
	}
	return r, nil
}

func values(v *mat.VecDense) []float64 {
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}
	return data
}
