package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データの各行に対する予測値を返す
	Predict(X mat.Matrix) (*mat.VecDense, error)
}

// Regressor は学習と予測の両方を行う回帰モデル
type Regressor interface {
	Fitter
	Predictor
}

// ImportanceProvider は特徴量重要度を返すモデルのインターフェース
type ImportanceProvider interface {
	// FeatureImportance は列ごとの重要度（合計1に正規化）を返す
	FeatureImportance() []float64
}
