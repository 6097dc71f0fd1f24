// Package errors は需要予測サービス全体のエラー分類と警告システムを提供します。
// 入力エラー・モデル未準備・数値計算エラー・ストレージエラーの4分類を中心に、
// どの店舗・商品・処理段階で失敗したかを構造化して保持します。
package errors

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		zlog.Warn().Err(w).Msg("replenish warning")
	}
	// pkg/log との循環importを避けるため、ロガー側から注入される
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc は構造化ログ用の警告関数を設定します。nil で解除します。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。処理は中断しません。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// UndefinedMetricWarning は評価指標が定義できない場合に発生する警告です。
// 例えば、実績値がすべて0のときのMAPEなど。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// LowDataWarning は学習・予測に使う観測数が少なすぎる場合の警告です。
type LowDataWarning struct {
	Scope        Scope
	Observations int
	Minimum      int
}

func (w *LowDataWarning) Error() string {
	return fmt.Sprintf("only %d observations supplied%s (recommended at least %d); forecast confidence will be low",
		w.Observations, w.Scope.suffix(), w.Minimum)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *LowDataWarning) MarshalZerologObject(e *zerolog.Event) {
	w.Scope.marshal(e)
	e.Int("observations", w.Observations).
		Int("minimum", w.Minimum).
		Str("type", "LowDataWarning")
}

// NewLowDataWarning は新しいLowDataWarningを作成します。
func NewLowDataWarning(scope Scope, observations, minimum int) *LowDataWarning {
	return &LowDataWarning{Scope: scope, Observations: observations, Minimum: minimum}
}

// ModelDriftWarning は予測精度のドリフトが検出された場合の警告です。
type ModelDriftWarning struct {
	DriftScore   float64 // ドリフトスコア（検出器により異なる）
	Threshold    float64
	Detector     string // 例: "DDM"
	Action       string // 推奨アクション（"alert", "retrain"）
	ModelVersion string
}

func (w *ModelDriftWarning) Error() string {
	return fmt.Sprintf("model drift detected by %s on %s: score=%.4f (threshold=%.4f). Recommended action: %s",
		w.Detector, w.ModelVersion, w.DriftScore, w.Threshold, w.Action)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ModelDriftWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("detector", w.Detector).
		Str("model_version", w.ModelVersion).
		Float64("drift_score", w.DriftScore).
		Float64("threshold", w.Threshold).
		Str("action", w.Action).
		Str("type", "ModelDriftWarning")
}

// NewModelDriftWarning は新しいModelDriftWarningを作成します。
func NewModelDriftWarning(detector, modelVersion string, score, threshold float64, action string) *ModelDriftWarning {
	return &ModelDriftWarning{
		Detector:     detector,
		ModelVersion: modelVersion,
		DriftScore:   score,
		Threshold:    threshold,
		Action:       action,
	}
}

// ===========================================================================
//
//	コンテキスト
//
// ===========================================================================

// Scope は失敗した対象の店舗・商品を表します。空のフィールドは出力されません。
type Scope struct {
	StoreID   string
	ProductID string
}

// For は店舗・商品を指定したScopeを返します。
func For(storeID, productID string) Scope {
	return Scope{StoreID: storeID, ProductID: productID}
}

func (s Scope) suffix() string {
	switch {
	case s.StoreID != "" && s.ProductID != "":
		return fmt.Sprintf(" [store=%s product=%s]", s.StoreID, s.ProductID)
	case s.StoreID != "":
		return fmt.Sprintf(" [store=%s]", s.StoreID)
	case s.ProductID != "":
		return fmt.Sprintf(" [product=%s]", s.ProductID)
	}
	return ""
}

func (s Scope) marshal(e *zerolog.Event) {
	if s.StoreID != "" {
		e.Str("store_id", s.StoreID)
	}
	if s.ProductID != "" {
		e.Str("product_id", s.ProductID)
	}
}

// ===========================================================================
//
//	エラー分類
//
// ===========================================================================

// InputError は販売データが空・不足している場合や、学習時と予測時の
// 特徴量列が一致しない場合のエラーです。リトライしても解消しません。
type InputError struct {
	Stage string
	Scope Scope
	Err   error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("replenish: %s%s: invalid input: %v", e.Stage, e.Scope.suffix(), e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InputError) MarshalZerologObject(event *zerolog.Event) {
	e.Scope.marshal(event)
	event.Str("stage", e.Stage).
		Str("cause", fmt.Sprint(e.Err)).
		Str("type", "InputError")
}

// NewInputError は新しいInputErrorを作成し、スタックトレースを付与します。
func NewInputError(stage string, scope Scope, err error) error {
	return errors.WithStack(&InputError{Stage: stage, Scope: scope, Err: err})
}

// NewColumnMismatchError は学習時の特徴量列と予測時の列が一致しない場合のInputErrorです。
func NewColumnMismatchError(stage string, expected, got []string) error {
	err := errors.Wrapf(ErrColumnMismatch, "expected %v, got %v", expected, got)
	return errors.WithStack(&InputError{Stage: stage, Err: err})
}

// ModelUnavailableError は予測要求時に学習済みモデルが存在しない場合のエラーです。
// 呼び出し側は「準備中」として一般的な失敗と区別できます。
type ModelUnavailableError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ModelUnavailableError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("replenish: %s: %v: %s", e.Op, e.Err, e.Reason)
	}
	return fmt.Sprintf("replenish: %s: %v", e.Op, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ModelUnavailableError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("reason", e.Reason).
		Str("type", "ModelUnavailableError")
}

// NewModelUnavailableError は新しいModelUnavailableErrorを作成します。
// errors.Is(err, ErrModelUnavailable) は常に true になります。
func NewModelUnavailableError(op, reason string) error {
	return errors.WithStack(&ModelUnavailableError{Op: op, Reason: reason, Err: ErrModelUnavailable})
}

// ComputationError はゼロ除算やNaNなど数値計算上の失敗です。
// NaNをそのまま返さず、必ずこのエラーで報告します。
type ComputationError struct {
	Op      string
	Message string
	Values  []float64
}

func (e *ComputationError) Error() string {
	if len(e.Values) == 0 {
		return fmt.Sprintf("replenish: %s: %s", e.Op, e.Message)
	}
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("replenish: %s: %s. Values: [%s]", e.Op, e.Message, valStr)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ComputationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("message", e.Message).
		Floats64("values", e.Values).
		Str("type", "ComputationError")
}

// NewComputationError は新しいComputationErrorを作成し、スタックトレースを付与します。
func NewComputationError(op, message string, values ...float64) error {
	return errors.WithStack(&ComputationError{Op: op, Message: message, Values: values})
}

// StorageError はモデル成果物や予測レコードの永続化に失敗した場合のエラーです。
type StorageError struct {
	Op      string
	Backend string // "file", "gcs", "sql", "http" など
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("replenish: %s (%s): %v", e.Op, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *StorageError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("backend", e.Backend).
		Str("cause", fmt.Sprint(e.Err)).
		Str("type", "StorageError")
}

// NewStorageError は新しいStorageErrorを作成し、スタックトレースを付与します。
func NewStorageError(op, backend string, err error) error {
	return errors.WithStack(&StorageError{Op: op, Backend: backend, Err: err})
}

// NotFittedError はモデルが未学習の状態で Predict を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("replenish: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 は行、1 は特徴量
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("replenish: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError はハイパーパラメータや設定値の検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("replenish: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrNoSalesData は指定期間の販売実績が存在しない場合のエラーです。
	ErrNoSalesData = New("no sales data for the requested window")

	// ErrColumnMismatch は学習時と予測時の特徴量列が異なる場合のエラーです。
	ErrColumnMismatch = New("feature column mismatch")

	// ErrModelUnavailable は学習済みモデルが存在しない場合のエラーです。
	ErrModelUnavailable = New("no trained model available")

	// ErrNotFound はレコードが存在しない、またはIDの形式が不正な場合のエラーです。
	ErrNotFound = New("record not found")

	// ErrActualRecorded は実績値が既に記録済みの予測に再度記録しようとした場合のエラーです。
	ErrActualRecorded = New("actual quantity already recorded")
)
