// Package drift detects degradation of a deployed model from a stream of
// prediction outcomes.
package drift

import (
	"math"
	"sync"
)

// DDM (Drift Detection Method) は予測の誤り率の推移からコンセプトドリフトを検出します。
// J. Gama, P. Medas, G. Castillo, P. Rodrigues (2004) "Learning with Drift Detection"
//
// An outcome counts as an error when its accuracy falls below the configured
// minimum accuracy.
type DDM struct {
	minNumInstances int
	warningLevel    float64
	outControlLevel float64
	minAccuracy     float64

	numInstances int
	numErrors    int
	errorRate    float64
	stdDev       float64

	// 学習開始以降の最小値
	minErrorRate float64
	minStdDev    float64

	warningDetected bool
	driftDetected   bool

	mu sync.Mutex
}

// Result is the detector state after one update.
type Result struct {
	WarningDetected bool
	DriftDetected   bool
	ErrorRate       float64
	// Score is error rate plus its standard deviation; Threshold is the
	// out-of-control bound it was compared against.
	Score     float64
	Threshold float64
}

// Option configures a DDM.
type Option func(*DDM)

// WithMinNumInstances sets the number of outcomes observed before detection starts.
func WithMinNumInstances(n int) Option {
	return func(d *DDM) { d.minNumInstances = n }
}

// WithWarningLevel sets the warning multiplier (μ + kσ).
func WithWarningLevel(level float64) Option {
	return func(d *DDM) { d.warningLevel = level }
}

// WithOutControlLevel sets the drift multiplier (μ + kσ).
func WithOutControlLevel(level float64) Option {
	return func(d *DDM) { d.outControlLevel = level }
}

// WithMinAccuracy sets the accuracy below which an outcome is an error.
func WithMinAccuracy(acc float64) Option {
	return func(d *DDM) { d.minAccuracy = acc }
}

// NewDDM creates a detector with 30 minimum instances, warning at 2σ,
// drift at 3σ and a minimum accuracy of 0.5.
func NewDDM(options ...Option) *DDM {
	d := &DDM{
		minNumInstances: 30,
		warningLevel:    2.0,
		outControlLevel: 3.0,
		minAccuracy:     0.5,
		minErrorRate:    math.Inf(1),
		minStdDev:       math.Inf(1),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// UpdateWithAccuracy records one prediction outcome by its accuracy.
func (d *DDM) UpdateWithAccuracy(accuracy float64) Result {
	return d.Update(accuracy >= d.minAccuracy)
}

// Update records one outcome. The detector resets itself after a drift.
func (d *DDM) Update(correct bool) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.numInstances++
	if !correct {
		d.numErrors++
	}
	if d.numInstances < d.minNumInstances {
		return Result{}
	}

	n := float64(d.numInstances)
	d.errorRate = float64(d.numErrors) / n
	d.stdDev = math.Sqrt(d.errorRate * (1.0 - d.errorRate) / n)
	score := d.errorRate + d.stdDev

	if score < d.minErrorRate+d.minStdDev {
		d.minErrorRate = d.errorRate
		d.minStdDev = d.stdDev
	}

	result := Result{
		ErrorRate: d.errorRate,
		Score:     score,
		Threshold: d.minErrorRate + d.outControlLevel*d.minStdDev,
	}

	d.warningDetected = score > d.minErrorRate+d.warningLevel*d.minStdDev
	result.WarningDetected = d.warningDetected

	if score > result.Threshold {
		result.DriftDetected = true
		d.reset()
	}
	return result
}

// Reset clears all statistics.
func (d *DDM) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

func (d *DDM) reset() {
	d.numInstances = 0
	d.numErrors = 0
	d.errorRate = 0
	d.stdDev = 0
	d.minErrorRate = math.Inf(1)
	d.minStdDev = math.Inf(1)
	d.warningDetected = false
	d.driftDetected = false
}

// Statistics is a snapshot of the detector.
type Statistics struct {
	NumInstances    int
	NumErrors       int
	ErrorRate       float64
	StdDev          float64
	MinErrorRate    float64
	MinStdDev       float64
	WarningDetected bool
}

// Stats returns the current statistics.
func (d *DDM) Stats() Statistics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Statistics{
		NumInstances:    d.numInstances,
		NumErrors:       d.numErrors,
		ErrorRate:       d.errorRate,
		StdDev:          d.stdDev,
		MinErrorRate:    d.minErrorRate,
		MinStdDev:       d.minStdDev,
		WarningDetected: d.warningDetected,
	}
}
