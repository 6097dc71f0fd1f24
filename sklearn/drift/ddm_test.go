package drift

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDDM_NoDetectionBeforeMinimum(t *testing.T) {
	d := NewDDM(WithMinNumInstances(10))
	for i := 0; i < 9; i++ {
		r := d.Update(false)
		assert.False(t, r.DriftDetected)
		assert.False(t, r.WarningDetected)
	}
	assert.Equal(t, 9, d.Stats().NumErrors)
}

func TestDDM_DetectsDegradation(t *testing.T) {
	d := NewDDM(WithMinNumInstances(30))
	for i := 0; i < 30; i++ {
		r := d.UpdateWithAccuracy(0.9)
		assert.False(t, r.DriftDetected, "outcome %d", i)
	}
	assert.Equal(t, 0.0, d.Stats().MinErrorRate)

	r := d.UpdateWithAccuracy(0.1)
	assert.True(t, r.WarningDetected)
	assert.True(t, r.DriftDetected)
	assert.Greater(t, r.Score, r.Threshold)

	// reset after drift
	assert.Equal(t, 0, d.Stats().NumInstances)
}

func TestDDM_StableErrorRate(t *testing.T) {
	d := NewDDM(WithMinNumInstances(20))
	drifts := 0
	// alternating outcomes keep the error rate near 0.5
	for i := 0; i < 200; i++ {
		if d.Update(i%2 == 0).DriftDetected {
			drifts++
		}
	}
	assert.Zero(t, drifts)
}

func TestDDM_MinAccuracyOption(t *testing.T) {
	d := NewDDM(WithMinNumInstances(1), WithMinAccuracy(0.95))
	d.UpdateWithAccuracy(0.9)
	assert.Equal(t, 1, d.Stats().NumErrors)
}
