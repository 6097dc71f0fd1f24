package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/replenish/forecast"
)

func testInfo() *forecast.ModelInfo {
	return &forecast.ModelInfo{
		ModelVersion: "v20250115_120000",
		FeatureImportance: []forecast.FeatureImportance{
			{FeatureName: "sales_lag_1_month", ImportanceScore: 0.5, Rank: 1},
			{FeatureName: "month", ImportanceScore: 0.3, Rank: 2},
			{FeatureName: "avg_discount", ImportanceScore: 0.2, Rank: 3},
		},
	}
}

func TestImportanceChart(t *testing.T) {
	p, err := ImportanceChart(testInfo(), 2)
	require.NoError(t, err)
	assert.Contains(t, p.Title.Text, "v20250115_120000")
}

func TestImportanceChart_Empty(t *testing.T) {
	_, err := ImportanceChart(&forecast.ModelInfo{}, 10)
	assert.Error(t, err)
}

func TestSaveImportanceChart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "importance.png")
	require.NoError(t, SaveImportanceChart(path, testInfo(), 0))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, st.Size(), int64(0))
}
