package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Version string
	Columns []string
	Values  []float64
}

func TestSaveAtomicAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "model.gob")

	first := snapshot{Version: "v20250101_000000", Columns: []string{"month", "year"}, Values: []float64{1, 2}}
	require.NoError(t, SaveAtomic(path, first))

	var got snapshot
	require.NoError(t, Load(path, &got))
	assert.Equal(t, first, got)

	second := snapshot{Version: "v20250102_000000", Columns: []string{"month"}, Values: []float64{3}}
	require.NoError(t, SaveAtomic(path, second))
	require.NoError(t, Load(path, &got))
	assert.Equal(t, second, got)

	// 一時ファイルが残っていないこと
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadMissingFile(t *testing.T) {
	var got snapshot
	err := Load(filepath.Join(t.TempDir(), "absent.gob"), &got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.gob")
	require.NoError(t, os.WriteFile(path, []byte("not gob"), 0o644))

	var got snapshot
	assert.Error(t, Load(path, &got))
}

func TestStateManager(t *testing.T) {
	s := NewStateManager()
	assert.False(t, s.IsFitted())
	assert.Error(t, s.RequireFitted("Regressor", "Predict"))

	s.SetFitted(13, 80)
	assert.NoError(t, s.RequireFitted("Regressor", "Predict"))
	nf, ns := s.GetDimensions()
	assert.Equal(t, 13, nf)
	assert.Equal(t, 80, ns)
	assert.NoError(t, s.RequireFeatures("Predict", 13))
	assert.Error(t, s.RequireFeatures("Predict", 15))

	s.Reset()
	assert.False(t, s.IsFitted())
}
