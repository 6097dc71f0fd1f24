package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-02-01T00:00:00Z", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"2025-02-01T09:00:00+09:00", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"2025-02-01T00:00:00", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"2025-02-01T10:30:00.123456", time.Date(2025, 2, 1, 10, 30, 0, 123456000, time.UTC)},
		{"2025-02-01 08:15:00", time.Date(2025, 2, 1, 8, 15, 0, 0, time.UTC)},
		{" 2025-02-01 ", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"2025/02/01", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	for _, bad := range []string{"", "01.02.2025", "2025-02"} {
		_, err := ParseTime(bad)
		assert.Error(t, err, bad)
	}
}
