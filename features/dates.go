package features

import (
	"strings"
	"time"

	"github.com/YuminosukeSato/replenish/pkg/errors"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
	"2006/01/02",
}

// ParseTime accepts RFC 3339 timestamps, timestamps without a zone and plain
// dates. Values without a zone are read as UTC; the result is always UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Newf("unrecognised date %q", s)
}
