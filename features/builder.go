// Package features turns raw sales observations into the feature table used
// to train and query the demand model.
//
// Rows are grouped by (store, product) and ordered by date inside each
// group; lag, rolling, discount and target columns never look across group
// boundaries. Datasets with fewer than Config.SmallDatasetThreshold
// observations take the small-dataset path: undefined lags become 0, the
// last row of a group uses its own quantity as target, and rolling columns
// follow Config.SmallRolling. Larger datasets leave undefined values as NaN
// and drop incomplete rows.
package features

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/pkg/log"
)

// RollingPolicy controls rolling columns on small datasets.
type RollingPolicy string

const (
	// RollingRawQuantity uses the current row's quantity for every window.
	RollingRawQuantity RollingPolicy = "raw_quantity"
	// RollingTrailingMean always computes the trailing mean.
	RollingTrailingMean RollingPolicy = "trailing_mean"
)

var (
	lags           = []int{1, 2, 3}
	rollingWindows = []int{3, 6, 12}
)

// Config holds the feature builder thresholds.
type Config struct {
	// SmallDatasetThreshold: inputs with fewer observations take the small path.
	SmallDatasetThreshold int `yaml:"small_dataset_threshold"`
	// LowDataThreshold: inputs with fewer observations log a low-confidence warning.
	LowDataThreshold int           `yaml:"low_data_threshold"`
	SmallRolling     RollingPolicy `yaml:"small_rolling"`
}

// DefaultConfig returns thresholds 10 and 5 with the raw-quantity policy.
func DefaultConfig() Config {
	return Config{
		SmallDatasetThreshold: 10,
		LowDataThreshold:      5,
		SmallRolling:          RollingRawQuantity,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SmallDatasetThreshold < 0 {
		return errors.NewValidationError("small_dataset_threshold", "must be non-negative", c.SmallDatasetThreshold)
	}
	if c.LowDataThreshold < 0 {
		return errors.NewValidationError("low_data_threshold", "must be non-negative", c.LowDataThreshold)
	}
	switch c.SmallRolling {
	case RollingRawQuantity, RollingTrailingMean:
	default:
		return errors.NewValidationError("small_rolling", "must be raw_quantity or trailing_mean", c.SmallRolling)
	}
	return nil
}

// Table is the output of Build.
type Table struct {
	Rows []Row
	// Small reports whether the small-dataset path was taken.
	Small bool
}

// Builder derives feature rows. It holds no state between calls.
type Builder struct {
	cfg    Config
	logger log.Logger
}

// NewBuilder creates a Builder. A nil logger uses the global logger.
func NewBuilder(cfg Config, logger log.Logger) *Builder {
	if logger == nil {
		logger = log.GetLoggerWithName("features")
	}
	return &Builder{cfg: cfg, logger: logger}
}

// Build derives the feature table. The input slice is not modified.
func (b *Builder) Build(obs []Observation) (*Table, error) {
	const stage = "features.build"

	if len(obs) == 0 {
		return nil, errors.NewInputError(stage, errors.Scope{}, errors.ErrEmptyData)
	}
	scope := scopeOf(obs)
	for _, o := range obs {
		if o.Quantity < 0 {
			return nil, errors.NewInputError(stage, errors.For(o.StoreID, o.ProductID),
				errors.Newf("negative quantity %d on %s", o.Quantity, o.Date.Format("2006-01-02")))
		}
	}
	if len(obs) < b.cfg.LowDataThreshold {
		b.logger.Warn("Few observations, forecast confidence will be low",
			log.ErrAttrKey, errors.NewLowDataWarning(scope, len(obs), b.cfg.LowDataThreshold),
			log.ObservationsKey, len(obs))
	}

	small := len(obs) < b.cfg.SmallDatasetThreshold

	// rows without a date cannot be ordered and are dropped up front
	sorted := make([]Observation, 0, len(obs))
	for _, o := range obs {
		if !o.Date.IsZero() {
			sorted = append(sorted, o)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, c := sorted[i], sorted[j]
		if a.StoreID != c.StoreID {
			return a.StoreID < c.StoreID
		}
		if a.ProductID != c.ProductID {
			return a.ProductID < c.ProductID
		}
		return a.Date.Before(c.Date)
	})

	table := &Table{Small: small, Rows: make([]Row, 0, len(sorted))}
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && sameGroup(sorted[start], sorted[end]) {
			end++
		}
		group := b.buildGroup(sorted[start:end], small)
		for _, r := range group {
			if small || r.Complete() {
				table.Rows = append(table.Rows, r)
			}
		}
		start = end
	}

	b.logger.Debug("Built feature table",
		log.OperationKey, log.OperationBuild,
		log.ObservationsKey, len(obs),
		log.SamplesKey, len(table.Rows),
		"small_dataset", small)
	return table, nil
}

func (b *Builder) buildGroup(group []Observation, small bool) []Row {
	n := len(group)
	qty := make([]float64, n)
	discounts := make([]float64, n)
	for i, o := range group {
		qty[i] = float64(o.Quantity)
		discounts[i] = o.Discount
	}

	avgDiscount := stat.Mean(discounts, nil)
	discountStd := 0.0
	if n > 1 {
		discountStd = stat.StdDev(discounts, nil)
	}

	missing := math.NaN()
	if small {
		missing = 0
	}

	rows := make([]Row, n)
	for i, o := range group {
		r := Row{
			StoreID:     o.StoreID,
			ProductID:   o.ProductID,
			Date:        o.Date,
			Quantity:    qty[i],
			Revenue:     o.Revenue,
			AvgDiscount: avgDiscount,
			DiscountStd: discountStd,
		}
		r.Month, r.Year, r.DayOfWeek, r.Quarter = calendar(o.Date)

		lagValues := make([]float64, len(lags))
		for k, lag := range lags {
			lagValues[k] = missing
			if i-lag >= 0 {
				lagValues[k] = qty[i-lag]
			}
		}
		r.SalesLag1Month, r.SalesLag2Month, r.SalesLag3Month = lagValues[0], lagValues[1], lagValues[2]

		rolling := make([]float64, len(rollingWindows))
		for k, w := range rollingWindows {
			if small && b.cfg.SmallRolling == RollingRawQuantity {
				rolling[k] = qty[i]
				continue
			}
			lo := i - w + 1
			if lo < 0 {
				lo = 0
			}
			rolling[k] = stat.Mean(qty[lo:i+1], nil)
		}
		r.SalesRolling3Month, r.SalesRolling6Month, r.SalesRolling12Month = rolling[0], rolling[1], rolling[2]

		if o.IsFestival {
			r.IsFestivalMonth = 1
		}

		switch {
		case i+1 < n:
			r.Target = qty[i+1]
		case small:
			r.Target = qty[i]
		default:
			r.Target = math.NaN()
		}
		rows[i] = r
	}
	return rows
}

func sameGroup(a, b Observation) bool {
	return a.StoreID == b.StoreID && a.ProductID == b.ProductID
}

// scopeOf names the store/product when the input holds a single series.
func scopeOf(obs []Observation) errors.Scope {
	s := errors.For(obs[0].StoreID, obs[0].ProductID)
	for _, o := range obs[1:] {
		if o.StoreID != s.StoreID {
			s.StoreID = ""
		}
		if o.ProductID != s.ProductID {
			s.ProductID = ""
		}
	}
	return s
}
