package features

import (
	"math"
	"time"

	"github.com/YuminosukeSato/replenish/pkg/errors"
)

// Feature column names.
const (
	ColStoreID         = "store_id"
	ColProductID       = "product_id"
	ColMonth           = "month"
	ColYear            = "year"
	ColDayOfWeek       = "day_of_week"
	ColQuarter         = "quarter"
	ColSalesLag1       = "sales_lag_1_month"
	ColSalesLag2       = "sales_lag_2_month"
	ColSalesLag3       = "sales_lag_3_month"
	ColSalesRolling3   = "sales_rolling_3_month"
	ColSalesRolling6   = "sales_rolling_6_month"
	ColSalesRolling12  = "sales_rolling_12_month"
	ColAvgDiscount     = "avg_discount"
	ColDiscountStd     = "discount_std"
	ColIsFestivalMonth = "is_festival_month"
	ColTarget          = "target"
	ColQuantity        = "quantity"
	ColRevenue         = "revenue"
)

var columns = []string{
	ColStoreID, ColProductID,
	ColMonth, ColYear, ColDayOfWeek, ColQuarter,
	ColSalesLag1, ColSalesLag2, ColSalesLag3,
	ColSalesRolling3, ColSalesRolling6, ColSalesRolling12,
	ColAvgDiscount, ColDiscountStd,
	ColIsFestivalMonth,
}

// excluded from model input: the label, raw sales values and the
// non-numeric identifiers
var nonFeature = map[string]bool{
	ColTarget:    true,
	ColQuantity:  true,
	ColRevenue:   true,
	ColStoreID:   true,
	ColProductID: true,
}

// Columns returns the feature column contract in its fixed order. This is
// the list recorded as features_used on every prediction.
func Columns() []string {
	return append([]string(nil), columns...)
}

// ModelColumns returns the numeric columns fed to the regressor, in
// contract order. Store and product identifiers are excluded.
func ModelColumns() []string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if !nonFeature[c] {
			out = append(out, c)
		}
	}
	return out
}

// Observation is one raw sales record for a store/product on a day.
type Observation struct {
	StoreID    string
	ProductID  string
	Date       time.Time
	Quantity   int
	Revenue    float64
	Discount   float64
	IsFestival bool
}

// Row is one derived feature row. Undefined values are NaN.
type Row struct {
	StoreID   string
	ProductID string
	Date      time.Time
	Quantity  float64
	Revenue   float64

	Month     int
	Year      int
	DayOfWeek int // Monday = 0
	Quarter   int

	SalesLag1Month      float64
	SalesLag2Month      float64
	SalesLag3Month      float64
	SalesRolling3Month  float64
	SalesRolling6Month  float64
	SalesRolling12Month float64
	AvgDiscount         float64
	DiscountStd         float64
	IsFestivalMonth     float64

	Target float64
}

// WithCalendar returns a copy of the row whose calendar fields describe t.
func (r Row) WithCalendar(t time.Time) Row {
	r.Date = t
	r.Month, r.Year, r.DayOfWeek, r.Quarter = calendar(t)
	return r
}

func calendar(t time.Time) (month, year, dayOfWeek, quarter int) {
	month = int(t.Month())
	year = t.Year()
	dayOfWeek = (int(t.Weekday()) + 6) % 7
	quarter = (month-1)/3 + 1
	return
}

// Value returns the numeric value of a column. ok is false for unknown
// columns and for the string identifiers.
func (r Row) Value(column string) (v float64, ok bool) {
	switch column {
	case ColMonth:
		return float64(r.Month), true
	case ColYear:
		return float64(r.Year), true
	case ColDayOfWeek:
		return float64(r.DayOfWeek), true
	case ColQuarter:
		return float64(r.Quarter), true
	case ColSalesLag1:
		return r.SalesLag1Month, true
	case ColSalesLag2:
		return r.SalesLag2Month, true
	case ColSalesLag3:
		return r.SalesLag3Month, true
	case ColSalesRolling3:
		return r.SalesRolling3Month, true
	case ColSalesRolling6:
		return r.SalesRolling6Month, true
	case ColSalesRolling12:
		return r.SalesRolling12Month, true
	case ColAvgDiscount:
		return r.AvgDiscount, true
	case ColDiscountStd:
		return r.DiscountStd, true
	case ColIsFestivalMonth:
		return r.IsFestivalMonth, true
	case ColTarget:
		return r.Target, true
	case ColQuantity:
		return r.Quantity, true
	case ColRevenue:
		return r.Revenue, true
	}
	return math.NaN(), false
}

// Vector returns the row's values for columns, in order.
func (r Row) Vector(columns []string) ([]float64, error) {
	out := make([]float64, len(columns))
	for j, c := range columns {
		v, ok := r.Value(c)
		if !ok {
			return nil, errors.NewInputError("features.Row.Vector", errors.For(r.StoreID, r.ProductID),
				errors.Newf("column %q is not a numeric feature", c))
		}
		out[j] = v
	}
	return out, nil
}

// Complete reports whether every model column and the target are defined.
func (r Row) Complete() bool {
	for _, c := range ModelColumns() {
		if v, _ := r.Value(c); math.IsNaN(v) {
			return false
		}
	}
	return !math.IsNaN(r.Target)
}
