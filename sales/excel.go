package sales

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/YuminosukeSato/replenish/features"
	"github.com/YuminosukeSato/replenish/pkg/errors"
)

// Workbook column headers, matched case-insensitively.
const (
	HeaderStoreID    = "store_id"
	HeaderProductID  = "product_id"
	HeaderDate       = "date"
	HeaderQuantity   = "quantity"
	HeaderRevenue    = "revenue"
	HeaderDiscount   = "discount"
	HeaderIsFestival = "is_festival"
)

var requiredHeaders = []string{HeaderStoreID, HeaderProductID, HeaderDate, HeaderQuantity}

// ExcelSource serves observations read once from the first sheet of an
// .xlsx workbook. The first row names the columns; revenue, discount and
// is_festival are optional.
type ExcelSource struct {
	obs []features.Observation
}

// OpenExcel reads the workbook at path.
func OpenExcel(path string) (*ExcelSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.NewStorageError("sales.OpenExcel", "excel", err)
	}
	defer f.Close()
	return readWorkbook(f)
}

// ReadExcel reads a workbook from r.
func ReadExcel(r io.Reader) (*ExcelSource, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.NewStorageError("sales.ReadExcel", "excel", err)
	}
	defer f.Close()
	return readWorkbook(f)
}

func readWorkbook(f *excelize.File) (*ExcelSource, error) {
	const stage = "sales.excel"

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.NewStorageError(stage, "excel", err)
	}
	if len(rows) == 0 {
		return nil, errors.NewInputError(stage, errors.Scope{}, errors.ErrEmptyData)
	}

	index := map[string]int{}
	for i, h := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, h := range requiredHeaders {
		if _, ok := index[h]; !ok {
			return nil, errors.NewInputError(stage, errors.Scope{}, errors.Newf("missing column %q in sheet %q", h, sheet))
		}
	}

	cell := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	src := &ExcelSource{}
	for n, row := range rows[1:] {
		line := n + 2
		store, product := cell(row, HeaderStoreID), cell(row, HeaderProductID)
		if store == "" && product == "" {
			continue
		}
		scope := errors.For(store, product)

		date, err := parseCellDate(cell(row, HeaderDate))
		if err != nil {
			return nil, errors.NewInputError(stage, scope, errors.Wrapf(err, "row %d", line))
		}
		qty, err := strconv.ParseFloat(cell(row, HeaderQuantity), 64)
		if err != nil {
			return nil, errors.NewInputError(stage, scope, errors.Wrapf(err, "row %d: quantity", line))
		}
		o := features.Observation{
			StoreID:   store,
			ProductID: product,
			Date:      date,
			Quantity:  int(qty),
		}
		if o.Revenue, err = optionalFloat(cell(row, HeaderRevenue)); err != nil {
			return nil, errors.NewInputError(stage, scope, errors.Wrapf(err, "row %d: revenue", line))
		}
		if o.Discount, err = optionalFloat(cell(row, HeaderDiscount)); err != nil {
			return nil, errors.NewInputError(stage, scope, errors.Wrapf(err, "row %d: discount", line))
		}
		switch strings.ToLower(cell(row, HeaderIsFestival)) {
		case "1", "true", "yes":
			o.IsFestival = true
		}
		src.obs = append(src.obs, o)
	}
	return src, nil
}

func optionalFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// parseCellDate accepts an Excel date serial or a textual date.
func parseCellDate(s string) (time.Time, error) {
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		return day(t), nil
	}
	return parseDate(s)
}

// Len returns the number of observations in the workbook.
func (s *ExcelSource) Len() int {
	return len(s.obs)
}

// All returns every observation in sheet order.
func (s *ExcelSource) All() []features.Observation {
	return append([]features.Observation(nil), s.obs...)
}

// Fetch returns the observations for one store/product whose day lies in
// [start, end].
func (s *ExcelSource) Fetch(_ context.Context, storeID, productID string, start, end time.Time) ([]features.Observation, error) {
	from, to := day(start), day(end)
	var out []features.Observation
	for _, o := range s.obs {
		if o.StoreID == storeID && o.ProductID == productID && !o.Date.Before(from) && !o.Date.After(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Stores lists the distinct store ids, sorted.
func (s *ExcelSource) Stores(context.Context) ([]string, error) {
	set := map[string]struct{}{}
	for _, o := range s.obs {
		set[o.StoreID] = struct{}{}
	}
	return sortedKeys(set), nil
}

// Products lists the distinct product ids of storeID, sorted.
func (s *ExcelSource) Products(_ context.Context, storeID string) ([]string, error) {
	set := map[string]struct{}{}
	for _, o := range s.obs {
		if o.StoreID == storeID {
			set[o.ProductID] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}
