package features

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/replenish/pkg/errors"
)

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Last returns the final row, which for a single series is the most recent
// observation.
func (t *Table) Last() (Row, bool) {
	if len(t.Rows) == 0 {
		return Row{}, false
	}
	return t.Rows[len(t.Rows)-1], true
}

// Matrix returns the rows projected onto columns as an n×len(columns) matrix.
func (t *Table) Matrix(columns []string) (*mat.Dense, error) {
	if len(t.Rows) == 0 {
		return nil, errors.NewInputError("features.Table.Matrix", errors.Scope{}, errors.ErrEmptyData)
	}
	X := mat.NewDense(len(t.Rows), len(columns), nil)
	for i, r := range t.Rows {
		v, err := r.Vector(columns)
		if err != nil {
			return nil, err
		}
		X.SetRow(i, v)
	}
	return X, nil
}

// Targets returns the target column. Rows with an undefined target are an
// InputError.
func (t *Table) Targets() (*mat.VecDense, error) {
	if len(t.Rows) == 0 {
		return nil, errors.NewInputError("features.Table.Targets", errors.Scope{}, errors.ErrEmptyData)
	}
	y := mat.NewVecDense(len(t.Rows), nil)
	for i, r := range t.Rows {
		if err := errors.CheckScalar("features.Table.Targets", r.Target); err != nil {
			return nil, errors.NewInputError("features.Table.Targets", errors.For(r.StoreID, r.ProductID), err)
		}
		y.SetVec(i, r.Target)
	}
	return y, nil
}
