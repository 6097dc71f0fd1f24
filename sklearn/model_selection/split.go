// Package model_selection provides reproducible train/test partitioning.
package model_selection

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/replenish/pkg/errors"
)

// Split holds one train/test partition. Indices refer to rows of the input.
type Split struct {
	XTrain, XTest *mat.Dense
	YTrain, YTest *mat.VecDense
	TrainIndices  []int
	TestIndices   []int
}

// TrainTestSplit shuffles rows with a PCG source seeded by seed and puts
// ceil(testSize*n) rows in the test partition. Both partitions must be
// non-empty. Within each partition indices keep ascending order.
func TrainTestSplit(X mat.Matrix, y *mat.VecDense, testSize float64, seed int) (*Split, error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	n, d := X.Dims()
	if n == 0 {
		return nil, errors.NewInputError("model_selection.TrainTestSplit", errors.Scope{}, errors.ErrEmptyData)
	}
	if y.Len() != n {
		return nil, errors.NewDimensionError("model_selection.TrainTestSplit", n, y.Len(), 0)
	}

	nTest := int(math.Ceil(testSize*float64(n) - 1e-9))
	nTrain := n - nTest
	if nTrain < 1 || nTest < 1 {
		return nil, errors.NewInputError("model_selection.TrainTestSplit", errors.Scope{},
			errors.Newf("%d rows cannot be split into non-empty train and test partitions", n))
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	r.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	test := append([]int(nil), indices[:nTest]...)
	train := append([]int(nil), indices[nTest:]...)
	sort.Ints(test)
	sort.Ints(train)

	s := &Split{TrainIndices: train, TestIndices: test}
	s.XTrain, s.YTrain = take(X, y, train, d)
	s.XTest, s.YTest = take(X, y, test, d)
	return s, nil
}

func take(X mat.Matrix, y *mat.VecDense, rows []int, d int) (*mat.Dense, *mat.VecDense) {
	xs := mat.NewDense(len(rows), d, nil)
	ys := mat.NewVecDense(len(rows), nil)
	for i, r := range rows {
		for j := 0; j < d; j++ {
			xs.Set(i, j, X.At(r, j))
		}
		ys.SetVec(i, y.AtVec(r))
	}
	return xs, ys
}
