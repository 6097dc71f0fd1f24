package gbdt

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/pkg/log"
)

// kRtEps is the minimum loss reduction for a split to be kept.
const kRtEps = 1e-6

// TrainingParams contains all training hyperparameters
type TrainingParams struct {
	NumIterations   int     `json:"n_estimators"`
	LearningRate    float64 `json:"learning_rate"`
	MaxDepth        int     `json:"max_depth"`
	Lambda          float64 `json:"reg_lambda"`
	Gamma           float64 `json:"gamma"`
	MinChildWeight  float64 `json:"min_child_weight"`
	Subsample       float64 `json:"subsample"`
	ColsampleByTree float64 `json:"colsample_bytree"`
	Objective       string  `json:"objective"`
	Seed            int     `json:"random_state"`
}

// DefaultParams returns the demand model defaults: 100 depth-6 trees,
// learning rate 0.1, L2 regularisation 1 and seed 42.
func DefaultParams() TrainingParams {
	return TrainingParams{
		NumIterations:   100,
		LearningRate:    0.1,
		MaxDepth:        6,
		Lambda:          1.0,
		Gamma:           0,
		MinChildWeight:  1.0,
		Subsample:       1.0,
		ColsampleByTree: 1.0,
		Objective:       "reg:squarederror",
		Seed:            42,
	}
}

// Validate checks hyperparameter ranges.
func (p TrainingParams) Validate() error {
	switch {
	case p.NumIterations <= 0:
		return errors.NewValidationError("n_estimators", "must be positive", p.NumIterations)
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return errors.NewValidationError("learning_rate", "must be in (0, 1]", p.LearningRate)
	case p.MaxDepth <= 0:
		return errors.NewValidationError("max_depth", "must be positive", p.MaxDepth)
	case p.Lambda < 0:
		return errors.NewValidationError("reg_lambda", "must be non-negative", p.Lambda)
	case p.Gamma < 0:
		return errors.NewValidationError("gamma", "must be non-negative", p.Gamma)
	case p.MinChildWeight < 0:
		return errors.NewValidationError("min_child_weight", "must be non-negative", p.MinChildWeight)
	case p.Subsample <= 0 || p.Subsample > 1:
		return errors.NewValidationError("subsample", "must be in (0, 1]", p.Subsample)
	case p.ColsampleByTree <= 0 || p.ColsampleByTree > 1:
		return errors.NewValidationError("colsample_bytree", "must be in (0, 1]", p.ColsampleByTree)
	}
	return nil
}

// SplitInfo contains information about a potential split
type SplitInfo struct {
	Feature     int
	Threshold   float64
	Gain        float64
	DefaultLeft bool
}

// Trainer grows trees depth-wise with exact greedy split search.
type Trainer struct {
	params TrainingParams

	rows [][]float64
	y    []float64

	gradients []float64
	hessians  []float64
	preds     []float64 // cached ensemble prediction per training row

	trees     []Tree
	iteration int
	features  []int // columns sampled for the current tree

	objective ObjectiveFunction
	initScore float64
	rng       *rand.Rand
	logger    log.Logger
}

// NewTrainer creates a new trainer. Zero-valued params take the defaults.
func NewTrainer(params TrainingParams) *Trainer {
	def := DefaultParams()
	if params.NumIterations == 0 {
		params.NumIterations = def.NumIterations
	}
	if params.LearningRate == 0 {
		params.LearningRate = def.LearningRate
	}
	if params.MaxDepth == 0 {
		params.MaxDepth = def.MaxDepth
	}
	if params.Subsample == 0 {
		params.Subsample = def.Subsample
	}
	if params.ColsampleByTree == 0 {
		params.ColsampleByTree = def.ColsampleByTree
	}
	return &Trainer{
		params: params,
		logger: log.GetLoggerWithName("gbdt.trainer"),
	}
}

// Fit trains the ensemble on X (n×d) and y (n×1).
func (t *Trainer) Fit(X, y mat.Matrix) error {
	if err := t.params.Validate(); err != nil {
		return err
	}

	n, d := X.Dims()
	yRows, yCols := y.Dims()
	if n == 0 || d == 0 {
		return errors.NewInputError("gbdt.Trainer.Fit", errors.Scope{}, errors.ErrEmptyData)
	}
	if yRows != n {
		return errors.NewDimensionError("gbdt.Trainer.Fit", n, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("gbdt.Trainer.Fit", 1, yCols, 1)
	}

	t.rows = make([][]float64, n)
	for i := range t.rows {
		t.rows[i] = mat.Row(nil, i, X)
	}
	t.y = mat.Col(nil, 0, y)
	if err := errors.CheckValues("gbdt.Trainer.Fit", t.y); err != nil {
		return errors.Wrap(err, "target contains non-finite values")
	}

	objective, err := CreateObjectiveFunction(t.params.Objective)
	if err != nil {
		return err
	}
	t.objective = objective
	t.initScore = objective.GetInitScore(t.y)

	t.gradients = make([]float64, n)
	t.hessians = make([]float64, n)
	t.preds = make([]float64, n)
	for i := range t.preds {
		t.preds[i] = t.initScore
	}
	t.trees = t.trees[:0]
	seed := uint64(t.params.Seed)
	t.rng = rand.New(rand.NewPCG(seed, seed))

	for iter := 0; iter < t.params.NumIterations; iter++ {
		t.iteration = iter
		t.calculateGradients()

		tree := t.buildTree(d)
		t.trees = append(t.trees, tree)
		t.updatePredictions(&tree)

		if iter%10 == 0 && t.logger.Enabled(context.Background(), log.LevelDebug) {
			t.logger.Debug("Training progress",
				"iteration", iter,
				"loss", t.calculateLoss(),
				"leaves", tree.NumLeaves)
		}
	}
	return nil
}

// calculateGradients computes gradients and hessians for current predictions
func (t *Trainer) calculateGradients() {
	for i := range t.y {
		t.gradients[i] = t.objective.CalculateGradient(t.preds[i], t.y[i])
		t.hessians[i] = t.objective.CalculateHessian(t.preds[i], t.y[i])
	}
}

func (t *Trainer) sampleRows() []int {
	indices := make([]int, 0, len(t.y))
	for i := range t.y {
		if t.params.Subsample >= 1 || t.rng.Float64() < t.params.Subsample {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		indices = append(indices, t.rng.IntN(len(t.y)))
	}
	return indices
}

func (t *Trainer) sampleColumns(d int) []int {
	cols := make([]int, d)
	for j := range cols {
		cols[j] = j
	}
	if t.params.ColsampleByTree >= 1 {
		return cols
	}
	k := int(math.Max(1, math.Floor(t.params.ColsampleByTree*float64(d))))
	t.rng.Shuffle(d, func(a, b int) { cols[a], cols[b] = cols[b], cols[a] })
	cols = cols[:k]
	sort.Ints(cols)
	return cols
}

// buildTree constructs a single regression tree
func (t *Trainer) buildTree(d int) Tree {
	tree := Tree{TreeIndex: t.iteration}
	t.features = t.sampleColumns(d)
	t.buildNode(&tree, t.sampleRows(), -1, 0)

	for i := range tree.Nodes {
		if tree.Nodes[i].IsLeaf() {
			tree.NumLeaves++
		}
		if tree.Nodes[i].Depth > tree.MaxDepth {
			tree.MaxDepth = tree.Nodes[i].Depth
		}
	}
	return tree
}

// buildNode recursively builds tree nodes and returns the node index.
func (t *Trainer) buildNode(tree *Tree, indices []int, parentIdx, depth int) int {
	nodeIdx := len(tree.Nodes)

	sumGrad, sumHess := 0.0, 0.0
	for _, idx := range indices {
		sumGrad += t.gradients[idx]
		sumHess += t.hessians[idx]
	}

	leaf := Node{
		NodeID:     nodeIdx,
		ParentID:   parentIdx,
		LeftChild:  -1,
		RightChild: -1,
		Depth:      depth,
		Cover:      sumHess,
		LeafValue:  t.calculateLeafValue(sumGrad, sumHess),
		LeafCount:  len(indices),
	}

	if depth >= t.params.MaxDepth || len(indices) < 2 {
		tree.Nodes = append(tree.Nodes, leaf)
		return nodeIdx
	}

	best := t.findBestSplit(indices, sumGrad, sumHess)
	if best.Feature < 0 || best.Gain <= t.params.Gamma+kRtEps {
		tree.Nodes = append(tree.Nodes, leaf)
		return nodeIdx
	}

	tree.Nodes = append(tree.Nodes, Node{
		NodeID:       nodeIdx,
		ParentID:     parentIdx,
		Depth:        depth,
		SplitFeature: best.Feature,
		Threshold:    best.Threshold,
		DefaultLeft:  best.DefaultLeft,
		Gain:         best.Gain,
		Cover:        sumHess,
	})

	leftIndices, rightIndices := t.splitData(indices, best)
	leftChild := t.buildNode(tree, leftIndices, nodeIdx, depth+1)
	rightChild := t.buildNode(tree, rightIndices, nodeIdx, depth+1)

	tree.Nodes[nodeIdx].LeftChild = leftChild
	tree.Nodes[nodeIdx].RightChild = rightChild
	return nodeIdx
}

// findBestSplit finds the best split over the sampled features.
func (t *Trainer) findBestSplit(indices []int, sumGrad, sumHess float64) SplitInfo {
	best := SplitInfo{Feature: -1, Gain: math.Inf(-1)}
	for _, j := range t.features {
		split := t.findBestSplitForFeature(indices, j, sumGrad, sumHess)
		if split.Feature >= 0 && split.Gain > best.Gain {
			best = split
		}
	}
	return best
}

type featureValue struct {
	value float64
	idx   int
}

// findBestSplitForFeature scans the sorted non-missing values of one feature.
// Missing values are tried on both sides and the better direction is kept.
func (t *Trainer) findBestSplitForFeature(indices []int, feature int, totalGrad, totalHess float64) SplitInfo {
	values := make([]featureValue, 0, len(indices))
	presentGrad, presentHess := 0.0, 0.0
	for _, idx := range indices {
		v := t.rows[idx][feature]
		if math.IsNaN(v) {
			continue
		}
		values = append(values, featureValue{value: v, idx: idx})
		presentGrad += t.gradients[idx]
		presentHess += t.hessians[idx]
	}
	best := SplitInfo{Feature: -1, Gain: math.Inf(-1)}
	if len(values) < 2 {
		return best
	}
	sort.Slice(values, func(a, b int) bool { return values[a].value < values[b].value })

	missGrad := totalGrad - presentGrad
	missHess := totalHess - presentHess
	hasMissing := len(values) < len(indices)

	leftGrad, leftHess := 0.0, 0.0
	for i := 0; i < len(values)-1; i++ {
		leftGrad += t.gradients[values[i].idx]
		leftHess += t.hessians[values[i].idx]
		if values[i].value == values[i+1].value {
			continue
		}
		threshold := (values[i].value + values[i+1].value) / 2

		// missing values go right
		if gain, ok := t.evaluate(leftGrad, leftHess, totalGrad, totalHess); ok && gain > best.Gain {
			best = SplitInfo{Feature: feature, Threshold: threshold, Gain: gain}
		}
		if !hasMissing {
			continue
		}
		// missing values go left
		if gain, ok := t.evaluate(leftGrad+missGrad, leftHess+missHess, totalGrad, totalHess); ok && gain > best.Gain {
			best = SplitInfo{Feature: feature, Threshold: threshold, Gain: gain, DefaultLeft: true}
		}
	}
	return best
}

func (t *Trainer) evaluate(leftGrad, leftHess, totalGrad, totalHess float64) (float64, bool) {
	rightGrad := totalGrad - leftGrad
	rightHess := totalHess - leftHess
	if leftHess < t.params.MinChildWeight || rightHess < t.params.MinChildWeight {
		return 0, false
	}
	return t.calculateSplitGain(leftGrad, leftHess, rightGrad, rightHess, totalGrad, totalHess), true
}

// calculateSplitGain calculates the loss reduction of a split
func (t *Trainer) calculateSplitGain(leftGrad, leftHess, rightGrad, rightHess, totalGrad, totalHess float64) float64 {
	lambda := t.params.Lambda

	leftScore := (leftGrad * leftGrad) / (leftHess + lambda)
	rightScore := (rightGrad * rightGrad) / (rightHess + lambda)
	totalScore := (totalGrad * totalGrad) / (totalHess + lambda)

	return 0.5 * (leftScore + rightScore - totalScore)
}

// splitData splits indices based on a split decision
func (t *Trainer) splitData(indices []int, split SplitInfo) ([]int, []int) {
	var leftIndices, rightIndices []int
	for _, idx := range indices {
		v := t.rows[idx][split.Feature]
		goLeft := v < split.Threshold
		if math.IsNaN(v) {
			goLeft = split.DefaultLeft
		}
		if goLeft {
			leftIndices = append(leftIndices, idx)
		} else {
			rightIndices = append(rightIndices, idx)
		}
	}
	return leftIndices, rightIndices
}

// calculateLeafValue returns the shrunk leaf weight -G/(H+lambda).
func (t *Trainer) calculateLeafValue(sumGrad, sumHess float64) float64 {
	denom := sumHess + t.params.Lambda
	if denom < 1e-10 {
		return 0
	}
	return -sumGrad / denom * t.params.LearningRate
}

// updatePredictions adds the new tree's output to the cached predictions.
func (t *Trainer) updatePredictions(tree *Tree) {
	for i, row := range t.rows {
		t.preds[i] += tree.Predict(row)
	}
}

// calculateLoss calculates the current mean training loss
func (t *Trainer) calculateLoss() float64 {
	loss := 0.0
	for i := range t.y {
		loss += t.objective.CalculateLoss(t.preds[i], t.y[i])
	}
	return loss / float64(len(t.y))
}

// GetModel returns the trained model
func (t *Trainer) GetModel() *Model {
	d := 0
	if len(t.rows) > 0 {
		d = len(t.rows[0])
	}
	trees := make([]Tree, len(t.trees))
	copy(trees, t.trees)
	return &Model{
		Objective:    t.objective.Name(),
		NumIteration: len(trees),
		LearningRate: t.params.LearningRate,
		MaxDepth:     t.params.MaxDepth,
		Lambda:       t.params.Lambda,
		Seed:         t.params.Seed,
		Trees:        trees,
		NumFeatures:  d,
		InitScore:    t.initScore,
	}
}
