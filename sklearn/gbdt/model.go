package gbdt

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/replenish/pkg/errors"
)

// Node represents a single node in a regression tree.
type Node struct {
	NodeID     int
	ParentID   int // -1 for root
	LeftChild  int // -1 if leaf
	RightChild int // -1 if leaf
	Depth      int

	// Split information (for non-leaf nodes)
	SplitFeature int
	Threshold    float64 // go left when value < Threshold
	DefaultLeft  bool    // direction for missing (NaN) values
	Gain         float64 // loss reduction of the split
	Cover        float64 // sum of hessians reaching the node

	// Leaf information, already scaled by the learning rate
	LeafValue float64
	LeafCount int
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.LeftChild == -1 && n.RightChild == -1
}

// Tree represents a single regression tree in the ensemble.
type Tree struct {
	TreeIndex int
	NumLeaves int
	MaxDepth  int
	Nodes     []Node
}

// Predict returns the tree output for a single sample.
func (t *Tree) Predict(features []float64) float64 {
	nodeID := 0
	for nodeID >= 0 && nodeID < len(t.Nodes) {
		node := &t.Nodes[nodeID]
		if node.IsLeaf() {
			return node.LeafValue
		}

		v := features[node.SplitFeature]
		switch {
		case math.IsNaN(v):
			if node.DefaultLeft {
				nodeID = node.LeftChild
			} else {
				nodeID = node.RightChild
			}
		case v < node.Threshold:
			nodeID = node.LeftChild
		default:
			nodeID = node.RightChild
		}
	}
	return 0
}

// ImportanceType selects how feature importance is aggregated.
type ImportanceType string

const (
	// ImportanceGain is the average gain of the splits that use the feature.
	ImportanceGain ImportanceType = "gain"
	// ImportanceTotalGain is the summed gain of the splits that use the feature.
	ImportanceTotalGain ImportanceType = "total_gain"
	// ImportanceSplit is the number of splits that use the feature.
	ImportanceSplit ImportanceType = "weight"
)

// Model is a trained boosted ensemble. It contains only exported plain
// fields so it can be gob-encoded inside a model artifact.
type Model struct {
	Objective    string
	NumIteration int
	LearningRate float64
	MaxDepth     int
	Lambda       float64
	Seed         int

	Trees []Tree

	NumFeatures  int
	FeatureNames []string

	// InitScore is the base prediction every tree output is added to.
	InitScore float64
}

// Predict makes predictions for a batch of samples.
func (m *Model) Predict(X mat.Matrix) (*mat.VecDense, error) {
	rows, cols := X.Dims()
	if cols != m.NumFeatures {
		return nil, errors.NewDimensionError("gbdt.Model.Predict", m.NumFeatures, cols, 1)
	}
	if rows == 0 {
		return nil, errors.NewInputError("gbdt.Model.Predict", errors.Scope{}, errors.ErrEmptyData)
	}

	out := mat.NewVecDense(rows, nil)
	features := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(features, i, X)
		out.SetVec(i, m.PredictSingle(features))
	}
	return out, nil
}

// PredictSingle returns the raw prediction for one sample.
func (m *Model) PredictSingle(features []float64) float64 {
	pred := m.InitScore
	for i := range m.Trees {
		pred += m.Trees[i].Predict(features)
	}
	return pred
}

// FeatureImportance returns per-feature importance normalised to sum to 1.
// A model without splits returns all zeros.
func (m *Model) FeatureImportance(kind ImportanceType) []float64 {
	total := make([]float64, m.NumFeatures)
	count := make([]float64, m.NumFeatures)

	for _, tree := range m.Trees {
		for _, node := range tree.Nodes {
			if node.IsLeaf() {
				continue
			}
			total[node.SplitFeature] += node.Gain
			count[node.SplitFeature]++
		}
	}

	importance := make([]float64, m.NumFeatures)
	for j := range importance {
		switch kind {
		case ImportanceSplit:
			importance[j] = count[j]
		case ImportanceTotalGain:
			importance[j] = total[j]
		default:
			if count[j] > 0 {
				importance[j] = total[j] / count[j]
			}
		}
	}

	sum := 0.0
	for _, v := range importance {
		sum += v
	}
	if sum > 0 {
		for j := range importance {
			importance[j] /= sum
		}
	}
	return importance
}
