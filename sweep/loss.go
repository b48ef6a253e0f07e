package sweep

import (
	"slices"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gopjrt/dtypes"
)

// CrossEntropyLoss returns the loss used for one experiment: plain sparse
// softmax cross-entropy on logits, or the class-weighted variant when
// weights are provided.
func CrossEntropyLoss(classWeights []float32) losses.LossFn {
	if len(classWeights) == 0 {
		return losses.SparseCategoricalCrossEntropyLogits
	}
	return WeightedCrossEntropy(classWeights)
}

// WeightedCrossEntropy scales each example's softmax cross-entropy by the
// weight of its true class and normalizes by the sum of the weights in the
// batch, so the loss stays a mean over reweighted samples:
//
//	loss = sum_i(w[y_i] * ce_i) / sum_i(w[y_i])
//
// The per-example cross-entropy is computed here rather than through the
// library loss, which reduces to the batch mean before weights could apply.
func WeightedCrossEntropy(classWeights []float32) losses.LossFn {
	weights := slices.Clone(classWeights)
	return func(labels, predictions []*Node) *Node {
		logits := predictions[0]
		g := logits.Graph()
		numClasses := logits.Shape().Dimensions[logits.Rank()-1]

		classes := ConvertDType(labels[0], dtypes.Int32) // [batch, 1]
		oneHot := OneHot(Reshape(classes, -1), numClasses, logits.DType())
		perExample := Neg(ReduceSum(Mul(oneHot, LogSoftmax(logits)), -1)) // [batch]

		table := Const(g, weights)
		w := Reshape(Gather(table, classes), -1) // [batch]
		return Div(ReduceAllSum(Mul(perExample, w)), ReduceAllSum(w))
	}
}
