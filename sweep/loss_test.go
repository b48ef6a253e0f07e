package sweep

import (
	"math"
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// manualWeightedCE computes sum(w[y]*ce)/sum(w[y]) for two-class logits with
// a numerically stable log-sum-exp.
func manualWeightedCE(logits [][]float64, y []int, weights []float64) float64 {
	var num, den float64
	for i, row := range logits {
		m := math.Max(row[0], row[1])
		logSum := m + math.Log(math.Exp(row[0]-m)+math.Exp(row[1]-m))
		ce := logSum - row[y[i]]
		num += weights[y[i]] * ce
		den += weights[y[i]]
	}
	return num / den
}

func evalLoss(t *testing.T, classWeights []float32, labels, logits *tensors.Tensor) float64 {
	t.Helper()
	backend := newTestBackend(t)
	// Each call builds a fresh backend; detach the shared input tensors from it
	// afterwards so the next call can materialize them on its own backend.
	defer labels.ToLocal()
	defer logits.ToLocal()
	lossFn := WeightedCrossEntropy(classWeights)
	ctx := context.New()
	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, labels, logits *Node) *Node {
		return lossFn([]*Node{labels}, []*Node{logits})
	})
	return float64(exec.MustExec(labels, logits)[0].Value().(float32))
}

func TestWeightedCrossEntropyMatchesManual(t *testing.T) {
	logits := [][]float64{{2, -1}, {0.5, 1.5}, {-0.3, 0.9}}
	y := []int{0, 1, 1}

	labelsT := tensors.FromFlatDataAndDimensions([]int32{0, 1, 1}, 3, 1)
	logitsT := tensors.FromFlatDataAndDimensions(
		[]float32{2, -1, 0.5, 1.5, -0.3, 0.9}, 3, 2)

	got := evalLoss(t, []float32{2, 0.5}, labelsT, logitsT)
	want := manualWeightedCE(logits, y, []float64{2, 0.5})
	if math.Abs(got-want) > 1e-5 {
		t.Fatalf("weighted loss = %v, want %v", got, want)
	}

	// With equal weights the normalization cancels and the loss is the plain
	// mean cross-entropy.
	got = evalLoss(t, []float32{1, 1}, labelsT, logitsT)
	want = manualWeightedCE(logits, y, []float64{1, 1})
	if math.Abs(got-want) > 1e-5 {
		t.Fatalf("equal-weight loss = %v, want mean cross-entropy %v", got, want)
	}
}

func TestWeightedCrossEntropyUpweightsMinorityClass(t *testing.T) {
	labelsT := tensors.FromFlatDataAndDimensions([]int32{0, 1, 1, 1}, 4, 1)
	// The single class-0 example is badly misclassified.
	logitsT := tensors.FromFlatDataAndDimensions(
		[]float32{-2, 2, 1, -1, 1, -1, 1, -1}, 4, 2)

	balanced := evalLoss(t, []float32{2, 2.0 / 3.0}, labelsT, logitsT)
	uniform := evalLoss(t, []float32{1, 1}, labelsT, logitsT)
	if balanced <= uniform {
		t.Fatalf("balanced loss %v should exceed uniform loss %v when the minority class is wrong", balanced, uniform)
	}
}
