package sweep

import (
	"errors"
	"fmt"
	"io"

	"github.com/Noofbiz/medBench/models"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gopjrt/dtypes"
)

// Metrics holds the classification metrics for one (model, split) pair.
// Accuracy, Precision, Recall and F1 are all in [0,1]; Confusion is indexed
// [true class][predicted class].
type Metrics struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	Confusion [][]int
}

// EvaluateSplit runs inference over every batch of the iterator and computes
// classification metrics against the ground-truth labels. The inference
// graph contains only the forward pass and an arg-max, so no gradients are
// ever tracked or applied.
func EvaluateSplit(backend backends.Backend, ctx *context.Context, cfg models.Config,
	ds train.Dataset, posLabel int32) (Metrics, error) {

	preds, truth, err := collectPredictions(backend, ctx, cfg, ds)
	if err != nil {
		return Metrics{}, err
	}
	return ComputeMetrics(preds, truth, cfg.NumClasses, posLabel)
}

// collectPredictions accumulates arg-max predictions and ground-truth labels
// across all batches. gomlx raises graph/execution failures as panics; they
// are converted back to ordinary errors here.
//
// The executor rebuilds the forward graph in the caller's context with
// variable checks disabled, so trained parameters are picked up where they
// exist and an untrained model still evaluates with fresh ones.
func collectPredictions(backend backends.Backend, ctx *context.Context, cfg models.Config,
	ds train.Dataset) (preds, truth []int32, err error) {

	err = exceptions.TryCatch[error](func() {
		exec := context.MustNewExec(backend, ctx.Checked(false), func(ctx *context.Context, images *Node) *Node {
			return ArgMax(cfg.Build(ctx, images), -1, dtypes.Int32)
		})

		ds.Reset()
		for {
			_, inputs, labels, yieldErr := ds.Yield()
			if errors.Is(yieldErr, io.EOF) {
				break
			}
			if yieldErr != nil {
				panic(fmt.Errorf("evaluation iterator failed: %w", yieldErr))
			}

			batchPreds := exec.MustExec(inputs[0])[0]
			preds = append(preds, flattenInt32(batchPreds)...)
			truth = append(truth, flattenInt32(labels[0])...)
		}
	})
	if err != nil {
		return nil, nil, err
	}
	if len(preds) == 0 {
		return nil, nil, fmt.Errorf("evaluation iterator yielded no examples")
	}
	return preds, truth, nil
}

// flattenInt32 copies an int32 tensor of rank 1 or 2 into a flat slice.
func flattenInt32(t *tensors.Tensor) []int32 {
	switch v := t.Value().(type) {
	case []int32:
		return v
	case [][]int32:
		out := make([]int32, 0, len(v))
		for _, row := range v {
			out = append(out, row...)
		}
		return out
	default:
		panic(fmt.Errorf("unexpected label/prediction tensor type %T (shape %s)", v, t.Shape()))
	}
}

// ComputeMetrics derives accuracy, precision, recall, F1 and the confusion
// matrix from predicted and true class indices.
//
// Precision, recall and F1 follow the binary positive-class convention
// (posLabel is the positive class); they are only meaningful for two-class
// tasks and are kept that way on purpose rather than silently switching to
// a multi-class averaging scheme.
func ComputeMetrics(preds, truth []int32, numClasses int, posLabel int32) (Metrics, error) {
	if len(preds) != len(truth) {
		return Metrics{}, fmt.Errorf("got %d predictions for %d labels", len(preds), len(truth))
	}
	if len(preds) == 0 {
		return Metrics{}, fmt.Errorf("cannot compute metrics over zero samples")
	}
	if numClasses <= 0 {
		return Metrics{}, fmt.Errorf("numClasses must be positive, got %d", numClasses)
	}
	if posLabel < 0 || int(posLabel) >= numClasses {
		return Metrics{}, fmt.Errorf("positive label %d out of range [0, %d)", posLabel, numClasses)
	}

	confusion := make([][]int, numClasses)
	for i := range confusion {
		confusion[i] = make([]int, numClasses)
	}
	correct := 0
	for i := range preds {
		p, t := preds[i], truth[i]
		if p < 0 || int(p) >= numClasses {
			return Metrics{}, fmt.Errorf("prediction %d at index %d out of range [0, %d)", p, i, numClasses)
		}
		if t < 0 || int(t) >= numClasses {
			return Metrics{}, fmt.Errorf("label %d at index %d out of range [0, %d)", t, i, numClasses)
		}
		confusion[t][p]++
		if p == t {
			correct++
		}
	}

	var tp, fp, fn int
	for c := 0; c < numClasses; c++ {
		if int32(c) == posLabel {
			tp = confusion[c][posLabel]
			continue
		}
		fp += confusion[c][posLabel]
		fn += confusion[posLabel][c]
	}

	precision := safeRatio(tp, tp+fp)
	recall := safeRatio(tp, tp+fn)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	return Metrics{
		Accuracy:  float64(correct) / float64(len(preds)),
		Precision: precision,
		Recall:    recall,
		F1:        f1,
		Confusion: confusion,
	}, nil
}

// safeRatio returns num/den, or 0 when the denominator is 0.
func safeRatio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
