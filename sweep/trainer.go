package sweep

import (
	"errors"
	"fmt"
	"io"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"k8s.io/klog/v2"
)

// Train runs exactly epochs passes over the training iterator: per batch one
// gomlx train step (gradients reset, forward, loss, backward, optimizer
// update), accumulating batch loss weighted by batch size. It returns the
// mean per-sample loss of each epoch.
//
// There is intentionally no early stopping, learning-rate schedule or
// checkpointing: every configuration trains for the same fixed number of
// epochs so the sweep stays comparative. epochs == 0 is a valid degenerate
// run that leaves the model untouched.
//
// gomlx raises graph build/execution failures as panics; they are converted
// back to ordinary errors here.
func Train(trainer *train.Trainer, ds train.Dataset, epochs int) ([]float64, error) {
	if epochs < 0 {
		return nil, fmt.Errorf("epoch count must be >= 0, got %d", epochs)
	}

	epochLosses := make([]float64, 0, epochs)
	err := exceptions.TryCatch[error](func() {
		for epoch := range epochs {
			ds.Reset()
			var lossSum float64
			var seen int
			for {
				spec, inputs, labels, err := ds.Yield()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					panic(fmt.Errorf("training iterator failed at epoch %d: %w", epoch, err))
				}

				batch := inputs[0].Shape().Dimensions[0]
				stepMetrics := trainer.TrainStep(spec, inputs, labels)
				// The first trainer metric is the batch mean loss.
				lossSum += float64(tensors.ToScalar[float32](stepMetrics[0])) * float64(batch)
				seen += batch
			}
			if seen == 0 {
				panic(fmt.Errorf("training iterator yielded no examples at epoch %d", epoch))
			}

			mean := lossSum / float64(seen)
			epochLosses = append(epochLosses, mean)
			klog.Infof("epoch %d/%d: mean loss=%.6f (%d samples)", epoch+1, epochs, mean, seen)
		}
	})
	if err != nil {
		return nil, err
	}
	return epochLosses, nil
}
