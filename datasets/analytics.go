package datasets

import "fmt"

// ClassWeights computes inverse-frequency loss weights from a training label
// array: weight[c] = total / (numClasses * count[c]). A class absent from
// the labels gets weight == total, a deliberately large but finite penalty
// instead of a division-by-zero. The result is deterministic and is computed
// once per resolution, then shared by every configuration at that
// resolution.
func ClassWeights(labels []int32, numClasses int) ([]float32, error) {
	if numClasses <= 0 {
		return nil, fmt.Errorf("numClasses must be positive, got %d", numClasses)
	}

	counts, err := CountLabels(labels, numClasses)
	if err != nil {
		return nil, err
	}

	total := float32(len(labels))
	weights := make([]float32, numClasses)
	for c, n := range counts {
		if n == 0 {
			weights[c] = total
			continue
		}
		weights[c] = total / (float32(numClasses) * float32(n))
	}
	return weights, nil
}

// CountLabels tallies how many examples carry each class index. Labels
// outside [0, numClasses) are an error: they indicate a corrupted archive or
// metadata mismatch, not something to paper over.
func CountLabels(labels []int32, numClasses int) ([]int, error) {
	counts := make([]int, numClasses)
	for i, l := range labels {
		if l < 0 || int(l) >= numClasses {
			return nil, fmt.Errorf("label %d at index %d out of range [0, %d)", l, i, numClasses)
		}
		counts[l]++
	}
	return counts, nil
}
