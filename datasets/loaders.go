package datasets

import (
	"fmt"

	"github.com/gomlx/gomlx/backends"
	mldatasets "github.com/gomlx/gomlx/pkg/ml/datasets"
)

// Loaders bundles the three batch iterators for one resolution. The train
// iterator reshuffles on every epoch reset; validation and test iterate in
// order at double the batch size, which keeps evaluation cheap without
// affecting results. No iterator drops the incomplete final batch, so every
// sample contributes to training and evaluation.
type Loaders struct {
	Train      *mldatasets.InMemoryDataset
	Validation *mldatasets.InMemoryDataset
	Test       *mldatasets.InMemoryDataset
}

// NewLoaders uploads the splits to the backend and wraps them in
// InMemoryDataset iterators.
func NewLoaders(backend backends.Backend, s *Splits, batchSize int) (*Loaders, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	trainDS, err := mldatasets.InMemoryFromData(backend, s.Info.Task+"-train",
		[]any{s.Train.ImagesTensor()}, []any{s.Train.LabelsTensor()})
	if err != nil {
		return nil, fmt.Errorf("failed to build train dataset: %w", err)
	}
	valDS, err := mldatasets.InMemoryFromData(backend, s.Info.Task+"-val",
		[]any{s.Validation.ImagesTensor()}, []any{s.Validation.LabelsTensor()})
	if err != nil {
		return nil, fmt.Errorf("failed to build validation dataset: %w", err)
	}
	testDS, err := mldatasets.InMemoryFromData(backend, s.Info.Task+"-test",
		[]any{s.Test.ImagesTensor()}, []any{s.Test.LabelsTensor()})
	if err != nil {
		return nil, fmt.Errorf("failed to build test dataset: %w", err)
	}

	return &Loaders{
		Train:      trainDS.BatchSize(batchSize, false).Shuffle(),
		Validation: valDS.BatchSize(2*batchSize, false),
		Test:       testDS.BatchSize(2*batchSize, false),
	}, nil
}
