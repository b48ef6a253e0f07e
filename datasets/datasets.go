package datasets

// This package loads the PneumoniaMNIST chest X-ray classification dataset
// and presents it as gomlx-ready splits for model training and evaluation.
//
// The upstream collection publishes each task as a single .npz archive per
// resolution containing six arrays: {train,val,test}_images (uint8, one byte
// per pixel) and {train,val,test}_labels (uint8, one label per example).
// The archives are downloaded on demand and parsed with npyio; pixel
// intensities are rescaled from [0,255] to [-1,1] before training.
//
// Layout and intended usage:
//
// Splits
//   - Holds the three dataset splits at one resolution, already normalized,
//     plus the raw training labels needed for class-weight computation.
//
// Loaders
//   - Wraps the splits in gomlx InMemoryDataset batch iterators: the train
//     iterator reshuffles every epoch, validation/test iterate in order at
//     double the batch size.

// Info describes the fixed metadata the upstream collection publishes for a
// task: channel count and the label set. It is the single source of truth
// for the number of classes and for which label counts as "positive" when
// computing binary precision/recall/F1.
type Info struct {
	// Task is the upstream task identifier, e.g. "pneumoniamnist".
	Task string

	// Channels is the number of image channels (1 for the X-ray tasks).
	Channels int

	// Labels maps class index to its human-readable name.
	Labels map[int32]string

	// PositiveLabel is the class treated as positive by binary metrics.
	PositiveLabel int32
}

// NumClasses returns the size of the label set.
func (in Info) NumClasses() int { return len(in.Labels) }

// PneumoniaMNIST returns the fixed metadata for the pneumoniamnist task:
// single-channel chest X-rays, binary labels where 1 marks pneumonia.
func PneumoniaMNIST() Info {
	return Info{
		Task:     "pneumoniamnist",
		Channels: 1,
		Labels: map[int32]string{
			0: "normal",
			1: "pneumonia",
		},
		PositiveLabel: 1,
	}
}
