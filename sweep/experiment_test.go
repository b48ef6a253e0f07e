package sweep

import (
	"math"
	"os"
	"testing"

	"github.com/Noofbiz/medBench/datasets"
	"github.com/Noofbiz/medBench/models"
	"github.com/gomlx/gomlx/backends"

	_ "github.com/gomlx/gomlx/backends/simplego"
)

// newTestBackend creates the portable Go backend with sequential op
// scheduling, which the many-branch mixture graphs require.
func newTestBackend(t *testing.T) backends.Backend {
	t.Helper()
	config := os.Getenv(backends.ConfigEnvVar)
	if config == "" {
		config = "go:ops_sequential"
	}
	backend, err := backends.NewWithConfig(config)
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	return backend
}

// syntheticSplit builds a trivially separable split at a tiny resolution:
// class 0 images are uniformly dark, class 1 images uniformly bright, labels
// alternating.
func syntheticSplit(n, res int) datasets.Split {
	images := make([]float32, n*res*res)
	labels := make([]int32, n)
	for i := range n {
		label := int32(i % 2)
		labels[i] = label
		v := float32(-0.8)
		if label == 1 {
			v = 0.8
		}
		for p := range res * res {
			images[i*res*res+p] = v
		}
	}
	return datasets.Split{Images: images, Labels: labels, Count: n, Res: res, Channels: 1}
}

func syntheticData(t *testing.T, backend backends.Backend, res, batchSize int) *ResolutionData {
	t.Helper()
	splits := &datasets.Splits{
		Info:       datasets.PneumoniaMNIST(),
		Resolution: res,
		Train:      syntheticSplit(32, res),
		Validation: syntheticSplit(16, res),
		Test:       syntheticSplit(16, res),
	}
	loaders, err := datasets.NewLoaders(backend, splits, batchSize)
	if err != nil {
		t.Fatalf("NewLoaders error: %v", err)
	}
	weights, err := datasets.ClassWeights(splits.TrainLabels(), splits.Info.NumClasses())
	if err != nil {
		t.Fatalf("ClassWeights error: %v", err)
	}
	return &ResolutionData{Splits: splits, Loaders: loaders, Weights: weights}
}

func newTestRunner(t *testing.T, epochs int) (*Runner, int) {
	t.Helper()
	const res = 4
	backend := newTestBackend(t)
	hyper := Hyperparameters{Epochs: epochs, BatchSize: 8, HiddenDim: 8, LearningRate: 0.01, Seed: 17}
	byRes := map[int]*ResolutionData{res: syntheticData(t, backend, res, hyper.BatchSize)}
	return NewRunner(backend, hyper, byRes), res
}

func checkMetrics(t *testing.T, name string, m Metrics) {
	t.Helper()
	for _, v := range []float64{m.Accuracy, m.Precision, m.Recall, m.F1} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			t.Fatalf("%s metrics outside [0,1]: %+v", name, m)
		}
	}
	if len(m.Confusion) != 2 || len(m.Confusion[0]) != 2 {
		t.Fatalf("%s confusion matrix shape wrong: %v", name, m.Confusion)
	}
}

func TestRunMLPExperiment(t *testing.T) {
	runner, res := newTestRunner(t, 2)
	result, err := runner.Run(ExperimentConfig{Model: models.KindMLP, Resolution: res, Balanced: true})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(result.EpochLosses) != 2 {
		t.Fatalf("expected 2 epoch losses, got %d", len(result.EpochLosses))
	}
	for i, l := range result.EpochLosses {
		if math.IsNaN(l) || math.IsInf(l, 0) {
			t.Fatalf("non-finite loss at epoch %d: %v", i, l)
		}
	}
	checkMetrics(t, "validation", result.Validation)
	checkMetrics(t, "test", result.Test)
}

func TestRunMoEExperiment(t *testing.T) {
	runner, res := newTestRunner(t, 1)
	result, err := runner.Run(ExperimentConfig{Model: models.KindMoE, Resolution: res, NumExperts: 2})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(result.EpochLosses) != 1 {
		t.Fatalf("expected 1 epoch loss, got %d", len(result.EpochLosses))
	}
	checkMetrics(t, "validation", result.Validation)
	checkMetrics(t, "test", result.Test)
}

func TestRunZeroEpochsEvaluatesUntrainedModel(t *testing.T) {
	runner, res := newTestRunner(t, 0)
	result, err := runner.Run(ExperimentConfig{Model: models.KindMLP, Resolution: res})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(result.EpochLosses) != 0 {
		t.Fatalf("expected no epoch losses, got %v", result.EpochLosses)
	}
	checkMetrics(t, "validation", result.Validation)
}

func TestRunMoEWithoutExpertsFails(t *testing.T) {
	runner, res := newTestRunner(t, 1)
	if _, err := runner.Run(ExperimentConfig{Model: models.KindMoE, Resolution: res}); err == nil {
		t.Fatal("expected configuration error for MoE without experts")
	}
}

func TestRunUnknownResolutionFails(t *testing.T) {
	runner, _ := newTestRunner(t, 1)
	if _, err := runner.Run(ExperimentConfig{Model: models.KindMLP, Resolution: 999}); err == nil {
		t.Fatal("expected error for resolution with no loaded data")
	}
}

func TestSweepAccumulatesResultsInOrder(t *testing.T) {
	runner, res := newTestRunner(t, 1)
	grid := Grid([]int{res}, []int{2})
	if len(grid) != 4 {
		t.Fatalf("grid has %d configurations, want 4", len(grid))
	}
	results, err := runner.Sweep(grid)
	if err != nil {
		t.Fatalf("Sweep error: %v", err)
	}
	if len(results) != len(grid) {
		t.Fatalf("got %d results for %d configurations", len(results), len(grid))
	}
	for i := range grid {
		if results[i].Config != grid[i] {
			t.Fatalf("result %d has config %+v, want %+v", i, results[i].Config, grid[i])
		}
	}
}

func TestSweepAbortsOnFirstFailure(t *testing.T) {
	runner, res := newTestRunner(t, 1)
	grid := []ExperimentConfig{
		{Model: models.KindMLP, Resolution: res},
		{Model: models.KindMoE, Resolution: res}, // invalid: no experts
		{Model: models.KindMLP, Resolution: res, Balanced: true},
	}
	if _, err := runner.Sweep(grid); err == nil {
		t.Fatal("expected sweep to fail on the invalid configuration")
	}
}
