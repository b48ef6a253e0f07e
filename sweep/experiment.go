// Package sweep drives the experiment grid: for every configuration it
// builds a model, trains it for a fixed number of epochs, evaluates it on
// the validation and test splits and accumulates the results for reporting.
package sweep

import (
	"fmt"

	"github.com/Noofbiz/medBench/datasets"
	"github.com/Noofbiz/medBench/models"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"k8s.io/klog/v2"
)

// ExperimentConfig identifies one run of the sweep. It is immutable once
// constructed; NumExperts is only set for mixture-of-experts runs.
type ExperimentConfig struct {
	Model      models.Kind
	Resolution int
	NumExperts int
	Balanced   bool
}

// Name returns a short identifier used in logs and plot file names, e.g.
// "moe_r224_e4_balanced".
func (c ExperimentConfig) Name() string {
	name := fmt.Sprintf("%s_r%d", c.Model, c.Resolution)
	if c.Model == models.KindMoE {
		name += fmt.Sprintf("_e%d", c.NumExperts)
	}
	if c.Balanced {
		name += "_balanced"
	}
	return name
}

// ExperimentResult pairs a configuration with its metrics on both held-out
// splits. Results accumulate in sweep order and are serialized once at the
// end of the run.
type ExperimentResult struct {
	Config      ExperimentConfig
	Validation  Metrics
	Test        Metrics
	EpochLosses []float64
}

// Hyperparameters are the training constants shared by every configuration
// in the sweep.
type Hyperparameters struct {
	Epochs       int
	BatchSize    int
	HiddenDim    int
	LearningRate float64

	// Seed fixes the parameter-initialization RNG for every run; 0 leaves
	// initialization nondeterministic.
	Seed int64
}

// ResolutionData is everything loaded once per resolution and reused across
// all configurations at that resolution: the splits, their batch iterators
// and the inverse-frequency class weights.
type ResolutionData struct {
	Splits  *datasets.Splits
	Loaders *datasets.Loaders
	Weights []float32
}

// Runner executes experiments sequentially against a single backend. The
// backend is selected once, before any experiment runs, and shared read-only
// by every run.
type Runner struct {
	backend backends.Backend
	hyper   Hyperparameters
	byRes   map[int]*ResolutionData
}

// NewRunner returns a runner over the preloaded per-resolution data.
func NewRunner(backend backends.Backend, hyper Hyperparameters, byRes map[int]*ResolutionData) *Runner {
	return &Runner{backend: backend, hyper: hyper, byRes: byRes}
}

// Run executes a single configuration to completion: model construction
// (failing fast on configuration errors), training, then evaluation on the
// validation and test iterators. The model's parameters live in a fresh
// context and are discarded when the run finishes.
func (r *Runner) Run(cfg ExperimentConfig) (ExperimentResult, error) {
	res, ok := r.byRes[cfg.Resolution]
	if !ok {
		return ExperimentResult{}, fmt.Errorf("no dataset loaded for resolution %d", cfg.Resolution)
	}
	info := res.Splits.Info

	modelCfg := models.Config{
		Kind:       cfg.Model,
		InputDim:   res.Splits.Train.InputDim(),
		HiddenDim:  r.hyper.HiddenDim,
		NumClasses: info.NumClasses(),
		NumExperts: cfg.NumExperts,
	}
	if err := modelCfg.Validate(); err != nil {
		return ExperimentResult{}, fmt.Errorf("configuration %s rejected: %w", cfg.Name(), err)
	}

	var classWeights []float32
	if cfg.Balanced {
		classWeights = res.Weights
	}

	ctx := context.New()
	if r.hyper.Seed != 0 {
		ctx.RngStateFromSeed(r.hyper.Seed)
	}
	trainer := train.NewTrainer(r.backend, ctx, modelCfg.ModelFn(),
		CrossEntropyLoss(classWeights),
		optimizers.Adam().LearningRate(r.hyper.LearningRate).Done(),
		nil, nil)

	epochLosses, err := Train(trainer, res.Loaders.Train, r.hyper.Epochs)
	if err != nil {
		return ExperimentResult{}, fmt.Errorf("training %s failed: %w", cfg.Name(), err)
	}

	valMetrics, err := EvaluateSplit(r.backend, ctx, modelCfg, res.Loaders.Validation, info.PositiveLabel)
	if err != nil {
		return ExperimentResult{}, fmt.Errorf("validation evaluation of %s failed: %w", cfg.Name(), err)
	}
	testMetrics, err := EvaluateSplit(r.backend, ctx, modelCfg, res.Loaders.Test, info.PositiveLabel)
	if err != nil {
		return ExperimentResult{}, fmt.Errorf("test evaluation of %s failed: %w", cfg.Name(), err)
	}

	klog.Infof("%s: val acc=%.4f f1=%.4f | test acc=%.4f f1=%.4f",
		cfg.Name(), valMetrics.Accuracy, valMetrics.F1, testMetrics.Accuracy, testMetrics.F1)

	return ExperimentResult{
		Config:      cfg,
		Validation:  valMetrics,
		Test:        testMetrics,
		EpochLosses: epochLosses,
	}, nil
}

// Grid expands the sweep's nested loops (resolution, then model type, then
// expert count, then balancing) into the ordered configuration list.
func Grid(resolutions, expertCounts []int) []ExperimentConfig {
	var grid []ExperimentConfig
	for _, res := range resolutions {
		for _, balanced := range []bool{false, true} {
			grid = append(grid, ExperimentConfig{Model: models.KindMLP, Resolution: res, Balanced: balanced})
		}
		for _, experts := range expertCounts {
			for _, balanced := range []bool{false, true} {
				grid = append(grid, ExperimentConfig{
					Model:      models.KindMoE,
					Resolution: res,
					NumExperts: experts,
					Balanced:   balanced,
				})
			}
		}
	}
	return grid
}

// Sweep runs every configuration of the grid in order, fully sequentially.
// The first failure aborts the remaining configurations; there is no
// catch-and-continue policy.
func (r *Runner) Sweep(grid []ExperimentConfig) ([]ExperimentResult, error) {
	results := make([]ExperimentResult, 0, len(grid))
	for i, cfg := range grid {
		klog.Infof("experiment %d/%d: %s", i+1, len(grid), cfg.Name())
		result, err := r.Run(cfg)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}
