// medbench runs the full MLP-vs-mixture-of-experts sweep over the
// PneumoniaMNIST dataset and writes the aggregated metrics table.
//
//  1. Downloads the dataset archives for each resolution (unless -download=false).
//  2. Trains and evaluates every configuration of the grid, sequentially.
//  3. Prints a summary table and persists the flattened results as CSV.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Noofbiz/medBench/datasets"
	"github.com/Noofbiz/medBench/sweep"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/simplego"
)

const (
	defaultEpochs       = 5
	defaultBatchSize    = 32
	defaultHiddenDim    = 128
	defaultLearningRate = 0.001
	defaultExperts      = "2,4,8"
	defaultResolutions  = "64,224"
	defaultSeed         = int64(0)
)

var (
	flagData     = flag.String("data", "assets/medmnist", "directory to cache downloaded dataset archives")
	flagDownload = flag.Bool("download", true, "download dataset archives when missing")
	flagOutCSV   = flag.String("out-csv", "output/results.csv", "path for the flattened results table")
	flagPlots    = flag.String("plots", "", "if set, write per-experiment training-loss curve PNGs to this directory")
	flagConfig   = flag.String("config", "", "optional JSON tunables file; CLI flags take precedence")

	flagEpochs       = flag.Int("epochs", defaultEpochs, "training epochs per configuration")
	flagBatchSize    = flag.Int("batch-size", defaultBatchSize, "training batch size (evaluation uses double)")
	flagHiddenDim    = flag.Int("hidden", defaultHiddenDim, "hidden layer width for the MLP and each expert")
	flagLearningRate = flag.Float64("learning-rate", defaultLearningRate, "Adam learning rate")
	flagSeed         = flag.Int64("seed", defaultSeed, "parameter-initialization seed; 0 leaves it nondeterministic")
	flagExperts      = flag.String("experts", defaultExperts, "comma-separated expert counts for the MoE runs")
	flagResolutions  = flag.String("resolutions", defaultResolutions, "comma-separated input resolutions")
)

// tunables mirrors the optional JSON configuration file. JSON values apply
// only where the corresponding CLI flag was left at its default.
type tunables struct {
	Training *struct {
		Epochs       *int     `json:"epochs"`
		BatchSize    *int     `json:"batch_size"`
		HiddenDim    *int     `json:"hidden_dim"`
		LearningRate *float64 `json:"learning_rate"`
		Seed         *int64   `json:"seed"`
	} `json:"training"`
	Sweep *struct {
		ExpertCounts []int `json:"expert_counts"`
		Resolutions  []int `json:"resolutions"`
	} `json:"sweep"`
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	err := exceptions.TryCatch[error](func() {
		expertCounts := must.M1(parseIntList(*flagExperts))
		resolutions := must.M1(parseIntList(*flagResolutions))
		applyTunables(*flagConfig, &expertCounts, &resolutions)

		backend := must.M1(newBackend())
		klog.Infof("using backend %s", backend.Name())

		byRes := make(map[int]*sweep.ResolutionData, len(resolutions))
		for _, res := range resolutions {
			klog.Infof("loading %s at resolution %d...", datasets.PneumoniaMNIST().Task, res)
			splits := must.M1(datasets.Load(*flagData, res, *flagDownload))
			loaders := must.M1(datasets.NewLoaders(backend, splits, *flagBatchSize))
			weights := must.M1(datasets.ClassWeights(splits.TrainLabels(), splits.Info.NumClasses()))
			klog.Infof("resolution %d: train=%d val=%d test=%d class weights=%v",
				res, splits.Train.Count, splits.Validation.Count, splits.Test.Count, weights)
			byRes[res] = &sweep.ResolutionData{Splits: splits, Loaders: loaders, Weights: weights}
		}

		runner := sweep.NewRunner(backend, sweep.Hyperparameters{
			Epochs:       *flagEpochs,
			BatchSize:    *flagBatchSize,
			HiddenDim:    *flagHiddenDim,
			LearningRate: *flagLearningRate,
			Seed:         *flagSeed,
		}, byRes)

		grid := sweep.Grid(resolutions, expertCounts)
		klog.Infof("running %d experiments", len(grid))
		results := must.M1(runner.Sweep(grid))

		rows := sweep.Flatten(results)
		sweep.PrintSummary(os.Stdout, rows)
		must.M(sweep.WriteCSV(*flagOutCSV, rows))
		klog.Infof("results table written to %s (%d rows)", *flagOutCSV, len(rows))

		if *flagPlots != "" {
			must.M(sweep.SaveLossCurves(*flagPlots, results))
			klog.Infof("loss curves written to %s", *flagPlots)
		}
	})
	if err != nil {
		klog.Exitf("medbench failed: %+v", err)
	}
}

// newBackend selects the computation backend: $GOMLX_BACKEND when set,
// otherwise the portable Go backend with sequential op scheduling. Its
// worker pool deadlocks on graphs with many parallel matmul branches (the
// mixture models) when ops are scheduled concurrently.
func newBackend() (backends.Backend, error) {
	if _, ok := os.LookupEnv(backends.ConfigEnvVar); ok {
		return backends.New()
	}
	return backends.NewWithConfig("go:ops_sequential")
}

// applyTunables merges the JSON tunables file into the run configuration.
// Values set explicitly on the command line always win; a missing file path
// is fine, a present but unreadable or malformed file is fatal.
func applyTunables(path string, expertCounts, resolutions *[]int) {
	if strings.TrimSpace(path) == "" {
		return
	}
	raw := must.M1(os.ReadFile(path))
	var t tunables
	must.M(json.Unmarshal(raw, &t))

	if t.Training != nil {
		tr := t.Training
		if tr.Epochs != nil && *flagEpochs == defaultEpochs {
			*flagEpochs = *tr.Epochs
		}
		if tr.BatchSize != nil && *flagBatchSize == defaultBatchSize {
			*flagBatchSize = *tr.BatchSize
		}
		if tr.HiddenDim != nil && *flagHiddenDim == defaultHiddenDim {
			*flagHiddenDim = *tr.HiddenDim
		}
		if tr.LearningRate != nil && *flagLearningRate == defaultLearningRate {
			*flagLearningRate = *tr.LearningRate
		}
		if tr.Seed != nil && *flagSeed == defaultSeed {
			*flagSeed = *tr.Seed
		}
	}
	if t.Sweep != nil {
		if len(t.Sweep.ExpertCounts) > 0 && *flagExperts == defaultExperts {
			*expertCounts = t.Sweep.ExpertCounts
		}
		if len(t.Sweep.Resolutions) > 0 && *flagResolutions == defaultResolutions {
			*resolutions = t.Sweep.Resolutions
		}
	}
	klog.Infof("applied tunables from %s", path)
}

// parseIntList parses a comma-separated list of positive integers.
func parseIntList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid list entry %q: %w", p, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("list entries must be positive, got %d", v)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty list %q", s)
	}
	return out, nil
}
