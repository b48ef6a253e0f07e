package sweep

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/Noofbiz/medBench/models"
	"github.com/gocarina/gocsv"
)

// FlatResult is one row of the results table: the configuration columns
// followed by the per-split metrics, with each metric prefixed by its split
// name. The confusion matrices ride along as serialized strings so the full
// record survives in the CSV even though the printed summary omits them.
type FlatResult struct {
	ModelType  string `csv:"model_type"`
	Resolution int    `csv:"resolution"`
	NumExperts *int   `csv:"num_experts"`
	Balanced   bool   `csv:"balanced"`

	ValidationAccuracy  float64 `csv:"validation_accuracy"`
	ValidationPrecision float64 `csv:"validation_precision"`
	ValidationRecall    float64 `csv:"validation_recall"`
	ValidationF1        float64 `csv:"validation_f1_score"`

	TestAccuracy  float64 `csv:"test_accuracy"`
	TestPrecision float64 `csv:"test_precision"`
	TestRecall    float64 `csv:"test_recall"`
	TestF1        float64 `csv:"test_f1_score"`

	ValidationConfusion string `csv:"validation_confusion_matrix"`
	TestConfusion       string `csv:"test_confusion_matrix"`
}

// Flatten converts the ordered experiment results into table rows, one row
// per result. The expert count column stays empty for single-network runs.
func Flatten(results []ExperimentResult) []FlatResult {
	rows := make([]FlatResult, 0, len(results))
	for _, res := range results {
		row := FlatResult{
			ModelType:  string(res.Config.Model),
			Resolution: res.Config.Resolution,
			Balanced:   res.Config.Balanced,

			ValidationAccuracy:  res.Validation.Accuracy,
			ValidationPrecision: res.Validation.Precision,
			ValidationRecall:    res.Validation.Recall,
			ValidationF1:        res.Validation.F1,

			TestAccuracy:  res.Test.Accuracy,
			TestPrecision: res.Test.Precision,
			TestRecall:    res.Test.Recall,
			TestF1:        res.Test.F1,

			ValidationConfusion: fmt.Sprint(res.Validation.Confusion),
			TestConfusion:       fmt.Sprint(res.Test.Confusion),
		}
		if res.Config.Model == models.KindMoE {
			experts := res.Config.NumExperts
			row.NumExperts = &experts
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteCSV persists the full flattened table. This happens once, at the end
// of the sweep.
func WriteCSV(path string, rows []FlatResult) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create results CSV %s: %w", path, err)
	}
	defer f.Close()

	if err := gocsv.Marshal(&rows, f); err != nil {
		return fmt.Errorf("failed to write results CSV %s: %w", path, err)
	}
	return nil
}

// PrintSummary renders the key columns of the results table for the console.
func PrintSummary(w io.Writer, rows []FlatResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "model\tres\texperts\tbalanced\tval_acc\tval_f1\ttest_acc\ttest_f1")
	for _, row := range rows {
		experts := "-"
		if row.NumExperts != nil {
			experts = fmt.Sprintf("%d", *row.NumExperts)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%v\t%.4f\t%.4f\t%.4f\t%.4f\n",
			row.ModelType, row.Resolution, experts, row.Balanced,
			row.ValidationAccuracy, row.ValidationF1,
			row.TestAccuracy, row.TestF1)
	}
	tw.Flush()
}
