package sweep

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SaveLossCurves writes one training-loss curve PNG per experiment into
// outDir. Experiments trained for zero epochs have no curve and are skipped.
func SaveLossCurves(outDir string, results []ExperimentResult) error {
	if err := ensureDir(outDir); err != nil {
		return err
	}
	for _, res := range results {
		if len(res.EpochLosses) == 0 {
			continue
		}
		if err := lossCurve(outDir, res.Config.Name(), res.EpochLosses); err != nil {
			return fmt.Errorf("failed to plot loss curve for %s: %w", res.Config.Name(), err)
		}
	}
	return nil
}

// lossCurve plots mean per-sample loss against epoch number.
func lossCurve(outDir, name string, losses []float64) error {
	p := plot.New()
	p.Title.Text = name
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "mean loss"

	xys := make(plotter.XYs, len(losses))
	for i, l := range losses {
		xys[i] = plotter.XY{X: float64(i + 1), Y: l}
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 20, G: 80, B: 200, A: 220}
	line.Width = vg.Points(1.2)
	p.Add(line, plotter.NewGrid())

	outPath := filepath.Join(outDir, name+"_loss.png")
	return p.Save(6*vg.Inch, 4*vg.Inch, outPath)
}

func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
