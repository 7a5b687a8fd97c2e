package visualize

import (
	"os"
	"path/filepath"

	"github.com/nvr-ai/go-ml-eval/evaluation"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// NamedCurve is a precision/recall curve with a legend entry.
type NamedCurve struct {
	Name  string
	Curve evaluation.Curve
}

// PlotPRCurve draws one line per curve, recall on X and precision on Y, and
// saves the plot to path. The format follows the extension (.png, .svg, .pdf).
func PlotPRCurve(path string, curves []NamedCurve) error {
	p := plot.New()
	p.Title.Text = "Precision / Recall"
	p.X.Label.Text = "Recall"
	p.Y.Label.Text = "Precision"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	for i, c := range curves {
		n := min(len(c.Curve.Recall), len(c.Curve.Precision))
		if n == 0 {
			continue
		}
		xys := make(plotter.XYs, n)
		for j := 0; j < n; j++ {
			xys[j].X = c.Curve.Recall[j]
			xys[j].Y = c.Curve.Precision[j]
		}

		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrapf(err, "failed to build line for %s", c.Name)
		}
		line.Color = ClassColor(i)
		p.Add(line)
		if c.Name != "" {
			p.Legend.Add(c.Name, line)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}
	return errors.Wrapf(p.Save(4*vg.Inch, 4*vg.Inch, path), "failed to save plot %s", path)
}
