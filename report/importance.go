// Package report renders training summaries.
package report

import (
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/replenish/forecast"
	"github.com/YuminosukeSato/replenish/pkg/errors"
)

// ImportanceChart draws a horizontal bar chart of the top n features, the
// most important at the top. n <= 0 draws every feature.
func ImportanceChart(info *forecast.ModelInfo, n int) (*plot.Plot, error) {
	items := info.FeatureImportance
	if n > 0 && len(items) > n {
		items = items[:n]
	}
	if len(items) == 0 {
		return nil, errors.NewInputError("report.ImportanceChart", errors.Scope{}, errors.ErrEmptyData)
	}

	// bars are drawn bottom-up
	values := make(plotter.Values, len(items))
	names := make([]string, len(items))
	for i, fi := range items {
		j := len(items) - 1 - i
		values[j] = fi.ImportanceScore
		names[j] = fi.FeatureName
	}

	p := plot.New()
	p.Title.Text = "Feature importance (" + info.ModelVersion + ")"
	p.X.Label.Text = "normalised gain"
	p.X.Min = 0

	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build bar chart")
	}
	bars.Horizontal = true
	bars.Color = color.RGBA{R: 66, G: 133, B: 244, A: 255}
	bars.LineStyle.Width = 0
	p.Add(bars, plotter.NewGrid())
	p.NominalY(names...)
	return p, nil
}

// SaveImportanceChart writes the chart to path. The format follows the
// file extension (png, svg, pdf).
func SaveImportanceChart(path string, info *forecast.ModelInfo, n int) error {
	p, err := ImportanceChart(info, n)
	if err != nil {
		return err
	}
	if err := p.Save(7*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save chart to %s", filepath.Base(path))
	}
	return nil
}
