// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package artifacts

import (
	"encoding/json"
	"io"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/classifier"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// SaveHistory writes the training history as JSON.
func SaveHistory(path string, h *classifier.History) error {
	return writeJSON(path, h)
}

// LoadHistory reads a history written by SaveHistory.
func LoadHistory(path string) (*classifier.History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read history")
	}
	h := &classifier.History{}
	if err := json.Unmarshal(data, h); err != nil {
		return nil, errors.Wrapf(err, "invalid history in %q", path)
	}
	n := len(h.Loss)
	if len(h.Accuracy) != n || len(h.ValLoss) != n || len(h.ValAccuracy) != n {
		return nil, errors.Errorf("invalid history in %q: series have different lengths (%d, %d, %d, %d)",
			path, len(h.Loss), len(h.Accuracy), len(h.ValLoss), len(h.ValAccuracy))
	}
	return h, nil
}

// HistoryDataFrame returns the per-epoch history as a table, one row per epoch.
func HistoryDataFrame(h *classifier.History) dataframe.DataFrame {
	epochs := make([]int, h.NumEpochs())
	for ii := range epochs {
		epochs[ii] = ii + 1
	}
	return dataframe.New(
		series.New(epochs, series.Int, "epoch"),
		series.New(h.Loss, series.Float, "loss"),
		series.New(h.Accuracy, series.Float, "accuracy"),
		series.New(h.ValLoss, series.Float, "val_loss"),
		series.New(h.ValAccuracy, series.Float, "val_accuracy"),
	)
}

// SaveHistoryCSV writes the per-epoch history as CSV.
func SaveHistoryCSV(path string, h *classifier.History) error {
	df := HistoryDataFrame(h)
	if df.Err != nil {
		return errors.Wrap(df.Err, "failed to build history table")
	}
	return writeAtomic(path, func(w io.Writer) error {
		return errors.Wrapf(df.WriteCSV(w), "failed to write %q", path)
	})
}

func seriesXYs(values []float64) plotter.XYs {
	xys := make(plotter.XYs, len(values))
	for ii, v := range values {
		xys[ii].X = float64(ii + 1)
		xys[ii].Y = v
	}
	return xys
}

func newHistoryPlot(title, yLabel string, train, validation []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = yLabel
	p.Legend.Top = true
	if err := plotutil.AddLinePoints(p, "train", seriesXYs(train), "validation", seriesXYs(validation)); err != nil {
		return nil, errors.Wrapf(err, "failed to plot %s", title)
	}
	return p, nil
}

// PlotHistory renders the accuracy and loss curves, for training and validation, side by side in a PNG image.
func PlotHistory(path string, h *classifier.History) error {
	if h.NumEpochs() == 0 {
		return errors.New("cannot plot an empty history")
	}
	accuracy, err := newHistoryPlot("Accuracy", "accuracy", h.Accuracy, h.ValAccuracy)
	if err != nil {
		return err
	}
	loss, err := newHistoryPlot("Loss", "categorical cross-entropy", h.Loss, h.ValLoss)
	if err != nil {
		return err
	}

	plots := [][]*plot.Plot{{accuracy, loss}}
	img := vgimg.New(14*vg.Inch, 5*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 1, Cols: 2, PadX: vg.Millimeter, PadY: vg.Millimeter}
	canvases := plot.Align(plots, tiles, dc)
	for col, p := range plots[0] {
		p.Draw(canvases[0][col])
	}
	return writeAtomic(path, func(w io.Writer) error {
		_, err := vgimg.PngCanvas{Canvas: img}.WriteTo(w)
		return errors.Wrapf(err, "failed to write plot to %q", path)
	})
}
