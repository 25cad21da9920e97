// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/artifacts"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/classifier"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/labels"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/manifest"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/split"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samples(class string, n int) []manifest.Sample {
	s := make([]manifest.Sample, n)
	for ii := range s {
		s[ii] = manifest.Sample{Path: class + "/" + string(rune('a'+ii)) + ".png", Label: class}
	}
	return s
}

func TestManifestAndSplit(t *testing.T) {
	m := &manifest.Manifest{Root: "/data/fish", Samples: append(samples("Trout", 3), samples("Shrimp", 1)...)}
	var buf bytes.Buffer
	Manifest(&buf, m)
	out := buf.String()
	assert.Contains(t, out, "Trout")
	assert.Contains(t, out, "Shrimp")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "/data/fish")

	buf.Reset()
	Split(&buf, &split.Split{
		Config:     split.DefaultConfig,
		Train:      samples("Trout", 2),
		Validation: samples("Shrimp", 1),
		Test:       samples("Trout", 1),
	})
	out = buf.String()
	assert.Contains(t, out, "seed=42")
	assert.Contains(t, out, "Validation")
	assert.Contains(t, out, "Shrimp")
}

func TestHistory(t *testing.T) {
	var buf bytes.Buffer
	History(&buf, &classifier.History{
		Loss:         []float64{1.5, 1.0},
		Accuracy:     []float64{0.5, 0.75},
		ValLoss:      []float64{1.2, 1.3},
		ValAccuracy:  []float64{0.6, 0.55},
		TestLoss:     1.25,
		TestAccuracy: 0.58,
	})
	out := buf.String()
	assert.Contains(t, out, "1.5000")
	assert.Contains(t, out, "55.00%")
	assert.Contains(t, out, "test")
	assert.Contains(t, out, "58.00%")
}

func TestModelSummary(t *testing.T) {
	idx, err := labels.New([]string{"Shrimp", "Trout"})
	require.NoError(t, err)
	ctx := classifier.CreateDefaultContext()
	ctx.SetParam(classifier.ParamNumClasses, 2)
	ctx.In("model").In("head").VariableWithValue("weights", [][]float32{{1, 2}, {3, 4}})
	header := artifacts.NewModelHeader(ctx, idx)
	header.CreatedAt = time.Now().Add(-time.Hour)
	model := &artifacts.Model{Header: header, Context: ctx}

	var buf bytes.Buffer
	ModelSummary(&buf, "fish_classifier.gmlx", model)
	out := buf.String()
	assert.Contains(t, out, "fish_classifier.gmlx")
	assert.Contains(t, out, "Shrimp, Trout")
	assert.Contains(t, out, "Dense(128, relu)")
	assert.Contains(t, out, "# parameters")

	buf.Reset()
	Params(&buf, ctx)
	assert.Contains(t, buf.String(), classifier.ParamBackbone)
	assert.Contains(t, buf.String(), "inceptionv3")

	buf.Reset()
	Variables(&buf, ctx, "/model")
	assert.Contains(t, buf.String(), "weights")
	assert.Contains(t, buf.String(), "/model/head")
}
