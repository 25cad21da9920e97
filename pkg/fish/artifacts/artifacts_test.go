// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package artifacts

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/classifier"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/labels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIndex(t *testing.T, names ...string) *labels.Index {
	idx, err := labels.New(names)
	require.NoError(t, err)
	return idx
}

func noTempFiles(t *testing.T, dir string) {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), "temporary file %q left behind", e.Name())
	}
}

func TestLabelIndex(t *testing.T) {
	paths := Paths{Dir: filepath.Join(t.TempDir(), "out")}
	idx := testIndex(t, "Trout", "Shrimp", "Sea Bass")
	require.NoError(t, SaveLabelIndex(paths.LabelIndex(), idx))
	loaded, err := LoadLabelIndex(paths.LabelIndex())
	require.NoError(t, err)
	assert.Equal(t, idx.Names(), loaded.Names())
	assert.Equal(t, idx.Hash(), loaded.Hash())
	noTempFiles(t, paths.Dir)

	// Overwrite in place.
	idx2 := testIndex(t, "Trout", "Shrimp")
	require.NoError(t, SaveLabelIndex(paths.LabelIndex(), idx2))
	loaded, err = LoadLabelIndex(paths.LabelIndex())
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.NumClasses())

	// Legacy bare mapping.
	legacy := filepath.Join(paths.Dir, "legacy.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{"Shrimp": 0, "Trout": 1}`), 0644))
	loaded, err = LoadLabelIndex(legacy)
	require.NoError(t, err)
	assert.Equal(t, idx2.Hash(), loaded.Hash())

	_, err = LoadLabelIndex(filepath.Join(paths.Dir, "missing.json"))
	require.Error(t, err)
}

func testHistory() *classifier.History {
	return &classifier.History{
		Loss:         []float64{1.2, 0.8, 0.5},
		Accuracy:     []float64{0.5, 0.7, 0.85},
		ValLoss:      []float64{1.0, 0.7, 0.6},
		ValAccuracy:  []float64{0.6, 0.75, 0.8},
		TestLoss:     0.65,
		TestAccuracy: 0.79,
	}
}

func TestHistory(t *testing.T) {
	paths := Paths{Dir: t.TempDir()}
	h := testHistory()
	require.NoError(t, SaveHistory(paths.History(), h))
	loaded, err := LoadHistory(paths.History())
	require.NoError(t, err)
	assert.Equal(t, h, loaded)

	data, err := os.ReadFile(paths.History())
	require.NoError(t, err)
	for _, key := range []string{`"loss"`, `"accuracy"`, `"val_loss"`, `"val_accuracy"`, `"test_accuracy"`} {
		assert.Contains(t, string(data), key)
	}

	require.NoError(t, SaveHistoryCSV(paths.HistoryCSV(), h))
	data, err = os.ReadFile(paths.HistoryCSV())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "epoch,loss,accuracy,val_loss,val_accuracy", lines[0])

	require.NoError(t, PlotHistory(paths.HistoryPlot(), h))
	data, err = os.ReadFile(paths.HistoryPlot())
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	noTempFiles(t, paths.Dir)

	require.Error(t, PlotHistory(paths.HistoryPlot(), &classifier.History{}))

	bad := filepath.Join(paths.Dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"loss":[1,2],"accuracy":[1]}`), 0644))
	_, err = LoadHistory(bad)
	require.Error(t, err)
}

// modelContext creates a context with the classifier hyperparameters and a couple of variables,
// standing for a trained model.
func modelContext(numClasses int) *context.Context {
	ctx := classifier.CreateDefaultContext()
	ctx.SetParams(map[string]any{
		classifier.ParamBackbone:   classifier.BackboneMeanPool,
		classifier.ParamNumClasses: numClasses,
		classifier.ParamImageSize:  8,
	})
	head := ctx.In("model").In("head")
	head.VariableWithValue("weights", [][]float32{{1, 2}, {3, 4}, {5, 6}})
	head.VariableWithValue("biases", []float32{0.5, -0.5})
	ctx.In("optimizers").VariableWithValue("adam_moments", []float32{7, 8})
	return ctx
}

func TestModel(t *testing.T) {
	paths := Paths{Dir: t.TempDir()}
	idx := testIndex(t, "Shrimp", "Trout")
	ctx := modelContext(idx.NumClasses())
	header := NewModelHeader(ctx, idx)
	header.TestAccuracy = 0.9
	require.NoError(t, SaveModel(ctx, paths.Model(), header))
	noTempFiles(t, paths.Dir)

	onlyHeader, err := LoadModelHeader(paths.Model())
	require.NoError(t, err)
	assert.Equal(t, classifier.BackboneMeanPool, onlyHeader.Backbone)
	assert.Equal(t, 8, onlyHeader.ImageSize)
	assert.Equal(t, 2, onlyHeader.HiddenLayers)
	assert.Equal(t, 128, onlyHeader.HiddenNodes)
	assert.Equal(t, "keras_tf", onlyHeader.Normalization)
	assert.Equal(t, []string{"Shrimp", "Trout"}, onlyHeader.ClassNames)
	assert.Equal(t, ModelFormatVersion, onlyHeader.FormatVersion)

	model, err := LoadModel(paths.Model())
	require.NoError(t, err)
	assert.Equal(t, idx.Hash(), model.Header.LabelHash)
	assert.Equal(t, 2, context.GetParamOr(model.Context, classifier.ParamNumClasses, 0))
	assert.Equal(t, classifier.BackboneMeanPool, context.GetParamOr(model.Context, classifier.ParamBackbone, ""))

	weights := model.Context.GetVariableByScopeAndName("/model/head", "weights")
	require.NotNil(t, weights)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, tensors.CopyFlatData[float32](weights.Value()))
	assert.Nil(t, model.Context.GetVariableByScopeAndName("/optimizers", "adam_moments"),
		"optimizer state should not be saved")

	require.NoError(t, model.Verify(idx))
	var buildErr *fish.ModelBuildError
	require.True(t, errors.As(model.Verify(testIndex(t, "Shrimp", "Trout", "Sea Bass")), &buildErr))
	require.True(t, errors.As(model.Verify(testIndex(t, "Shrimp", "Salmon")), &buildErr))
}

func TestLoadModelErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadModel(filepath.Join(dir, "missing.gmlx"))
	require.Error(t, err)

	notModel := filepath.Join(dir, "not_a_model.gmlx")
	require.NoError(t, os.WriteFile(notModel, []byte("PK\x03\x04 this is a zip file"), 0644))
	_, err = LoadModel(notModel)
	require.ErrorContains(t, err, "not a fish classifier model")

	truncated := filepath.Join(dir, "truncated.gmlx")
	require.NoError(t, os.WriteFile(truncated, []byte(modelMagic+"\x00\x01"), 0644))
	_, err = LoadModel(truncated)
	require.ErrorContains(t, err, "corrupted")
}
