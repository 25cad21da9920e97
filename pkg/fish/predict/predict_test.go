// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package predict

import (
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/artifacts"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/classifier"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/labels"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

func TestBestClass(t *testing.T) {
	assert.Equal(t, -1, BestClass(nil))
	assert.Equal(t, 2, BestClass([]float32{0.1, 0.2, 0.7}))
	assert.Equal(t, 0, BestClass([]float32{0.4, 0.4, 0.2}), "ties go to the lowest index")
}

func solidImage(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 20, 12))
	for y := range 12 {
		for x := range 20 {
			img.Set(x, y, c)
		}
	}
	return img
}

// randomModel saves a model with randomly initialized weights, and returns the probabilities it assigns
// to each of the images.
func randomModel(t *testing.T, backend backends.Backend, dir string, idx *labels.Index, imgs []image.Image) (paths artifacts.Paths, want [][]float32) {
	ctx := classifier.CreateDefaultContext()
	ctx.SetParams(map[string]any{
		classifier.ParamBackbone:   classifier.BackboneMeanPool,
		classifier.ParamImageSize:  8,
		classifier.ParamNumClasses: idx.NumClasses(),
	})
	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, images *Node) *Node {
		logits := classifier.ModelGraph(ctx, nil, []*Node{images})[0]
		return Softmax(logits, -1)
	})
	for _, img := range imgs {
		input := pipeline.PreprocessImage(img, 8, pipeline.KerasTF)
		want = append(want, tensors.CopyFlatData[float32](exec.MustExec1(input)))
	}

	paths = artifacts.Paths{Dir: dir}
	require.NoError(t, artifacts.SaveLabelIndex(paths.LabelIndex(), idx))
	require.NoError(t, artifacts.SaveModel(ctx, paths.Model(), artifacts.NewModelHeader(ctx, idx)))
	return
}

func TestPredictor(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping model execution in short mode")
		return
	}
	backend := backends.MustNew()
	idx, err := labels.New([]string{"Shrimp", "Sea Bass", "Trout"})
	require.NoError(t, err)
	imgs := []image.Image{
		solidImage(color.RGBA{R: 255, A: 255}),
		solidImage(color.RGBA{G: 200, B: 30, A: 255}),
		solidImage(color.RGBA{B: 255, A: 255}),
	}
	paths, want := randomModel(t, backend, t.TempDir(), idx, imgs)

	p, err := Load(backend, paths.Model(), paths.LabelIndex())
	require.NoError(t, err)
	assert.Equal(t, 8, p.Info().ImageSize)
	assert.Equal(t, idx.Hash(), p.Index().Hash())

	for ii, img := range imgs {
		probs, err := p.Probabilities(img)
		require.NoError(t, err)
		require.Len(t, probs, 3)
		assert.InDeltaSlice(t, want[ii], probs, 1e-5)
		var sum float32
		for _, prob := range probs {
			sum += prob
		}
		assert.InDelta(t, 1.0, sum, 1e-5)

		prediction, err := p.Predict(img)
		require.NoError(t, err)
		best := BestClass(want[ii])
		assert.Equal(t, best, prediction.ClassIndex)
		assert.Equal(t, idx.Names()[best], prediction.Species)
		assert.InDelta(t, want[ii][best], prediction.Confidence, 1e-5)
	}

	// Concurrent calls are serialized and return the same results.
	var wg sync.WaitGroup
	results := make([]*Prediction, 8)
	for ii := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[ii], _ = p.Predict(imgs[ii%len(imgs)])
		}()
	}
	wg.Wait()
	for ii, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, BestClass(want[ii%len(imgs)]), r.ClassIndex)
	}
}

func TestPredictorLabelMismatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping model execution in short mode")
		return
	}
	backend := backends.MustNew()
	idx, err := labels.New([]string{"Shrimp", "Trout"})
	require.NoError(t, err)
	dir := t.TempDir()
	paths, _ := randomModel(t, backend, dir, idx, nil)

	other, err := labels.New([]string{"Salmon", "Trout"})
	require.NoError(t, err)
	otherPath := filepath.Join(dir, "other.json")
	require.NoError(t, artifacts.SaveLabelIndex(otherPath, other))
	_, err = Load(backend, paths.Model(), otherPath)
	var buildErr *fish.ModelBuildError
	require.True(t, errors.As(err, &buildErr))
}
