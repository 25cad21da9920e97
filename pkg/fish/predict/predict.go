// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package predict classifies single fish images with a trained model.
//
// Create a Predictor with Load (or New) once, and call Predict for each image. The images go through the
// same resizing and normalization used for training, as recorded in the model header.
package predict

import (
	"image"
	"sync"

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
	"k8s.io/klog/v2"
)

// Prediction for one image.
type Prediction struct {
	// ClassIndex is the index of the most probable class. Ties go to the lowest index.
	ClassIndex int

	// Species is the name of the class at ClassIndex.
	Species string

	// Confidence is the probability of the predicted class.
	Confidence float32

	// Probabilities of all classes, in label index order.
	Probabilities []float32
}

// Predictor holds the model compiled for single image inference.
// It's safe for concurrent use, but calls are serialized.
type Predictor struct {
	header artifacts.ModelHeader
	index  *labels.Index
	norm   pipeline.Normalization

	// ctx with the model's weights.
	ctx *context.Context

	mu   sync.Mutex
	exec *context.Exec
}

// Load the model at modelPath and the label index at indexPath, and creates a Predictor.
// The label index must be the one the model was trained with.
func Load(backend backends.Backend, modelPath, indexPath string) (*Predictor, error) {
	model, err := artifacts.LoadModel(modelPath)
	if err != nil {
		return nil, err
	}
	idx, err := artifacts.LoadLabelIndex(indexPath)
	if err != nil {
		return nil, err
	}
	return New(backend, model, idx)
}

// New creates a Predictor for a loaded model.
func New(backend backends.Backend, model *artifacts.Model, idx *labels.Index) (*Predictor, error) {
	if err := model.Verify(idx); err != nil {
		return nil, err
	}
	norm, err := pipeline.NormalizationByName(model.Header.Normalization)
	if err != nil {
		return nil, fish.NewModelBuildError("model has an invalid normalization: %v", err)
	}
	if model.Header.ImageSize <= 0 {
		return nil, fish.NewModelBuildError("model has an invalid image size %d", model.Header.ImageSize)
	}

	// The weights come from the model file: the backbone must not try to load its pre-trained weights.
	ctx := model.Context
	ctx.SetParam(classifier.ParamPretrained, false)
	if err := classifier.CheckArchitecture(ctx); err != nil {
		return nil, err
	}
	ctx = ctx.Reuse() // It will be an error to create new variables: all should have been loaded.

	p := &Predictor{header: model.Header, index: idx, norm: norm, ctx: ctx}
	p.exec, err = context.NewExec(backend, ctx, func(ctx *context.Context, images *Node) *Node {
		logits := classifier.ModelGraph(ctx, nil, []*Node{images})[0]
		return Reshape(Softmax(logits, -1), -1) // Remove batch dimension.
	})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create model executor")
	}
	klog.V(1).Infof("Predictor ready: %s", &p.header)
	return p, nil
}

// Info returns the header of the model.
func (p *Predictor) Info() artifacts.ModelHeader { return p.header }

// Index returns the label index of the model.
func (p *Predictor) Index() *labels.Index { return p.index }

// Probabilities returns the probability of each class for img.
func (p *Predictor) Probabilities(img image.Image) ([]float32, error) {
	input := pipeline.PreprocessImage(img, p.header.ImageSize, p.norm)
	p.mu.Lock()
	defer p.mu.Unlock()
	output, err := p.exec.Exec1(input)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to run model")
	}
	probs := tensors.CopyFlatData[float32](output)
	output.FinalizeAll()
	if len(probs) != p.index.NumClasses() {
		return nil, errors.Errorf("model returned %d probabilities, expected %d", len(probs), p.index.NumClasses())
	}
	return probs, nil
}

// Predict returns the most probable species for img.
func (p *Predictor) Predict(img image.Image) (*Prediction, error) {
	probs, err := p.Probabilities(img)
	if err != nil {
		return nil, err
	}
	best := BestClass(probs)
	species, err := p.index.Decode(best)
	if err != nil {
		return nil, err
	}
	return &Prediction{ClassIndex: best, Species: species, Confidence: probs[best], Probabilities: probs}, nil
}

// BestClass returns the index of the largest probability, the first one in case of ties.
// It returns -1 for an empty slice.
func BestClass(values []float32) int {
	best := -1
	for ii, v := range values {
		if best < 0 || v > values[best] {
			best = ii
		}
	}
	return best
}
