// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package artifacts

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/layers/fnn"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/classifier"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/labels"
	"k8s.io/klog/v2"
)

const (
	// ModelFormatVersion of the model file. Files with other versions are rejected.
	ModelFormatVersion = 1

	// modelMagic starts every model file.
	modelMagic = "GMLXFISH"
)

// ModelHeader describes a saved model: what's needed to preprocess inputs and interpret outputs,
// without loading the weights.
type ModelHeader struct {
	FormatVersion int
	Backbone      string
	ImageSize     int
	Normalization string
	HiddenLayers  int
	HiddenNodes   int
	NumClasses    int

	// LabelHash is the hash of the label index the model was trained with.
	LabelHash  string
	ClassNames []string

	Epochs       int
	TestAccuracy float64
	CreatedAt    time.Time
}

// NewModelHeader creates the header of the model configured in ctx, trained with idx.
func NewModelHeader(ctx *context.Context, idx *labels.Index) ModelHeader {
	return ModelHeader{
		FormatVersion: ModelFormatVersion,
		Backbone:      context.GetParamOr(ctx, classifier.ParamBackbone, ""),
		ImageSize:     context.GetParamOr(ctx, classifier.ParamImageSize, 0),
		Normalization: context.GetParamOr(ctx, classifier.ParamNormalization, ""),
		HiddenLayers:  context.GetParamOr(ctx, fnn.ParamNumHiddenLayers, 0),
		HiddenNodes:   context.GetParamOr(ctx, fnn.ParamNumHiddenNodes, 0),
		NumClasses:    idx.NumClasses(),
		LabelHash:     idx.Hash(),
		ClassNames:    idx.Names(),
		Epochs:        context.GetParamOr(ctx, classifier.ParamNumEpochs, 0),
		CreatedAt:     time.Now().UTC(),
	}
}

// String implements fmt.Stringer.
func (h *ModelHeader) String() string {
	return fmt.Sprintf("%s %dx%d (%s) -> %dx%d -> %d classes, label hash %.12s", h.Backbone, h.ImageSize,
		h.ImageSize, h.Normalization, h.HiddenLayers, h.HiddenNodes, h.NumClasses, h.LabelHash)
}

// modelBundle is what gets gob-encoded in the model file, after the magic string.
type modelBundle struct {
	Header         ModelHeader
	CheckpointJSON string
	CheckpointBin  []byte
}

// Model loaded with LoadModel.
type Model struct {
	Header ModelHeader

	// Context holds the hyperparameters and the weights of the model.
	Context *context.Context
}

// Verify checks that idx is the label index the model was trained with, returning a *fish.ModelBuildError otherwise.
func (m *Model) Verify(idx *labels.Index) error {
	if idx.NumClasses() != m.Header.NumClasses {
		return fish.NewModelBuildError("model has %d output classes, label index has %d", m.Header.NumClasses, idx.NumClasses())
	}
	if err := idx.Verify(m.Header.LabelHash); err != nil {
		return fish.NewModelBuildError("model was trained with another label index: %v", err)
	}
	return nil
}

// optimizerVariables are not needed for inference.
func optimizerVariables(ctx *context.Context) []*context.Variable {
	var vars []*context.Variable
	prefix := context.ScopeSeparator + optimizers.Scope
	for v := range ctx.IterVariables() {
		if strings.HasPrefix(v.Scope(), prefix) {
			vars = append(vars, v)
		}
	}
	return vars
}

// SaveModel writes the model in ctx (hyperparameters and weights, without optimizer state) to path,
// as a single file.
func SaveModel(ctx *context.Context, path string, header ModelHeader) error {
	if header.FormatVersion == 0 {
		header.FormatVersion = ModelFormatVersion
	}
	handler, err := checkpoints.Build(ctx).
		TempDir("", "fish_model_").
		ExcludeParams(classifier.ParamDataDir).
		ExcludeVars(optimizerVariables(ctx)...).
		Keep(1).
		Done()
	if err != nil {
		return errors.WithMessage(err, "failed to create temporary checkpoint")
	}
	defer func() { _ = os.RemoveAll(handler.Dir()) }()
	if err := handler.Save(); err != nil {
		return errors.WithMessage(err, "failed to save temporary checkpoint")
	}
	list, err := handler.ListCheckpoints()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return errors.Errorf("checkpoint not found in %q after saving", handler.Dir())
	}
	base := filepath.Join(handler.Dir(), list[len(list)-1])
	jsonData, err := os.ReadFile(base + checkpoints.JsonNameSuffix)
	if err != nil {
		return errors.Wrap(err, "failed to read checkpoint parameters")
	}
	binData, err := os.ReadFile(base + checkpoints.BinDataSuffix)
	if err != nil {
		return errors.Wrap(err, "failed to read checkpoint variables")
	}

	bundle := &modelBundle{Header: header, CheckpointJSON: string(jsonData), CheckpointBin: binData}
	err = writeAtomic(path, func(w io.Writer) error {
		if _, err := io.WriteString(w, modelMagic); err != nil {
			return errors.Wrapf(err, "failed to write %q", path)
		}
		if err := gob.NewEncoder(w).Encode(bundle); err != nil {
			return errors.Wrapf(err, "failed to encode model to %q", path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	klog.V(1).Infof("Saved model %s to %q (%d bytes of weights)", &header, path, len(binData))
	return nil
}

func readBundle(path string) (*modelBundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open model")
	}
	defer func() { _ = f.Close() }()
	r := bufio.NewReader(f)
	magic := make([]byte, len(modelMagic))
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, []byte(modelMagic)) {
		return nil, errors.Errorf("%q is not a fish classifier model file", path)
	}
	bundle := &modelBundle{}
	if err := gob.NewDecoder(r).Decode(bundle); err != nil {
		return nil, errors.Wrapf(err, "corrupted model file %q", path)
	}
	if bundle.Header.FormatVersion != ModelFormatVersion {
		return nil, errors.Errorf("model file %q has format version %d, only version %d is supported",
			path, bundle.Header.FormatVersion, ModelFormatVersion)
	}
	return bundle, nil
}

// LoadModelHeader reads only the header of the model. It still needs to read the whole file.
func LoadModelHeader(path string) (*ModelHeader, error) {
	bundle, err := readBundle(path)
	if err != nil {
		return nil, err
	}
	return &bundle.Header, nil
}

// LoadModel reads a model saved with SaveModel into a new context.
func LoadModel(path string) (*Model, error) {
	bundle, err := readBundle(path)
	if err != nil {
		return nil, err
	}
	ctx := context.New()
	_, err = checkpoints.Build(ctx).
		FromEmbed(bundle.CheckpointJSON, bundle.CheckpointBin).
		Immediate().
		Done()
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to load weights from %q", path)
	}
	if numClasses := context.GetParamOr(ctx, classifier.ParamNumClasses, 0); numClasses != bundle.Header.NumClasses {
		return nil, fish.NewModelBuildError("model %q header has %d classes, but its parameters have %d",
			path, bundle.Header.NumClasses, numClasses)
	}
	return &Model{Header: bundle.Header, Context: ctx}, nil
}
