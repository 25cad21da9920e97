// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package classifier defines the fish species classifier and its training procedure.
//
// The model is a frozen pre-trained image backbone followed by a small trainable head: two Dense(128)
// layers with ReLU and a softmax over the classes. It's trained with Adam on the categorical
// cross-entropy, evaluated on the validation data after every epoch and on the test data once at the end.
//
// All the hyperparameters live in the context.Context, see CreateDefaultContext.
package classifier

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/examples/inceptionv3"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/fnn"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/pipeline"
)

const (
	// ParamBackbone selects the feature extractor, one of the keys of Backbones.
	ParamBackbone = "backbone"

	// ParamPretrained loads pre-trained weights for the backbone. If false the backbone is randomly initialized.
	ParamPretrained = "backbone_pretrained"

	// ParamBackboneTrainable allows the optimizer to update the backbone weights (fine-tuning).
	ParamBackboneTrainable = "backbone_trainable"

	// ParamDataDir is where the backbone pre-trained weights are downloaded to.
	ParamDataDir = "data_dir"

	// ParamNumClasses is the number of output classes. It's set by Train from the label index.
	ParamNumClasses = "num_classes"

	// ParamImageSize is the height and width of the input images.
	ParamImageSize = "image_size"

	// ParamNormalization is the name of the pipeline.Normalization applied to the input images.
	ParamNormalization = "image_normalization"

	// ParamNumEpochs is the number of passes over the training data.
	ParamNumEpochs = "num_epochs"

	// ParamBatchSize for training and evaluation.
	ParamBatchSize = "batch_size"

	// ParamAugmentAngle is the standard deviation in degrees of the random rotation of training images.
	ParamAugmentAngle = "augmentation_angle_stddev"

	// ParamAugmentFlips randomly flips training images horizontally.
	ParamAugmentFlips = "augmentation_random_flips"

	// ParamNumCheckpoints is the number of per-epoch checkpoints to keep, if checkpointing is enabled.
	ParamNumCheckpoints = "num_checkpoints"
)

const (
	// BackboneInceptionV3 is the InceptionV3 model trained on ImageNet, with global average pooling.
	BackboneInceptionV3 = "inceptionv3"

	// BackboneMeanPool averages each channel over the image. It has no parameters and it's only useful
	// for smoke tests and debugging.
	BackboneMeanPool = "mean_pool"

	// inceptionMinImageSize is the smallest input InceptionV3 accepts.
	inceptionMinImageSize = 75
)

// BackboneFn builds the feature extractor: it takes normalized images shaped [batch, height, width, 3]
// and returns embeddings shaped [batch, embeddingSize].
type BackboneFn func(ctx *context.Context, images *Node) *Node

// Backbones maps a backbone name to its graph function. One can register new ones.
var Backbones = map[string]BackboneFn{
	BackboneInceptionV3: InceptionV3Backbone,
	BackboneMeanPool:    MeanPoolBackbone,
}

// CreateDefaultContext sets the context with the default hyperparameters.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		ParamBackbone:          BackboneInceptionV3,
		ParamPretrained:        true,
		ParamBackboneTrainable: false,
		ParamDataDir:           "~/.cache/fish_classifier",
		ParamNumClasses:        0,
		ParamImageSize:         pipeline.DefaultImageSize,
		ParamNormalization:     pipeline.KerasTF.Name,
		ParamNumEpochs:         5,
		ParamBatchSize:         32,
		ParamAugmentAngle:      0.0,
		ParamAugmentFlips:      false,
		ParamNumCheckpoints:    2,

		optimizers.ParamOptimizer:    "adam",
		optimizers.ParamLearningRate: 1e-3,
		optimizers.ParamAdamEpsilon:  1e-7,

		// Head: Dense(128, relu) -> Dense(128, relu) -> Dense(num_classes) -> softmax.
		fnn.ParamNumHiddenLayers:    2,
		fnn.ParamNumHiddenNodes:     128,
		fnn.ParamResidual:           false,
		fnn.ParamNormalization:      "none",
		fnn.ParamDropoutRate:        0.0,
		activations.ParamActivation: "relu",
	})
	return ctx
}

// CheckArchitecture validates the model hyperparameters in ctx, returning a *fish.ModelBuildError if
// the model can't be built with them.
func CheckArchitecture(ctx *context.Context) error {
	backbone := context.GetParamOr(ctx, ParamBackbone, "")
	if _, found := Backbones[backbone]; !found {
		known := make([]string, 0, len(Backbones))
		for name := range Backbones {
			known = append(known, name)
		}
		slices.Sort(known)
		return fish.NewModelBuildError("unknown backbone %q, valid values are %q", backbone, known)
	}
	numClasses := context.GetParamOr(ctx, ParamNumClasses, 0)
	if numClasses < 2 {
		return fish.NewModelBuildError("%s=%d, the classifier requires at least 2 classes", ParamNumClasses, numClasses)
	}
	imageSize := context.GetParamOr(ctx, ParamImageSize, 0)
	if imageSize <= 0 {
		return fish.NewModelBuildError("invalid %s=%d", ParamImageSize, imageSize)
	}
	if backbone == BackboneInceptionV3 && imageSize < inceptionMinImageSize {
		return fish.NewModelBuildError("backbone %q requires images of at least %dx%d, got %s=%d",
			backbone, inceptionMinImageSize, inceptionMinImageSize, ParamImageSize, imageSize)
	}
	if hidden := context.GetParamOr(ctx, fnn.ParamNumHiddenLayers, 0); hidden < 0 {
		return fish.NewModelBuildError("invalid %s=%d", fnn.ParamNumHiddenLayers, hidden)
	}
	if nodes := context.GetParamOr(ctx, fnn.ParamNumHiddenNodes, 0); nodes <= 0 {
		return fish.NewModelBuildError("invalid %s=%d", fnn.ParamNumHiddenNodes, nodes)
	}
	return nil
}

// Describe returns a one-line description of the architecture configured in ctx.
func Describe(ctx *context.Context) string {
	return fmt.Sprintf("%s(pretrained=%v, trainable=%v) -> %dx Dense(%d, %s) -> Dense(%d) -> softmax",
		context.GetParamOr(ctx, ParamBackbone, ""),
		context.GetParamOr(ctx, ParamPretrained, false),
		context.GetParamOr(ctx, ParamBackboneTrainable, false),
		context.GetParamOr(ctx, fnn.ParamNumHiddenLayers, 0),
		context.GetParamOr(ctx, fnn.ParamNumHiddenNodes, 0),
		context.GetParamOr(ctx, activations.ParamActivation, "relu"),
		context.GetParamOr(ctx, ParamNumClasses, 0))
}

// DatasetConfigs returns the pipeline configurations for the training and the evaluation (validation and
// test) datasets, taken from the hyperparameters in ctx. Augmentation is only applied to training.
func DatasetConfigs(ctx *context.Context, seed int64) (trainCfg, evalCfg pipeline.Config, err error) {
	norm, err := pipeline.NormalizationByName(context.GetParamOr(ctx, ParamNormalization, pipeline.KerasTF.Name))
	if err != nil {
		return
	}
	trainCfg = pipeline.TrainConfig()
	trainCfg.ImageSize = context.GetParamOr(ctx, ParamImageSize, pipeline.DefaultImageSize)
	trainCfg.BatchSize = context.GetParamOr(ctx, ParamBatchSize, trainCfg.BatchSize)
	trainCfg.Normalization = norm
	trainCfg.Seed = seed
	trainCfg.AngleStdDev = context.GetParamOr(ctx, ParamAugmentAngle, 0.0)
	trainCfg.FlipRandomly = context.GetParamOr(ctx, ParamAugmentFlips, false)

	evalCfg = pipeline.EvalConfig()
	evalCfg.ImageSize = trainCfg.ImageSize
	evalCfg.BatchSize = trainCfg.BatchSize
	evalCfg.Normalization = norm
	evalCfg.Seed = seed
	return
}

// ModelGraph implements train.ModelFn. It takes the normalized images as inputs[0] and returns the
// logits shaped [batch, num_classes]. Use Softmax on them to get the class probabilities.
func ModelGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	_ = spec // Not needed.
	ctx = ctx.In("model")
	images := inputs[0]

	backboneName := context.GetParamOr(ctx, ParamBackbone, BackboneInceptionV3)
	backboneFn, found := Backbones[backboneName]
	if !found {
		exceptions.Panicf("unknown backbone %q", backboneName)
	}
	embeddings := backboneFn(ctx.In("backbone"), images)

	numClasses := context.GetParamOr(ctx, ParamNumClasses, 0)
	logits := fnn.New(ctx.In("head"), embeddings, numClasses).
		Activation(activations.TypeRelu).
		Done()
	return []*Node{logits}
}

// InceptionV3Backbone uses InceptionV3 with global average pooling, pre-trained by default. Images must
// be normalized to [-1, 1] (pipeline.KerasTF).
func InceptionV3Backbone(ctx *context.Context, images *Node) *Node {
	var preTrainedPath string
	if context.GetParamOr(ctx, ParamPretrained, true) {
		preTrainedPath = context.GetParamOr(ctx, ParamDataDir, "")
	}
	return inceptionv3.BuildGraph(ctx, images).
		PreTrained(preTrainedPath).
		SetPooling(inceptionv3.MeanPooling).
		Trainable(context.GetParamOr(ctx, ParamBackboneTrainable, false)).
		Done()
}

// MeanPoolBackbone returns the mean of each channel, shaped [batch, channels].
func MeanPoolBackbone(ctx *context.Context, images *Node) *Node {
	_ = ctx
	return ReduceMean(images, 1, 2)
}
