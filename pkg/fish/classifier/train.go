// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"math"
	"os"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/examples/inceptionv3"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/pipeline"
	"k8s.io/klog/v2"
)

const (
	// AccuracyMetricName is the name of the evaluation accuracy metric.
	AccuracyMetricName = "Mean Accuracy"

	batchAccuracyMetricName = "Batch Accuracy"
)

// EpochMetrics holds the metrics of one training epoch.
type EpochMetrics struct {
	// Epoch number, starting from 1.
	Epoch int `json:"epoch"`

	// TrainLoss and TrainAccuracy are the means over the epoch's training batches.
	TrainLoss     float64 `json:"train_loss"`
	TrainAccuracy float64 `json:"train_accuracy"`

	// ValidationLoss and ValidationAccuracy are evaluated on the full validation data at the end of the epoch.
	ValidationLoss     float64 `json:"validation_loss"`
	ValidationAccuracy float64 `json:"validation_accuracy"`

	Steps    int           `json:"steps"`
	Duration time.Duration `json:"duration_ns"`
}

// History is the per-epoch series of metrics, in the same layout as Keras' History.history, plus the
// final test evaluation.
type History struct {
	Loss         []float64 `json:"loss"`
	Accuracy     []float64 `json:"accuracy"`
	ValLoss      []float64 `json:"val_loss"`
	ValAccuracy  []float64 `json:"val_accuracy"`
	TestLoss     float64   `json:"test_loss"`
	TestAccuracy float64   `json:"test_accuracy"`
}

// NumEpochs in the history.
func (h *History) NumEpochs() int { return len(h.Loss) }

// Result of a training run.
type Result struct {
	// Epochs has one entry per epoch, in order.
	Epochs []EpochMetrics

	// TestLoss and TestAccuracy are evaluated once, after the last epoch.
	TestLoss     float64
	TestAccuracy float64

	// Warnings raised during training. They are also logged.
	Warnings []*fish.ConvergenceWarning

	// GlobalStep at the end of training.
	GlobalStep int64
}

// History returns the metrics series of the run.
func (r *Result) History() *History {
	h := &History{TestLoss: r.TestLoss, TestAccuracy: r.TestAccuracy}
	for _, m := range r.Epochs {
		h.Loss = append(h.Loss, m.TrainLoss)
		h.Accuracy = append(h.Accuracy, m.TrainAccuracy)
		h.ValLoss = append(h.ValLoss, m.ValidationLoss)
		h.ValAccuracy = append(h.ValAccuracy, m.ValidationAccuracy)
	}
	return h
}

// Options for Train that are not model hyperparameters.
type Options struct {
	// CheckpointDir, if set, saves a checkpoint after every epoch.
	CheckpointDir string

	// ProgressBar attaches a command-line progress bar to the training loop.
	ProgressBar bool
}

// oneHotAccuracyGraph is the fraction of examples where the class with the largest logit is the labeled one.
// Labels are one-hot encoded, ties count as hits for the first class.
func oneHotAccuracyGraph(ctx *context.Context, labels, predictions []*Node) *Node {
	_ = ctx
	probabilities := predictions[0]
	predicted := ArgMax(probabilities, -1, dtypes.Int32)
	expected := ArgMax(labels[0], -1, dtypes.Int32)
	hits := ConvertDType(Equal(predicted, expected), probabilities.DType())
	return ReduceAllMean(hits)
}

// NewAccuracyMetric returns the mean accuracy over a dataset, for one-hot labels.
func NewAccuracyMetric() *metrics.MeanMetric {
	return metrics.NewMeanMetric(AccuracyMetricName, "#acc", metrics.AccuracyMetricType, oneHotAccuracyGraph, nil)
}

// PrepareBackbone downloads the backbone pre-trained weights, if they are used and are not there yet.
func PrepareBackbone(ctx *context.Context) error {
	if context.GetParamOr(ctx, ParamBackbone, "") != BackboneInceptionV3 || !context.GetParamOr(ctx, ParamPretrained, true) {
		return nil
	}
	dataDir, err := fsutil.ReplaceTildeInDir(context.GetParamOr(ctx, ParamDataDir, ""))
	if err != nil {
		return errors.WithMessage(err, "invalid data directory")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create data directory %q", dataDir)
	}
	ctx.SetParam(ParamDataDir, dataDir)
	if err := inceptionv3.DownloadAndUnpackWeights(dataDir); err != nil {
		return fish.NewModelBuildError("pre-trained weights for %q unavailable: %v", BackboneInceptionV3, err)
	}
	return nil
}

// epochAccumulator averages the training batch metrics of an epoch.
type epochAccumulator struct {
	lossIdx, accuracyIdx int
	lossSum, accuracySum float64
	steps                int
}

func newEpochAccumulator(trainer *train.Trainer) *epochAccumulator {
	acc := &epochAccumulator{lossIdx: -1, accuracyIdx: -1}
	for ii, m := range trainer.TrainMetrics() {
		switch {
		case m.MetricType() == metrics.LossMetricType && acc.lossIdx < 0:
			// The first loss metric is the batch loss.
			acc.lossIdx = ii
		case m.Name() == batchAccuracyMetricName:
			acc.accuracyIdx = ii
		}
	}
	return acc
}

func (acc *epochAccumulator) reset() {
	acc.lossSum, acc.accuracySum, acc.steps = 0, 0, 0
}

func (acc *epochAccumulator) onStep(_ *train.Loop, values []*tensors.Tensor) error {
	if acc.lossIdx >= 0 {
		acc.lossSum += shapes.ConvertTo[float64](values[acc.lossIdx].Value())
	}
	if acc.accuracyIdx >= 0 {
		acc.accuracySum += shapes.ConvertTo[float64](values[acc.accuracyIdx].Value())
	}
	acc.steps++
	return nil
}

func (acc *epochAccumulator) means() (loss, accuracy float64) {
	if acc.steps == 0 {
		return math.NaN(), math.NaN()
	}
	return acc.lossSum / float64(acc.steps), acc.accuracySum / float64(acc.steps)
}

// evaluate returns the loss and accuracy of the model over the full dataset, and resets it.
func evaluate(trainer *train.Trainer, ds train.Dataset) (loss, accuracy float64, err error) {
	var values []*tensors.Tensor
	err = exceptions.TryCatch[error](func() { values = trainer.Eval(ds) })
	ds.Reset()
	if err != nil {
		return 0, 0, errors.WithMessagef(err, "evaluating on %q", ds.Name())
	}
	loss, accuracy = math.NaN(), math.NaN()
	lossFound := false
	for ii, m := range trainer.EvalMetrics() {
		switch {
		case m.MetricType() == metrics.LossMetricType && !lossFound:
			loss = shapes.ConvertTo[float64](values[ii].Value())
			lossFound = true
		case m.Name() == AccuracyMetricName:
			accuracy = shapes.ConvertTo[float64](values[ii].Value())
		}
	}
	return loss, accuracy, nil
}

// newTrainer catches graph building panics, returning them as errors.
func newTrainer(backend backends.Backend, ctx *context.Context) (trainer *train.Trainer, err error) {
	err = exceptions.TryCatch[error](func() {
		batchAccuracy := metrics.NewBaseMetric(batchAccuracyMetricName, "~acc", metrics.AccuracyMetricType,
			oneHotAccuracyGraph, nil)
		trainer = train.NewTrainer(backend, ctx, ModelGraph, losses.CategoricalCrossEntropyLogits,
			optimizers.FromContext(ctx),
			[]metrics.Interface{batchAccuracy},
			[]metrics.Interface{NewAccuracyMetric()})
	})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create trainer")
	}
	return trainer, nil
}

// Train the classifier configured in ctx.
//
// It trains for ParamNumEpochs epochs over trainDS (which must be infinite: each epoch is
// trainDS.StepsPerEpoch() steps), evaluating validationDS after each epoch and testDS at the end.
// numClasses must match the label index used to create the datasets, or a *fish.ModelBuildError is
// returned.
//
// An epoch whose validation accuracy doesn't improve on the best so far logs a *fish.ConvergenceWarning,
// which is also returned in Result.Warnings.
func Train(ctx *context.Context, backend backends.Backend, trainDS, validationDS, testDS *pipeline.Dataset,
	numClasses int, opts Options) (*Result, error) {
	ctx.SetParam(ParamNumClasses, numClasses)
	if err := CheckArchitecture(ctx); err != nil {
		return nil, err
	}
	for _, ds := range []*pipeline.Dataset{trainDS, validationDS, testDS} {
		if ds.NumClasses() != numClasses {
			return nil, fish.NewModelBuildError("model has %d output classes but dataset %q has %d classes",
				numClasses, ds.Name(), ds.NumClasses())
		}
	}
	if !trainDS.Config().Infinite {
		return nil, errors.Errorf("training dataset %q must be infinite", trainDS.Name())
	}
	if err := PrepareBackbone(ctx); err != nil {
		return nil, err
	}

	var checkpoint *checkpoints.Handler
	if opts.CheckpointDir != "" {
		var err error
		checkpoint, err = checkpoints.Build(ctx).
			Dir(opts.CheckpointDir).
			ExcludeParams(ParamDataDir, ParamNumEpochs).
			Keep(context.GetParamOr(ctx, ParamNumCheckpoints, 2)).
			Done()
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to create checkpoint in %q", opts.CheckpointDir)
		}
	}

	trainer, err := newTrainer(backend, ctx)
	if err != nil {
		return nil, err
	}
	loop := train.NewLoop(trainer)
	if opts.ProgressBar {
		commandline.AttachProgressBar(loop)
	}
	acc := newEpochAccumulator(trainer)
	loop.OnStep("epoch metrics", 0, acc.onStep)

	numEpochs := context.GetParamOr(ctx, ParamNumEpochs, 5)
	stepsPerEpoch := trainDS.StepsPerEpoch()
	klog.Infof("Training %s for %d epochs of %d steps", Describe(ctx), numEpochs, stepsPerEpoch)
	result := &Result{}
	bestAccuracy, bestEpoch := math.Inf(-1), 0
	for epoch := 1; epoch <= numEpochs; epoch++ {
		acc.reset()
		start := time.Now()
		if _, err := loop.RunSteps(trainDS, stepsPerEpoch); err != nil {
			return nil, errors.WithMessagef(err, "training epoch %d", epoch)
		}
		m := EpochMetrics{Epoch: epoch, Steps: acc.steps}
		m.TrainLoss, m.TrainAccuracy = acc.means()
		m.ValidationLoss, m.ValidationAccuracy, err = evaluate(trainer, validationDS)
		if err != nil {
			return nil, errors.WithMessagef(err, "validation of epoch %d", epoch)
		}
		m.Duration = time.Since(start)
		result.Epochs = append(result.Epochs, m)
		klog.Infof("Epoch %d/%d: loss=%.4f accuracy=%.4f val_loss=%.4f val_accuracy=%.4f (%s)",
			epoch, numEpochs, m.TrainLoss, m.TrainAccuracy, m.ValidationLoss, m.ValidationAccuracy,
			m.Duration.Round(time.Millisecond))

		if m.ValidationAccuracy > bestAccuracy {
			bestAccuracy, bestEpoch = m.ValidationAccuracy, epoch
		} else {
			warning := &fish.ConvergenceWarning{
				Epoch:               epoch,
				ValidationAccuracy:  m.ValidationAccuracy,
				BestAccuracy:        bestAccuracy,
				BestAccuracyAtEpoch: bestEpoch,
			}
			klog.Warning(warning)
			result.Warnings = append(result.Warnings, warning)
		}

		if checkpoint != nil {
			if err := checkpoint.Save(); err != nil {
				return nil, errors.WithMessagef(err, "saving checkpoint of epoch %d", epoch)
			}
		}
	}
	klog.V(1).Infof("Median train step: %s", loop.MedianTrainStepDuration())

	result.TestLoss, result.TestAccuracy, err = evaluate(trainer, testDS)
	if err != nil {
		return nil, err
	}
	result.GlobalStep = optimizers.GetGlobalStep(ctx)
	klog.Infof("Test: loss=%.4f accuracy=%.4f", result.TestLoss, result.TestAccuracy)
	return result, nil
}
