// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package pipeline turns manifest samples into batches of normalized image tensors and one-hot labels.
//
// Dataset implements train.Dataset. Training datasets loop forever and re-shuffle at every pass over the
// data, evaluation datasets go over the samples once, in a stable order, and return io.EOF at the end.
package pipeline

import (
	"image"
	"io"
	"math/rand"
	"runtime"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/internal/workerspool"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/labels"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/manifest"
	"k8s.io/klog/v2"
)

// Config of a Dataset.
type Config struct {
	// ImageSize is the height and width of the yielded images.
	ImageSize int

	// BatchSize is the maximum number of images per Yield. Only the last batch of a finite dataset can be smaller.
	BatchSize int

	// Infinite datasets never return io.EOF: they loop over the samples. Use it for training with train.Loop.RunSteps.
	Infinite bool

	// Shuffle the samples at the start of every pass.
	Shuffle bool

	// Seed used for shuffling and augmentation.
	Seed int64

	// Normalization applied to pixel values.
	Normalization Normalization

	// AngleStdDev is the standard deviation, in degrees, of a random rotation. 0 disables it.
	AngleStdDev float64

	// FlipRandomly flips images horizontally with probability 0.5.
	FlipRandomly bool

	// Parallelism is the number of images decoded concurrently. If <= 0 it uses runtime.NumCPU().
	Parallelism int
}

// TrainConfig returns the configuration for a training dataset: infinite, shuffled and with light augmentation.
func TrainConfig() Config {
	return Config{
		ImageSize:     DefaultImageSize,
		BatchSize:     32,
		Infinite:      true,
		Shuffle:       true,
		Seed:          42,
		Normalization: KerasTF,
	}
}

// EvalConfig returns the configuration for validation or test datasets: a single pass, stable order and no augmentation.
func EvalConfig() Config {
	cfg := TrainConfig()
	cfg.Infinite = false
	cfg.Shuffle = false
	return cfg
}

// Dataset yields batches of preprocessed images and their one-hot encoded labels.
type Dataset struct {
	name    string
	cfg     Config
	samples []manifest.Sample
	classes []int // Encoded label of each sample.
	index   *labels.Index

	// mu protects the fields below.
	mu         sync.Mutex
	order      []int
	pos        int
	shuffleRng *rand.Rand
	augmentRng *rand.Rand
}

var _ train.Dataset = (*Dataset)(nil)

// NewDataset creates a Dataset over samples, encoding their labels with index.
//
// It fails if samples is empty, or if any of the labels is not in the index.
func NewDataset(name string, samples []manifest.Sample, index *labels.Index, cfg Config) (*Dataset, error) {
	if len(samples) == 0 {
		return nil, &fish.InsufficientDataError{Subset: name, NumSamples: 0, Reason: "no samples for dataset"}
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.Errorf("dataset %q: invalid batch size %d", name, cfg.BatchSize)
	}
	if cfg.ImageSize <= 0 {
		return nil, errors.Errorf("dataset %q: invalid image size %d", name, cfg.ImageSize)
	}
	if cfg.Normalization.Scale == 0 {
		return nil, errors.Errorf("dataset %q: normalization not set", name)
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.NumCPU()
	}
	ds := &Dataset{
		name:       name,
		cfg:        cfg,
		samples:    samples,
		classes:    make([]int, len(samples)),
		index:      index,
		order:      make([]int, len(samples)),
		shuffleRng: rand.New(rand.NewSource(cfg.Seed)),
		augmentRng: rand.New(rand.NewSource(cfg.Seed + 1)),
	}
	for ii, sample := range samples {
		class, err := index.Encode(sample.Label)
		if err != nil {
			return nil, errors.WithMessagef(err, "dataset %q, sample %q", name, sample.Path)
		}
		ds.classes[ii] = class
	}
	for ii := range ds.order {
		ds.order[ii] = ii
	}
	ds.reshuffle()
	return ds, nil
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// Len returns the number of samples in the Dataset.
func (ds *Dataset) Len() int { return len(ds.samples) }

// NumClasses in the label index used to encode the labels.
func (ds *Dataset) NumClasses() int { return ds.index.NumClasses() }

// Config returns the configuration of the Dataset.
func (ds *Dataset) Config() Config { return ds.cfg }

// StepsPerEpoch returns the number of batches in one pass over the samples: ceil(Len/BatchSize).
func (ds *Dataset) StepsPerEpoch() int {
	return (len(ds.samples) + ds.cfg.BatchSize - 1) / ds.cfg.BatchSize
}

// Reset implements train.Dataset. It restarts the pass over the samples, re-shuffling it if configured.
func (ds *Dataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.pos = 0
	ds.reshuffle()
}

// reshuffle must be called with mu locked (or during construction).
func (ds *Dataset) reshuffle() {
	if !ds.cfg.Shuffle {
		return
	}
	ds.shuffleRng.Shuffle(len(ds.order), func(i, j int) {
		ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
	})
}

// nextBatch selects the samples of the next batch and draws their augmentations.
// Drawing happens here, sequentially, so results don't depend on the decoding parallelism.
func (ds *Dataset) nextBatch() (indices []int, augs []augmentation, err error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	indices = make([]int, 0, ds.cfg.BatchSize)
	for len(indices) < ds.cfg.BatchSize {
		if ds.pos >= len(ds.order) {
			if !ds.cfg.Infinite {
				break
			}
			ds.pos = 0
			ds.reshuffle()
		}
		indices = append(indices, ds.order[ds.pos])
		ds.pos++
	}
	if len(indices) == 0 {
		return nil, nil, io.EOF
	}

	augs = make([]augmentation, len(indices))
	for ii := range augs {
		if ds.cfg.AngleStdDev > 0 {
			augs[ii].angle = ds.augmentRng.NormFloat64() * ds.cfg.AngleStdDev
		}
		if ds.cfg.FlipRandomly {
			augs[ii].flip = ds.augmentRng.Intn(2) == 1
		}
	}
	return indices, augs, nil
}

// YieldImages returns the next batch as resized (and augmented) images, their encoded labels and their
// sample paths. Use it to display images; Yield returns the tensors used for training.
func (ds *Dataset) YieldImages() (images []image.Image, classes []int, paths []string, err error) {
	var indices []int
	var augs []augmentation
	indices, augs, err = ds.nextBatch()
	if err != nil {
		return
	}

	images = make([]image.Image, len(indices))
	classes = make([]int, len(indices))
	paths = make([]string, len(indices))
	errs := make([]error, len(indices))
	for ii, sampleIdx := range indices {
		classes[ii] = ds.classes[sampleIdx]
		paths[ii] = ds.samples[sampleIdx].Path
	}
	workerspool.New(ds.cfg.Parallelism).Run(len(indices), func(ii int) {
		img, err := LoadImage(paths[ii])
		if err != nil {
			errs[ii] = err
			return
		}
		images[ii] = Resize(augs[ii].augment(img), ds.cfg.ImageSize)
	})

	// Report the first failure in batch order.
	for _, e := range errs {
		if e != nil {
			err = errors.WithMessagef(e, "dataset %q", ds.name)
			images, classes, paths = nil, nil, nil
			return
		}
	}
	return
}

// Yield implements train.Dataset. It returns:
//
//   - spec: nil.
//   - inputs: the normalized images shaped [batch_size, ImageSize, ImageSize, 3], float32.
//   - labels: one-hot encoded labels shaped [batch_size, NumClasses], float32.
//
// A failure to decode an image is returned as an error wrapping *fish.ImageDecodeError.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	var images []image.Image
	var classes []int
	images, classes, _, err = ds.YieldImages()
	if err != nil {
		return
	}
	norm := ds.cfg.Normalization
	inputs = []*tensors.Tensor{norm.apply(norm.toTensor().Batch(images))}
	labels = []*tensors.Tensor{OneHot(classes, ds.index.NumClasses())}
	return
}

// OneHot encodes classes as a float32 tensor shaped [len(classes), numClasses].
func OneHot(classes []int, numClasses int) *tensors.Tensor {
	flat := make([]float32, len(classes)*numClasses)
	for ii, class := range classes {
		flat[ii*numClasses+class] = 1
	}
	return tensors.FromFlatDataAndDimensions(flat, len(classes), numClasses)
}

// Scan decodes every sample and returns the ones that fail, so they can be reported (or removed) before
// training starts. If verbose, it shows a progress bar.
func Scan(samples []manifest.Sample, parallelism int, verbose bool) []*fish.ImageDecodeError {
	bar := newProgressBar(len(samples), "Scanning images", verbose)
	var (
		mu      sync.Mutex
		invalid []*fish.ImageDecodeError
	)
	workerspool.New(parallelism).Run(len(samples), func(ii int) {
		_, err := LoadImage(samples[ii].Path)
		mu.Lock()
		defer mu.Unlock()
		if bar != nil {
			_ = bar.Add(1)
		}
		if err == nil {
			return
		}
		var decodeErr *fish.ImageDecodeError
		if !errors.As(err, &decodeErr) {
			decodeErr = &fish.ImageDecodeError{Path: samples[ii].Path, Err: err}
		}
		invalid = append(invalid, decodeErr)
	})
	if bar != nil {
		_ = bar.Finish()
	}
	sortDecodeErrors(invalid)
	if len(invalid) > 0 {
		klog.Warningf("%d of %d images could not be decoded", len(invalid), len(samples))
	}
	return invalid
}
