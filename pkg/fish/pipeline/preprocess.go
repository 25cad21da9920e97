// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish"
)

// DefaultImageSize is the height and width images are resized to.
const DefaultImageSize = 224

// Normalization maps 8-bit pixel values to the range the backbone was trained with:
// value = pixel/255 * Scale + Offset.
type Normalization struct {
	Name   string
	Scale  float64
	Offset float64
}

var (
	// KerasTF maps pixels to [-1, 1]. It's the "tf" mode of Keras' preprocess_input, used by the
	// InceptionV3 and MobileNetV2 ImageNet weights.
	KerasTF = Normalization{Name: "keras_tf", Scale: 2.0, Offset: -1.0}

	// UnitRange maps pixels to [0, 1].
	UnitRange = Normalization{Name: "unit_range", Scale: 1.0, Offset: 0.0}

	// KnownNormalizations by name.
	KnownNormalizations = map[string]Normalization{
		KerasTF.Name:   KerasTF,
		UnitRange.Name: UnitRange,
	}
)

// NormalizationByName returns one of the KnownNormalizations.
func NormalizationByName(name string) (Normalization, error) {
	norm, found := KnownNormalizations[name]
	if !found {
		return Normalization{}, errors.Errorf("unknown normalization %q", name)
	}
	return norm, nil
}

// toTensor converts RGB images (alpha is dropped) with the normalization scale; the offset is added later.
func (n Normalization) toTensor() *timage.ToTensorConfig {
	return timage.ToTensor(dtypes.Float32).MaxValue(n.Scale)
}

// apply adds the offset in-place to a float32 tensor produced by toTensor.
func (n Normalization) apply(t *tensors.Tensor) *tensors.Tensor {
	if n.Offset == 0 {
		return t
	}
	offset := float32(n.Offset)
	tensors.MutableFlatData[float32](t, func(flat []float32) {
		for ii := range flat {
			flat[ii] += offset
		}
	})
	return t
}

// LoadImage reads and decodes the image at imagePath. Decoding failures are returned as *fish.ImageDecodeError.
func LoadImage(imagePath string) (image.Image, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image %q", imagePath)
	}
	defer func() { _ = f.Close() }()
	return DecodeImage(imagePath, f)
}

// DecodeImage decodes an image from r; name identifies it in errors.
func DecodeImage(name string, r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, &fish.ImageDecodeError{Path: name, Err: err}
	}
	return img, nil
}

// DecodeImageBytes is like DecodeImage, for an in-memory payload.
func DecodeImageBytes(name string, data []byte) (image.Image, error) {
	return DecodeImage(name, bytes.NewReader(data))
}

// Resize squashes img to size x size (aspect ratio is not preserved), in 8-bit RGBA.
func Resize(img image.Image, size int) *image.NRGBA {
	return imaging.Resize(img, size, size, imaging.Linear)
}

// PreprocessImage resizes and normalizes one image, returning a float32 tensor shaped [1, size, size, 3].
//
// This is the exact transformation used by the Dataset (minus augmentation), and it must be used
// for inference.
func PreprocessImage(img image.Image, size int, norm Normalization) *tensors.Tensor {
	return PreprocessImages([]image.Image{img}, size, norm)
}

// PreprocessImages resizes and normalizes a batch of images into a float32 tensor shaped [batch, size, size, 3].
func PreprocessImages(imgs []image.Image, size int, norm Normalization) *tensors.Tensor {
	resized := make([]image.Image, len(imgs))
	for ii, img := range imgs {
		resized[ii] = Resize(img, size)
	}
	return norm.apply(norm.toTensor().Batch(resized))
}

// Augmentation parameters drawn for one image.
type augmentation struct {
	angle float64
	flip  bool
}

// augment applies a rotation (in degrees, background filled with black) and an optional horizontal flip.
func (a augmentation) augment(img image.Image) image.Image {
	if a.angle != 0 {
		img = imaging.Rotate(img, a.angle, color.RGBA{R: 0, G: 0, B: 0, A: 255})
	}
	if a.flip {
		img = imaging.FlipH(img)
	}
	return img
}
