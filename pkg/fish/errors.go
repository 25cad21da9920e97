// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fish holds the error types shared by the fish species classifier packages.
//
// Every failure in the pipeline falls into one of these categories:
//
//   - DataLayoutError: the dataset root is missing or malformed, or holds no samples.
//   - InsufficientDataError: a split would produce an empty subset.
//   - ImageDecodeError: a sample (or an uploaded image) cannot be decoded.
//   - ModelBuildError: the model architecture does not match the label index.
//   - ConvergenceWarning: validation accuracy did not improve. Never fatal, only logged.
//
// Use errors.As to inspect them, they are always returned as pointers.
package fish

import (
	"fmt"

	"github.com/pkg/errors"
)

// DataLayoutError is returned when the dataset root doesn't exist, is not a directory or yields no samples.
type DataLayoutError struct {
	Root   string
	Reason string
	Err    error
}

func (e *DataLayoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid dataset layout at %q: %s: %v", e.Root, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid dataset layout at %q: %s", e.Root, e.Reason)
}

// Unwrap returns the underlying error, if any.
func (e *DataLayoutError) Unwrap() error { return e.Err }

// InsufficientDataError is returned when a split would leave one of the subsets empty.
type InsufficientDataError struct {
	Subset     string
	NumSamples int
	Reason     string
}

func (e *InsufficientDataError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("insufficient data for %s subset (%d samples available): %s", e.Subset, e.NumSamples, e.Reason)
	}
	return fmt.Sprintf("insufficient data: %s subset would be empty (%d samples available)", e.Subset, e.NumSamples)
}

// ImageDecodeError identifies a sample (or upload) that could not be decoded.
type ImageDecodeError struct {
	Path string
	Err  error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("failed to decode image %q: %v", e.Path, e.Err)
}

// Unwrap returns the decoding error.
func (e *ImageDecodeError) Unwrap() error { return e.Err }

// ModelBuildError is returned when the classifier can't be built as configured, typically because
// the number of output classes doesn't match the label index.
type ModelBuildError struct {
	Reason string
}

func (e *ModelBuildError) Error() string {
	return "failed to build model: " + e.Reason
}

// NewModelBuildError creates a ModelBuildError with a formatted reason.
func NewModelBuildError(format string, args ...any) *ModelBuildError {
	return &ModelBuildError{Reason: fmt.Sprintf(format, args...)}
}

// ConvergenceWarning is reported (logged) when the validation accuracy of an epoch doesn't improve on the
// best previous epoch. It implements error so it can be collected, but training goes on.
type ConvergenceWarning struct {
	Epoch               int
	ValidationAccuracy  float64
	BestAccuracy        float64
	BestAccuracyAtEpoch int
}

func (w *ConvergenceWarning) Error() string {
	return fmt.Sprintf("validation accuracy did not improve at epoch %d: %.4f (best %.4f at epoch %d)",
		w.Epoch, w.ValidationAccuracy, w.BestAccuracy, w.BestAccuracyAtEpoch)
}

// IsDecodeError returns whether err is or wraps an ImageDecodeError.
func IsDecodeError(err error) bool {
	var decodeErr *ImageDecodeError
	return errors.As(err, &decodeErr)
}
