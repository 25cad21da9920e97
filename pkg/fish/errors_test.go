// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fish

import (
	"image"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsAs(t *testing.T) {
	var err error = &ImageDecodeError{Path: "a/b.png", Err: image.ErrFormat}
	err = errors.WithMessagef(err, "while reading batch %d", 3)
	require.True(t, IsDecodeError(err))
	var decodeErr *ImageDecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "a/b.png", decodeErr.Path)
	assert.True(t, errors.Is(err, image.ErrFormat))

	err = &DataLayoutError{Root: "/nowhere", Reason: "no samples"}
	assert.False(t, IsDecodeError(err))
	assert.Contains(t, err.Error(), "/nowhere")

	err = NewModelBuildError("head has %d outputs, label index has %d classes", 3, 4)
	var buildErr *ModelBuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Contains(t, buildErr.Error(), "3 outputs")

	w := &ConvergenceWarning{Epoch: 3, ValidationAccuracy: 0.5, BestAccuracy: 0.6, BestAccuracyAtEpoch: 1}
	assert.Contains(t, w.Error(), "epoch 3")
}
