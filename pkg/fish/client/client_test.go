// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/labels"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClassifier []float32

func (f fixedClassifier) Probabilities(img image.Image) ([]float32, error) { return f, nil }

func newTestServer(t *testing.T) *httptest.Server {
	gin.SetMode(gin.TestMode)
	idx, err := labels.New([]string{"Red Mullet", "Shrimp", "Trout"})
	require.NoError(t, err)
	svc, err := server.NewServiceContext(fixedClassifier{0.05, 0.812, 0.138}, idx, server.SpeciesInfo{
		"Shrimp": {"edible": true},
	})
	require.NoError(t, err)
	ts := httptest.NewServer(server.NewRouter(svc, server.Options{}))
	t.Cleanup(ts.Close)
	return ts
}

func writeImage(t *testing.T, name string) string {
	img := image.NewRGBA(image.Rect(0, 0, 6, 6))
	img.Set(2, 2, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestPredict(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL + "/")
	prediction, err := c.Predict(context.Background(), writeImage(t, "fish.png"))
	require.NoError(t, err)
	assert.Equal(t, "Shrimp", prediction.Species)
	assert.Equal(t, 0.81, prediction.Confidence)
	assert.Equal(t, map[string]any{"edible": true}, prediction.Info)

	// Content type is sniffed when the extension is unknown.
	prediction, err = c.Predict(context.Background(), writeImage(t, "fish.data"))
	require.NoError(t, err)
	assert.Equal(t, "Shrimp", prediction.Species)

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 3, health.NumClasses)
}

func TestPredictErrors(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL)

	_, err := c.PredictReader(context.Background(), "notes.txt", "text/plain", strings.NewReader("hello"))
	var serviceErr *Error
	require.True(t, errors.As(err, &serviceErr))
	assert.Equal(t, http.StatusBadRequest, serviceErr.StatusCode)
	assert.Equal(t, "File is not an image.", serviceErr.Detail)

	_, err = c.PredictReader(context.Background(), "fish.png", "image/png", strings.NewReader("not a png"))
	require.True(t, errors.As(err, &serviceErr))
	assert.Equal(t, "Invalid image file.", serviceErr.Detail)
	assert.Contains(t, serviceErr.Error(), "400")

	_, err = c.Predict(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	assert.False(t, errors.As(err, &serviceErr))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Health(ctx)
	require.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", ContentType("a.PNG", nil))
	assert.Equal(t, "image/jpeg", ContentType("a.jpg", nil))
	assert.Equal(t, "text/plain; charset=utf-8", ContentType("a.unknown-ext", []byte("hello")))
}
