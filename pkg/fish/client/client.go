// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package client is a Go client for the fish species Prediction Service.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// FileField is the multipart form field the service reads the image from.
const FileField = "file"

// Prediction returned by the service.
type Prediction struct {
	Species    string         `json:"species"`
	Confidence float64        `json:"confidence"`
	Info       map[string]any `json:"info"`
}

// Health of the service.
type Health struct {
	Status     string   `json:"status"`
	NumClasses int      `json:"num_classes"`
	Classes    []string `json:"classes"`
	LabelHash  string   `json:"label_hash"`
}

// Error returned by the service, with the HTTP status code and the "detail" message.
type Error struct {
	StatusCode int
	Detail     string
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("fish service returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Detail)
}

type errorBody struct {
	Detail string `json:"detail"`
}

// Client of the Prediction Service.
type Client struct {
	rc *resty.Client
}

// New creates a client for the service at baseURL, e.g. "http://localhost:8000".
func New(baseURL string) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(time.Minute).
		SetHeader("Accept", "application/json")
	return &Client{rc: rc}
}

// SetTimeout for each request.
func (c *Client) SetTimeout(timeout time.Duration) *Client {
	c.rc.SetTimeout(timeout)
	return c
}

// ContentType guesses the content type of an image from its file name, or from its contents if the
// extension is unknown.
func ContentType(filename string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

// Predict uploads the image file at path.
func (c *Client) Predict(ctx context.Context, path string) (*Prediction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read image")
	}
	return c.PredictReader(ctx, filepath.Base(path), ContentType(path, data), bytes.NewReader(data))
}

// PredictReader uploads an image read from r, declaring it with the given file name and content type.
func (c *Client) PredictReader(ctx context.Context, filename, contentType string, r io.Reader) (*Prediction, error) {
	prediction := &Prediction{}
	resp, err := c.rc.R().
		SetContext(ctx).
		SetMultipartField(FileField, filename, contentType, r).
		SetResult(prediction).
		SetError(&errorBody{}).
		Post("/predict")
	if err != nil {
		return nil, errors.Wrap(err, "prediction request failed")
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return prediction, nil
}

// Health queries the health endpoint.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	health := &Health{}
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(health).
		SetError(&errorBody{}).
		Get("/health")
	if err != nil {
		return nil, errors.Wrap(err, "health request failed")
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return health, nil
}

func checkResponse(resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	detail := strings.TrimSpace(resp.String())
	if body, ok := resp.Error().(*errorBody); ok && body.Detail != "" {
		detail = body.Detail
	}
	return &Error{StatusCode: resp.StatusCode(), Detail: detail}
}
