// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// APIError is an error reported to the client, with its HTTP status code.
type APIError struct {
	message  string
	httpCode int
}

// Error implements error.
func (e *APIError) Error() string { return e.message }

// Message returned to the client in the "detail" field.
func (e *APIError) Message() string { return e.message }

// HTTPCode of the response.
func (e *APIError) HTTPCode() int { return e.httpCode }

// NewAPIError creates an APIError.
func NewAPIError(message string, httpCode int) *APIError {
	return &APIError{message: message, httpCode: httpCode}
}

var (
	ErrNotAnImage   = NewAPIError("File is not an image.", http.StatusBadRequest)
	ErrInvalidImage = NewAPIError("Invalid image file.", http.StatusBadRequest)
	ErrMissingFile  = NewAPIError("Missing file.", http.StatusBadRequest)
	ErrTooLarge     = NewAPIError("File too large.", http.StatusRequestEntityTooLarge)
	ErrInternal     = NewAPIError("Internal server error.", http.StatusInternalServerError)
)

// ErrorResponse is the JSON body of all error responses.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// writeError responds with err. Errors that are not an *APIError are logged and reported as ErrInternal.
func writeError(c *gin.Context, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		klog.Errorf("request %s %s (id=%s) failed: %+v", c.Request.Method, c.Request.URL.Path, requestID(c), err)
		apiErr = ErrInternal
	}
	c.AbortWithStatusJSON(apiErr.HTTPCode(), ErrorResponse{Detail: apiErr.Message()})
}
