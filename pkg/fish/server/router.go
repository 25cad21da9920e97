// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/penglongli/gin-metrics/ginmetrics"
	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/pipeline"
	"k8s.io/klog/v2"
)

const (
	// FileField is the multipart form field with the uploaded image.
	FileField = "file"

	// RequestIDHeader is echoed back, or generated if the request doesn't have one.
	RequestIDHeader = "X-Request-ID"

	// PredictionsMetric counts the predictions by species and HTTP status code.
	PredictionsMetric = "fish_predictions_total"

	requestIDKey = "request_id"

	// DefaultMaxUploadBytes is the largest upload accepted.
	DefaultMaxUploadBytes = 32 << 20
)

// Options of the router.
type Options struct {
	// Metrics exposes Prometheus metrics on /metrics.
	Metrics bool

	// MaxUploadBytes is the largest request body accepted. Defaults to DefaultMaxUploadBytes.
	MaxUploadBytes int64
}

var addMetricsOnce sync.Once

// registerMetrics exposes the metrics endpoint on r, and registers the predictions counter once per process,
// since the monitor is global.
func registerMetrics(r *gin.Engine) {
	monitor := ginmetrics.GetMonitor()
	monitor.SetMetricPath("/metrics")
	monitor.Use(r)
	addMetricsOnce.Do(func() {
		err := monitor.AddMetric(&ginmetrics.Metric{
			Type:        ginmetrics.Counter,
			Name:        PredictionsMetric,
			Description: "number of prediction requests, by predicted species and status code.",
			Labels:      []string{"species", "status_code"},
		})
		if err != nil {
			klog.Errorf("failed to register metric %q: %v", PredictionsMetric, err)
		}
	})
}

// NewRouter creates the gin engine serving svc.
func NewRouter(svc *ServiceContext, opts Options) *gin.Engine {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	r := gin.New()
	r.MaxMultipartMemory = opts.MaxUploadBytes
	r.Use(gin.Recovery(), requestIDMiddleware, accessLogMiddleware, corsMiddleware)
	if opts.Metrics {
		registerMetrics(r)
	}
	h := &handler{svc: svc, metrics: opts.Metrics, maxUploadBytes: opts.MaxUploadBytes}
	r.POST("/predict", h.predict)
	r.GET("/health", h.health)
	return r
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func requestIDMiddleware(c *gin.Context) {
	id := c.GetHeader(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	c.Header(RequestIDHeader, id)
	c.Next()
}

func accessLogMiddleware(c *gin.Context) {
	start := time.Now()
	c.Next()
	klog.V(1).Infof("%s %s -> %d (%s, id=%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(),
		time.Since(start), requestID(c))
}

// corsMiddleware allows requests from any origin, and answers preflight requests.
func corsMiddleware(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "*")
	c.Header("Access-Control-Expose-Headers", RequestIDHeader)
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

type handler struct {
	svc            *ServiceContext
	metrics        bool
	maxUploadBytes int64
}

// isImageContentType checks that the major type of the declared content type is "image".
func isImageContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	major, _, _ := strings.Cut(mediaType, "/")
	return strings.EqualFold(strings.TrimSpace(major), "image")
}

func (h *handler) countPrediction(species string, code int) {
	if !h.metrics {
		return
	}
	err := ginmetrics.GetMonitor().GetMetric(PredictionsMetric).Inc([]string{species, fmt.Sprintf("%d", code)})
	if err != nil {
		klog.Warningf("failed to update metric %q: %v", PredictionsMetric, err)
	}
}

func (h *handler) fail(c *gin.Context, err error) {
	writeError(c, err)
	h.countPrediction("", c.Writer.Status())
}

func (h *handler) predict(c *gin.Context) {
	if c.Request.ContentLength > h.maxUploadBytes {
		h.fail(c, ErrTooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	fileHeader, err := c.FormFile(FileField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(c, ErrTooLarge)
			return
		}
		h.fail(c, ErrMissingFile)
		return
	}
	if !isImageContentType(fileHeader.Header.Get("Content-Type")) {
		h.fail(c, ErrNotAnImage)
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		h.fail(c, errors.Wrap(err, "failed to open uploaded file"))
		return
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		h.fail(c, errors.Wrap(err, "failed to read uploaded file"))
		return
	}
	img, err := pipeline.DecodeImageBytes(fileHeader.Filename, data)
	if err != nil {
		klog.V(1).Infof("request %s: %v", requestID(c), err)
		h.fail(c, ErrInvalidImage)
		return
	}
	resp, err := h.svc.Predict(img)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
	h.countPrediction(resp.Species, http.StatusOK)
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health())
}

// ListenAndServe serves handler on addr until ctx is cancelled, and then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		klog.Infof("Serving predictions on %s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return errors.Wrapf(err, "server on %s failed", addr)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shut down server")
	}
	klog.Infof("Server on %s stopped", addr)
	return nil
}
