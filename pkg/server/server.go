// Package server implements the provider-side HTTP surface: a stateless
// inference endpoint that forwards prompts to the configured backend, plus
// health and Prometheus metrics routes. The server keeps no session or stream
// state; payment verification is not part of the request path.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/clawcompute/clawcompute-go/pkg/inference"
	"github.com/clawcompute/clawcompute-go/pkg/metrics"
)

// Controller handles inference requests against one backend.
type Controller struct {
	backend inference.Backend
	// defaultModel serves requests that omit an explicit model.
	defaultModel string
	// providerName is echoed in responses so consumers can attribute results.
	providerName string
	// backendTimeout bounds each upstream completion call.
	backendTimeout time.Duration
}

// NewController builds a controller. backend is required; defaultModel must
// name a model the backend serves.
func NewController(backend inference.Backend, defaultModel, providerName string, backendTimeout time.Duration) (*Controller, error) {
	if backend == nil {
		return nil, errors.New("inference backend is required")
	}
	if defaultModel == "" {
		return nil, errors.New("default model is required")
	}
	if backendTimeout == 0 {
		backendTimeout = 90 * time.Second
	}
	return &Controller{
		backend:        backend,
		defaultModel:   defaultModel,
		providerName:   providerName,
		backendTimeout: backendTimeout,
	}, nil
}

// InferenceHandler handles POST /inference. Each request is independent: the
// prompt is forwarded to the backend exactly once and the completion (or the
// failure) is returned to this caller only.
func (ctrl *Controller) InferenceHandler(c *gin.Context) {
	start := time.Now()
	metrics.ActiveRequests.Inc()
	defer metrics.ActiveRequests.Dec()

	var req inference.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.InferenceRequests.WithLabelValues(strconv.Itoa(http.StatusBadRequest)).Inc()
		c.JSON(http.StatusBadRequest, inference.ErrorResponse{Error: "prompt is required"})
		return
	}

	model := req.Model
	if model == "" {
		model = ctrl.defaultModel
	}

	requestID := uuid.NewString()
	zap.L().Info("inference request",
		zap.String("requestId", requestID),
		zap.String("model", model),
		zap.Int("promptLen", len(req.Prompt)))

	ctx, cancel := context.WithTimeout(c.Request.Context(), ctrl.backendTimeout)
	defer cancel()

	result, err := ctrl.backend.Complete(ctx, req.Prompt, model)
	elapsed := time.Since(start)
	metrics.InferenceDuration.Observe(elapsed.Seconds())

	if err != nil {
		metrics.BackendErrors.Inc()
		metrics.InferenceRequests.WithLabelValues(strconv.Itoa(http.StatusInternalServerError)).Inc()
		zap.L().Error("backend completion failed",
			zap.String("requestId", requestID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, inference.ErrorResponse{Error: err.Error()})
		return
	}

	metrics.InferenceRequests.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	zap.L().Info("inference served",
		zap.String("requestId", requestID),
		zap.Int64("durationMs", elapsed.Milliseconds()))

	c.JSON(http.StatusOK, inference.Response{
		Result:     result,
		Model:      model,
		DurationMs: elapsed.Milliseconds(),
		Provider:   ctrl.providerName,
	})
}

// HealthHandler handles GET /health.
func (ctrl *Controller) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"model":    ctrl.defaultModel,
		"provider": ctrl.providerName,
	})
}

// CORSMiddleware sets permissive CORS headers. The inference endpoint is meant
// to be callable from any browser origin, so there is no allowlist.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// DefineRoutes wires the controller's routes onto a fresh engine.
func DefineRoutes(ctrl *Controller) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())

	router.POST("/inference", ctrl.InferenceHandler)
	router.GET("/health", ctrl.HealthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// RunServer starts the provider HTTP server on port and returns it; the
// caller owns shutdown.
func RunServer(ctrl *Controller, port int) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := DefineRoutes(ctrl)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router.Handler(),
	}

	go func() {
		zap.L().Info("provider server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("provider server failed", zap.Error(err))
		}
	}()

	return srv
}
