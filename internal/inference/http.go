package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sb-diagnostic-server/internal/domain"
)

// maxResponseBytes caps the model response body read into memory.
const maxResponseBytes = 1 << 20

// HTTPPredictor posts the feature JSON to a model server and reads the same
// result object the model process prints.
type HTTPPredictor struct {
	url        string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewHTTPPredictor creates a predictor for the configured model URL.
func NewHTTPPredictor(cfg *domain.InferenceConfig, logger *logrus.Logger) (*HTTPPredictor, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("inference URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &HTTPPredictor{
		url: cfg.URL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

// Predict sends one prediction request.
func (h *HTTPPredictor) Predict(ctx context.Context, features domain.Features) (*domain.PredictionOutcome, error) {
	payload, err := json.Marshal(features)
	if err != nil {
		return nil, domain.NewInferenceError(domain.InferenceLaunchFailed, "encoding features", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.NewInferenceError(domain.InferenceLaunchFailed, "creating request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "SB-Diagnostic-Server/1.0")

	start := time.Now()
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, h.classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, h.classify(ctx, err)
	}

	h.logger.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Model server responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := errorField(body)
		if detail == "" {
			detail = strings.TrimSpace(string(body))
		}
		return nil, domain.NewInferenceError(domain.InferenceProcessFailed,
			truncate(fmt.Sprintf("model server returned status %d: %s", resp.StatusCode, detail)), nil)
	}

	return decodeOutput(body)
}

func (h *HTTPPredictor) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return domain.NewInferenceError(domain.InferenceTimeout, "model server did not answer in time", err)
	}
	return domain.NewInferenceError(domain.InferenceLaunchFailed, "contacting model server", err)
}
