package inference

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/sb-diagnostic-server/internal/domain"
)

// BreakerPredictor stops calling a failing model for a cool-down period.
// While the circuit is open, predictions fail fast as Unavailable.
type BreakerPredictor struct {
	next    domain.Predictor
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerPredictor wraps next with a circuit breaker.
func NewBreakerPredictor(next domain.Predictor, cfg domain.BreakerConfig, logger *logrus.Logger) *BreakerPredictor {
	if logger == nil {
		logger = logrus.New()
	}
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 3
	}
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "model",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
		// A caller giving up says nothing about the model's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerPredictor{next: next, breaker: breaker}
}

// Predict forwards to the wrapped predictor through the breaker.
func (b *BreakerPredictor) Predict(ctx context.Context, features domain.Features) (*domain.PredictionOutcome, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Predict(ctx, features)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domain.NewInferenceError(domain.InferenceUnavailable, "model temporarily unavailable", err)
		}
		return nil, err
	}
	return result.(*domain.PredictionOutcome), nil
}

// State reports the breaker state for health checks.
func (b *BreakerPredictor) State() string {
	return b.breaker.State().String()
}
