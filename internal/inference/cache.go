package inference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/sb-diagnostic-server/internal/domain"
)

// keyPrefix namespaces prediction entries in shared caches.
const keyPrefix = "sb:prediction:"

// SharedCache is a cache tier shared between server instances.
type SharedCache interface {
	Get(ctx context.Context, key string) (*domain.PredictionOutcome, bool, error)
	Set(ctx context.Context, key string, outcome *domain.PredictionOutcome, ttl time.Duration) error
	Close() error
}

// CacheStats counts cache lookups per tier.
type CacheStats struct {
	MemoryHits   int64 `json:"memory_hits"`
	SharedHits   int64 `json:"shared_hits"`
	Misses       int64 `json:"misses"`
	SharedErrors int64 `json:"shared_errors"`
}

// CachingPredictor answers repeated feature sets from an in-memory LRU and,
// if configured, a shared tier before calling the model. Failed predictions
// are never cached.
type CachingPredictor struct {
	next   domain.Predictor
	memory *expirable.LRU[string, domain.PredictionOutcome]
	shared SharedCache
	ttl    time.Duration
	logger *logrus.Logger

	memoryHits   atomic.Int64
	sharedHits   atomic.Int64
	misses       atomic.Int64
	sharedErrors atomic.Int64
}

// NewCachingPredictor wraps next. shared may be nil.
func NewCachingPredictor(next domain.Predictor, maxItems int, ttl time.Duration, shared SharedCache, logger *logrus.Logger) *CachingPredictor {
	if maxItems <= 0 {
		maxItems = 1000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CachingPredictor{
		next:   next,
		memory: expirable.NewLRU[string, domain.PredictionOutcome](maxItems, nil, ttl),
		shared: shared,
		ttl:    ttl,
		logger: logger,
	}
}

// CacheKey derives the cache key for a feature set.
func CacheKey(features domain.Features) (string, error) {
	payload, err := json.Marshal(features)
	if err != nil {
		return "", fmt.Errorf("encoding features: %w", err)
	}
	sum := sha256.Sum256(payload)
	return keyPrefix + hex.EncodeToString(sum[:]), nil
}

// Predict returns a cached outcome or calls the wrapped predictor.
func (c *CachingPredictor) Predict(ctx context.Context, features domain.Features) (*domain.PredictionOutcome, error) {
	key, err := CacheKey(features)
	if err != nil {
		return c.next.Predict(ctx, features)
	}

	if outcome, ok := c.memory.Get(key); ok {
		c.memoryHits.Add(1)
		c.logger.WithField("cache_tier", "memory").Debug("Prediction cache hit")
		return cloneOutcome(&outcome), nil
	}

	if c.shared != nil {
		outcome, ok, err := c.shared.Get(ctx, key)
		if err != nil {
			c.sharedErrors.Add(1)
			c.logger.WithError(err).Warn("Shared prediction cache lookup failed")
		} else if ok {
			c.sharedHits.Add(1)
			c.memory.Add(key, *cloneOutcome(outcome))
			c.logger.WithField("cache_tier", "shared").Debug("Prediction cache hit")
			return outcome, nil
		}
	}

	c.misses.Add(1)
	outcome, err := c.next.Predict(ctx, features)
	if err != nil {
		return nil, err
	}

	c.memory.Add(key, *cloneOutcome(outcome))
	if c.shared != nil {
		if err := c.shared.Set(ctx, key, outcome, c.ttl); err != nil {
			c.sharedErrors.Add(1)
			c.logger.WithError(err).Warn("Shared prediction cache store failed")
		}
	}
	return outcome, nil
}

// Stats returns the lookup counters.
func (c *CachingPredictor) Stats() CacheStats {
	return CacheStats{
		MemoryHits:   c.memoryHits.Load(),
		SharedHits:   c.sharedHits.Load(),
		Misses:       c.misses.Load(),
		SharedErrors: c.sharedErrors.Load(),
	}
}

// Close releases the shared tier.
func (c *CachingPredictor) Close() error {
	if c.shared == nil {
		return nil
	}
	return c.shared.Close()
}

func cloneOutcome(o *domain.PredictionOutcome) *domain.PredictionOutcome {
	c := *o
	if o.ProbabilitySB != nil {
		v := *o.ProbabilitySB
		c.ProbabilitySB = &v
	}
	if o.ProbabilityNoSB != nil {
		v := *o.ProbabilityNoSB
		c.ProbabilityNoSB = &v
	}
	return &c
}
