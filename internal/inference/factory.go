package inference

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sb-diagnostic-server/internal/domain"
)

// Gateway is the assembled predictor chain.
type Gateway struct {
	domain.Predictor
	breaker *BreakerPredictor
	cache   *CachingPredictor
}

// New assembles the predictor chain: cache, then breaker, then the
// configured model driver.
func New(ctx context.Context, cfg *domain.InferenceConfig, cacheCfg *domain.CacheConfig, logger *logrus.Logger) (*Gateway, error) {
	var (
		base domain.Predictor
		err  error
	)
	switch cfg.Driver {
	case "", "process":
		base, err = NewProcessPredictor(cfg, logger)
	case "http":
		base, err = NewHTTPPredictor(cfg, logger)
	default:
		err = fmt.Errorf("unsupported inference driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	g := &Gateway{Predictor: base}

	if cfg.Breaker.Enabled {
		g.breaker = NewBreakerPredictor(g.Predictor, cfg.Breaker, logger)
		g.Predictor = g.breaker
	}

	if cacheCfg != nil && cacheCfg.Enabled {
		var shared SharedCache
		if cacheCfg.RedisURL != "" {
			rc, err := NewRedisCache(ctx, cacheCfg)
			if err != nil {
				return nil, err
			}
			shared = rc
		}
		g.cache = NewCachingPredictor(g.Predictor, cacheCfg.MaxItems, cacheCfg.DefaultTTL, shared, logger)
		g.Predictor = g.cache
	}

	logger.WithFields(logrus.Fields{
		"driver":  cfg.Driver,
		"breaker": cfg.Breaker.Enabled,
		"cache":   g.cache != nil,
	}).Info("Inference gateway configured")

	return g, nil
}

// BreakerState reports the circuit state, or "disabled".
func (g *Gateway) BreakerState() string {
	if g.breaker == nil {
		return "disabled"
	}
	return g.breaker.State()
}

// CacheStats reports cache counters; ok is false when caching is off.
func (g *Gateway) CacheStats() (stats CacheStats, ok bool) {
	if g.cache == nil {
		return CacheStats{}, false
	}
	return g.cache.Stats(), true
}

// Close releases cache connections.
func (g *Gateway) Close() error {
	if g.cache == nil {
		return nil
	}
	return g.cache.Close()
}
