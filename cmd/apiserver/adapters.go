package main

import (
	"context"
	"time"

	"github.com/turtacn/TaxFlow/internal/application/port"
	"github.com/turtacn/TaxFlow/internal/config"
	"github.com/turtacn/TaxFlow/internal/infrastructure/auth/oidc"
	redisinfra "github.com/turtacn/TaxFlow/internal/infrastructure/database/redis"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/TaxFlow/internal/interfaces/http/middleware"
)

// newTokenValidator prefers the provider's key set when one is configured
// and falls back to the shared secret.
func newTokenValidator(cfg config.AuthConfig, logger logging.Logger) (middleware.TokenValidator, error) {
	if cfg.JWKSURL == "" {
		return middleware.NewHMACValidator(cfg)
	}
	v, err := oidc.NewJWKSValidator(cfg, logger)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := v.Refresh(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

// meteredCache records hits and misses of a read-model cache.
type meteredCache struct {
	port.CachePort
	name    string
	metrics *prometheus.AppMetrics
}

func newMeteredCache(c port.CachePort, name string, m *prometheus.AppMetrics) port.CachePort {
	if m == nil {
		return c
	}
	return &meteredCache{CachePort: c, name: name, metrics: m}
}

func (c *meteredCache) Get(ctx context.Context, key string, dest interface{}) error {
	err := c.CachePort.Get(ctx, key, dest)
	if err == nil || redisinfra.IsCacheMiss(err) {
		c.metrics.RecordCacheAccess(c.name, err == nil)
	}
	return err
}
