package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/embedapi/internal/cache"
	"github.com/hyperjump/embedapi/internal/config"
	"github.com/hyperjump/embedapi/internal/dispatch"
	"github.com/hyperjump/embedapi/internal/embedding"
	"github.com/hyperjump/embedapi/internal/models"
	"github.com/hyperjump/embedapi/internal/observe"
	"github.com/hyperjump/embedapi/internal/storage"
)

// Components holds initialized services.
type Components struct {
	Dispatcher     *dispatch.Dispatcher
	Cache          *cache.Cache
	Archive        *storage.SQLiteArchive
	Metrics        *observe.Metrics
	MetricsHandler http.Handler
	provider       *observe.Provider
}

// Close releases backends, the archive, and the meter provider.
func (c *Components) Close() {
	if c.Dispatcher != nil {
		_ = c.Dispatcher.Close()
	}
	if c.Archive != nil {
		_ = c.Archive.Close()
	}
	if c.provider != nil {
		_ = c.provider.Shutdown(context.Background())
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	if cfg.Metrics.IsEnabled() {
		provider, err := observe.NewPrometheusProvider()
		if err != nil {
			return nil, err
		}
		c.provider = provider
		c.MetricsHandler = provider.Handler()
		if c.Metrics, err = observe.NewMetrics(provider); err != nil {
			return nil, err
		}
	}

	backends, err := buildBackends(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := []dispatch.Option{
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(c.Metrics),
		dispatch.WithConcurrency(cfg.Dispatch.Concurrency),
	}

	if cfg.Cache.IsEnabled() {
		if c.Cache, err = cache.New(cfg.Cache.MaxSize); err != nil {
			closeAll(backends)
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		opts = append(opts, dispatch.WithCache(c.Cache))
		if err := c.Metrics.ObserveCache(
			func() int64 { return int64(c.Cache.Len()) },
			func() int64 { return int64(c.Cache.Capacity()) },
		); err != nil {
			logger.Warn("cache gauges not registered", zap.Error(err))
		}
	}

	if cfg.Storage.Enabled {
		if c.Archive, err = storage.NewSQLiteArchive(cfg.Storage.DatabasePath); err != nil {
			closeAll(backends)
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		opts = append(opts, dispatch.WithArchive(c.Archive))
		if c.Cache != nil && cfg.Cache.WarmStart {
			n, err := storage.WarmCache(ctx, c.Cache, c.Archive)
			if err != nil {
				logger.Warn("cache warm start failed", zap.Error(err))
			} else {
				logger.Info("cache warmed from archive", zap.Int("entries", n))
			}
		}
	}

	if c.Dispatcher, err = dispatch.New(backends, opts...); err != nil {
		closeAll(backends)
		return nil, err
	}
	ok = true
	return c, nil
}

// buildBackends creates every configured backend. A local model that fails
// to load is skipped (or replaced by the hash fallback when allowed); an
// error is returned only when nothing could be built.
func buildBackends(cfg *config.Config, logger *zap.Logger) ([]embedding.Backend, error) {
	var backends []embedding.Backend

	if cfg.Local.IsEnabled() {
		local, err := embedding.NewONNXBackend(
			cfg.Local.ModelPath,
			cfg.Local.ModelName,
			cfg.Local.Dimensions,
			cfg.Local.MaxTokens,
		)
		switch {
		case err == nil:
			backends = append(backends, local)
			logger.Info("local backend loaded",
				zap.String("model", cfg.Local.ModelName),
				zap.String("path", cfg.Local.ModelPath))
		case cfg.Local.AllowHashFallback:
			logger.Warn("local model unavailable, using hash fallback", zap.Error(err))
			backends = append(backends, embedding.NewHashBackend(models.BackendLocal, cfg.Local.Dimensions))
		default:
			logger.Warn("local model unavailable, local backend disabled", zap.Error(err))
		}
	}

	if cfg.OpenAI.IsConfigured() {
		remote, err := buildOpenAI(&cfg.OpenAI, logger)
		if err != nil {
			closeAll(backends)
			return nil, fmt.Errorf("failed to initialize openai backend: %w", err)
		}
		backends = append(backends, remote)
	}

	if len(backends) == 0 {
		return nil, config.ErrNoBackend
	}
	return backends, nil
}

// buildOpenAI wraps the OpenAI client in the token limit, the rate limiter
// and the circuit breaker, innermost first.
func buildOpenAI(cfg *config.OpenAIConfig, logger *zap.Logger) (embedding.Backend, error) {
	opts := []embedding.OpenAIOption{embedding.WithTimeout(cfg.Timeout)}
	if cfg.BaseURL != "" {
		opts = append(opts, embedding.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxInputTokens > 0 {
		var counter embedding.TokenCounter
		tk, err := embedding.NewTiktokenCounter(cfg.Model)
		if err != nil {
			logger.Warn("tiktoken encoding unavailable, counting words instead", zap.Error(err))
			counter = embedding.WordCounter{}
		} else {
			counter = tk
		}
		opts = append(opts, embedding.WithTokenLimit(counter, cfg.MaxInputTokens))
	}
	remote, err := embedding.NewOpenAIBackend(cfg.APIKey, cfg.Model, opts...)
	if err != nil {
		return nil, err
	}
	var b embedding.Backend = remote
	if cfg.RequestsPerMinute > 0 {
		b = embedding.NewRateLimited(b, cfg.RequestsPerMinute)
	}
	b = embedding.NewBreaker(b, embedding.BreakerSettings{
		MaxFailures: cfg.Breaker.MaxFailures,
		Timeout:     cfg.Breaker.Timeout,
		Interval:    cfg.Breaker.Interval,
	}, logger)
	logger.Info("openai backend configured",
		zap.String("model", remote.Model()),
		zap.Int("requests_per_minute", cfg.RequestsPerMinute))
	return b, nil
}

func closeAll(backends []embedding.Backend) {
	for _, b := range backends {
		_ = b.Close()
	}
}
