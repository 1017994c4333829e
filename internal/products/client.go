// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package products

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/finmatch/recommender/internal/recommend"
)

// Config holds product catalog client configuration.
type Config struct {
	// BaseURL is the catalog service root, e.g. "http://products:8080".
	BaseURL string `koanf:"base_url"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `koanf:"timeout"`

	// RateLimit is the sustained request rate per second.
	RateLimit float64 `koanf:"rate_limit"`

	// RateBurst is the rate limiter burst size.
	RateBurst int `koanf:"rate_burst"`
}

// DefaultConfig returns the default catalog client configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:   5 * time.Second,
		RateLimit: 50,
		RateBurst: 25,
	}
}

// Client is a product catalog client with circuit breaker protection
// and client-side rate limiting.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient creates a catalog client. The breaker opens after a 60%
// failure rate over at least 10 requests and probes recovery after 30
// seconds.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 50
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 25
	}

	log := logger.With().Str("component", "products").Logger()

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "product-catalog",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		// A 404 is a valid catalog answer, not a service failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNotFound)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:  log,
	}
}

// errNotFound marks a 404 from the catalog; it must not trip the
// breaker and is translated into a placeholder by the callers.
var errNotFound = errors.New("product not found in catalog")

// GetProductDetails returns metadata for one product. An unknown or
// unreachable product yields a placeholder entry, never an error-free
// hole in the response.
func (c *Client) GetProductDetails(ctx context.Context, productID string) (map[string]any, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: empty product id", recommend.ErrInvalidParameter)
	}

	body, err := c.get(ctx, "/api/products/"+productID)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return placeholder(productID), nil
		}
		return nil, fmt.Errorf("%w: fetching product %s: %w", recommend.ErrExternalService, productID, err)
	}

	var details map[string]any
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("%w: decoding product %s: %w", recommend.ErrExternalService, productID, err)
	}
	return details, nil
}

// GetProductDetailsBatch resolves metadata for several products. Each
// product degrades independently: failures and unknown IDs become
// placeholders, and the returned map always has one entry per
// requested ID.
func (c *Client) GetProductDetailsBatch(ctx context.Context, productIDs []string) (map[string]map[string]any, error) {
	result := make(map[string]map[string]any, len(productIDs))
	for _, id := range productIDs {
		if id == "" {
			continue
		}
		if _, ok := result[id]; ok {
			continue
		}
		details, err := c.GetProductDetails(ctx, id)
		if err != nil {
			c.logger.Debug().Err(err).Str("product_id", id).Msg("using placeholder details")
			details = placeholder(id)
		}
		result[id] = details
	}
	return result, nil
}

// get performs a rate-limited GET through the circuit breaker.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, errNotFound
		case resp.StatusCode != http.StatusOK:
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
		}

		return io.ReadAll(resp.Body)
	})
}

// placeholder synthesizes minimal details for a product the catalog
// could not resolve.
func placeholder(productID string) map[string]any {
	return map[string]any{
		"id":          productID,
		"name":        "Product " + productID,
		"unavailable": true,
	}
}

var _ recommend.ProductCatalog = (*Client)(nil)
