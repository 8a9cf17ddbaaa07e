package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"batch-service/config"
	"batch-service/internal/models"
	"batch-service/internal/util"

	"go.uber.org/zap"
)

// HintResolver looks up optional shelf-life and default-batch-quantity hints
// for a product. Implementations must treat "field not set" as a normal
// answer and fail only on transport or auth problems.
type HintResolver interface {
	ResolveProductHints(ctx context.Context, tenant, externalProductID string) (models.ProductHints, error)
}

// HintCache caches resolver answers per tenant and product.
type HintCache interface {
	GetHints(ctx context.Context, tenant, externalProductID string) (*models.ProductHints, error)
	SetHints(ctx context.Context, tenant, externalProductID string, hints *models.ProductHints, ttl time.Duration) error
}

// MetadataResolver is the HTTP client for the remote product-metadata
// service. Calls are bounded by the configured timeout and retried once on
// transient failure; 4xx and malformed answers degrade to empty hints.
type MetadataResolver struct {
	baseURL  string
	client   *http.Client
	tokens   map[string]string
	cache    HintCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewMetadataResolver creates a resolver client. cache may be nil.
func NewMetadataResolver(cfg config.ResolverConfig, cache HintCache) *MetadataResolver {
	return &MetadataResolver{
		baseURL:  cfg.BaseURL,
		client:   &http.Client{Timeout: cfg.Timeout},
		tokens:   cfg.Tokens,
		cache:    cache,
		cacheTTL: cfg.CacheTTL,
		logger:   util.GetLogger(),
	}
}

// ResolveProductHints fetches hints for a product on behalf of a tenant.
func (r *MetadataResolver) ResolveProductHints(ctx context.Context, tenant, externalProductID string) (models.ProductHints, error) {
	ctx, span := util.StartSpan(ctx, "MetadataResolver.ResolveProductHints")
	defer span.End()

	if r.cache != nil {
		cached, err := r.cache.GetHints(ctx, tenant, externalProductID)
		if err != nil {
			r.logger.Warn("Hint cache read failed",
				zap.String("tenant", tenant),
				zap.String("product", externalProductID),
				zap.Error(err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	start := time.Now()
	defer func() {
		util.ResolverRequestDuration.Observe(time.Since(start).Seconds())
	}()

	hints, err := r.fetch(ctx, tenant, externalProductID)
	if err != nil {
		// One retry covers the transient network/5xx cases; anything that
		// still fails is reported as unavailable and the caller degrades to
		// "no hints".
		r.logger.Warn("Resolver call failed, retrying",
			zap.String("tenant", tenant),
			zap.String("product", externalProductID),
			zap.Error(err))
		hints, err = r.fetch(ctx, tenant, externalProductID)
	}
	if err != nil {
		util.ResolverFailuresTotal.WithLabelValues("transport").Inc()
		return models.ProductHints{}, fmt.Errorf("%w: %v", models.ErrResolverUnavailable, err)
	}

	if r.cache != nil {
		if err := r.cache.SetHints(ctx, tenant, externalProductID, &hints, r.cacheTTL); err != nil {
			r.logger.Warn("Hint cache write failed", zap.Error(err))
		}
	}
	return hints, nil
}

func (r *MetadataResolver) fetch(ctx context.Context, tenant, externalProductID string) (models.ProductHints, error) {
	endpoint := fmt.Sprintf("%s/v1/products/%s/hints", r.baseURL, url.PathEscape(externalProductID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.ProductHints{}, err
	}
	req.Header.Set("X-Tenant-ID", tenant)
	if token, ok := r.tokens[tenant]; ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return models.ProductHints{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var hints models.ProductHints
		if err := json.NewDecoder(resp.Body).Decode(&hints); err != nil {
			// Malformed body counts as "no hints", not a failure.
			r.logger.Warn("Malformed resolver response",
				zap.String("product", externalProductID),
				zap.Error(err))
			util.ResolverFailuresTotal.WithLabelValues("malformed").Inc()
			return models.ProductHints{}, nil
		}
		return hints, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Unknown product, missing scope and friends: no hints available.
		util.ResolverFailuresTotal.WithLabelValues("client_error").Inc()
		return models.ProductHints{}, nil

	default:
		return models.ProductHints{}, fmt.Errorf("resolver returned status %d", resp.StatusCode)
	}
}
