package secrets

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// APIKeyResolver resolves the fiat provider's API key. A static key from the
// environment always wins; otherwise the key is fetched from the secrets
// backend under secretName and cached with a TTL so rotation is picked up
// without a restart.
type APIKeyResolver struct {
	logger     *zap.Logger
	staticKey  string
	secretName string
	provider   Provider
	cache      *Cache[string]
}

// NewAPIKeyResolver builds a resolver. provider may be nil when no secrets
// backend is configured; staticKey is then the only source.
func NewAPIKeyResolver(logger *zap.Logger, staticKey, secretName string, provider Provider, cache *Cache[string]) *APIKeyResolver {
	return &APIKeyResolver{
		logger:     logger,
		staticKey:  staticKey,
		secretName: secretName,
		provider:   provider,
		cache:      cache,
	}
}

// Resolve returns the API key to use for outbound fiat requests.
func (r *APIKeyResolver) Resolve(ctx context.Context) (string, error) {
	if r.secretName == "" || r.provider == nil {
		return r.staticKey, nil
	}

	if key, ok := r.cache.Get(r.secretName); ok {
		return key, nil
	}

	secretMap, err := r.provider.GetSecret(ctx, r.secretName)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed",
			zap.String("key", r.secretName),
			zap.Error(err))
		return "", fmt.Errorf("resolve api key from %q: %w", r.secretName, err)
	}

	key, ok := secretMap["api_key"]
	if !ok || key == "" {
		return "", fmt.Errorf("secret %q missing api_key field", r.secretName)
	}

	r.cache.Put(r.secretName, key)
	r.logger.Info("secrets.api_key_resolved", zap.String("key", r.secretName))
	return key, nil
}
