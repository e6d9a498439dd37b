// Package secrets resolves provider credentials, preferring static
// environment configuration and falling back to AWS Secrets Manager.
package secrets

import "context"

// Provider fetches a secret as a flat key/value map.
type Provider interface {
	GetSecret(ctx context.Context, key string) (map[string]string, error)
}
