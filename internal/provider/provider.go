// Package provider implements the upstream rate sources. Each adapter fetches
// quotes for its currency class and returns them as CODE→BASE rates.
package provider

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/valutatrade/hub/pkg/model"
)

// Provider fetches current rates for a set of currency codes against a base
// currency. The returned map carries one entry per successfully quoted code,
// each rate meaning "1 CODE = rate BASE". Codes the source does not know are
// omitted, not errored.
type Provider interface {
	// Name is the source tag recorded on every pair this provider quotes.
	Name() string
	// FetchRates retrieves CODE→BASE rates for the requested codes.
	FetchRates(ctx context.Context, codes []string, base string) (map[string]decimal.Decimal, error)
}

// validateRequest rejects empty or malformed code sets before any network
// call is made.
func validateRequest(codes []string, base string) error {
	if len(codes) == 0 {
		return fmt.Errorf("no currency codes requested")
	}
	if err := model.ValidateCode(model.NormalizeCode(base)); err != nil {
		return fmt.Errorf("invalid base currency %q: %w", base, err)
	}
	for _, code := range codes {
		if err := model.ValidateCode(model.NormalizeCode(code)); err != nil {
			return fmt.Errorf("invalid currency code %q: %w", code, err)
		}
	}
	return nil
}
