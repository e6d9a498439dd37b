// Package registry holds the static set of currencies the hub trades.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/valutatrade/hub/pkg/model"
)

// CurrencyNotFoundError is returned for codes absent from the registry.
type CurrencyNotFoundError struct {
	Code string
}

func (e *CurrencyNotFoundError) Error() string {
	return fmt.Sprintf("unknown currency %q", e.Code)
}

// Registry is a read-mostly map of code → Currency. The built-in set can be
// extended with Register before the service starts serving.
type Registry struct {
	mu         sync.RWMutex
	currencies map[string]model.Currency
}

// NewDefault builds a registry pre-loaded with the supported fiat and
// crypto currencies.
func NewDefault() *Registry {
	r := &Registry{currencies: make(map[string]model.Currency)}

	fiats := []model.Currency{
		{Code: "USD", Name: "US Dollar", Kind: model.KindFiat, IssuingCountry: "United States"},
		{Code: "EUR", Name: "Euro", Kind: model.KindFiat, IssuingCountry: "Eurozone"},
		{Code: "RUB", Name: "Russian Ruble", Kind: model.KindFiat, IssuingCountry: "Russia"},
		{Code: "GBP", Name: "British Pound", Kind: model.KindFiat, IssuingCountry: "United Kingdom"},
		{Code: "JPY", Name: "Japanese Yen", Kind: model.KindFiat, IssuingCountry: "Japan"},
		{Code: "CHF", Name: "Swiss Franc", Kind: model.KindFiat, IssuingCountry: "Switzerland"},
	}
	cryptos := []model.Currency{
		{Code: "BTC", Name: "Bitcoin", Kind: model.KindCrypto, Algorithm: "SHA-256", MarketCap: 1.12e12},
		{Code: "ETH", Name: "Ethereum", Kind: model.KindCrypto, Algorithm: "Ethash", MarketCap: 4.5e11},
		{Code: "LTC", Name: "Litecoin", Kind: model.KindCrypto, Algorithm: "Scrypt", MarketCap: 6.5e9},
		{Code: "XRP", Name: "Ripple", Kind: model.KindCrypto, Algorithm: "XRP Ledger Consensus", MarketCap: 3.0e10},
		{Code: "ADA", Name: "Cardano", Kind: model.KindCrypto, Algorithm: "Ouroboros", MarketCap: 1.5e10},
		{Code: "SOL", Name: "Solana", Kind: model.KindCrypto, Algorithm: "Proof of History", MarketCap: 6.0e10},
		{Code: "DOT", Name: "Polkadot", Kind: model.KindCrypto, Algorithm: "Nominated PoS", MarketCap: 9.0e9},
	}

	for _, c := range append(fiats, cryptos...) {
		r.currencies[c.Code] = c
	}
	return r
}

// Get resolves a currency by code (case-insensitive).
func (r *Registry) Get(code string) (model.Currency, error) {
	norm := model.NormalizeCode(code)
	if err := model.ValidateCode(norm); err != nil {
		return model.Currency{}, &CurrencyNotFoundError{Code: code}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.currencies[norm]
	if !ok {
		return model.Currency{}, &CurrencyNotFoundError{Code: norm}
	}
	return c, nil
}

// Register adds a currency; codes must be unique.
func (r *Registry) Register(c model.Currency) error {
	c.Code = model.NormalizeCode(c.Code)
	if err := model.ValidateCode(c.Code); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.currencies[c.Code]; exists {
		return fmt.Errorf("currency %q already registered", c.Code)
	}
	r.currencies[c.Code] = c
	return nil
}

// Codes returns all registered codes sorted for stable display.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.currencies))
	for code := range r.currencies {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
