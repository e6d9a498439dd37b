package model

import (
	"fmt"
	"strings"
)

// CurrencyKind distinguishes fiat currencies from crypto assets.
type CurrencyKind string

const (
	KindFiat   CurrencyKind = "fiat"
	KindCrypto CurrencyKind = "crypto"
)

// Currency is a single registry record tagged by kind. Kind-specific
// attributes are optional fields rather than subtypes.
type Currency struct {
	Code string       `json:"code"`
	Name string       `json:"name"`
	Kind CurrencyKind `json:"kind"`

	// Fiat only.
	IssuingCountry string `json:"issuing_country,omitempty"`

	// Crypto only.
	Algorithm string  `json:"algorithm,omitempty"`
	MarketCap float64 `json:"market_cap,omitempty"`
}

// DisplayInfo renders the currency for UIs and logs.
func (c Currency) DisplayInfo() string {
	switch c.Kind {
	case KindFiat:
		return fmt.Sprintf("[FIAT] %s — %s (Issuing: %s)", c.Code, c.Name, c.IssuingCountry)
	case KindCrypto:
		return fmt.Sprintf("[CRYPTO] %s — %s (Algo: %s)", c.Code, c.Name, c.Algorithm)
	default:
		return fmt.Sprintf("%s — %s", c.Code, c.Name)
	}
}

// ValidateCode reports whether code is a plausible currency symbol:
// 2-5 alphanumeric characters, no spaces.
func ValidateCode(code string) error {
	code = strings.TrimSpace(code)
	if len(code) < 2 || len(code) > 5 {
		return fmt.Errorf("currency code must be 2-5 characters, got %q", code)
	}
	for _, r := range code {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return fmt.Errorf("currency code must be alphanumeric, got %q", code)
		}
	}
	return nil
}

// NormalizeCode upper-cases and trims a currency code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
