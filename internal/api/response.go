package api

import "github.com/shopspring/decimal"

// UserResponse confirms a register or login.
type UserResponse struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Message  string `json:"message,omitempty"`
}

// RateResponse is one resolved quote.
type RateResponse struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Rate      decimal.Decimal `json:"rate"`
	UpdatedAt string          `json:"updated_at"`
	Source    string          `json:"source"`
	Derived   bool            `json:"derived,omitempty"`
}

// RefreshResponse reports a forced cache refresh.
type RefreshResponse struct {
	UpdatedBySource map[string]int `json:"updated_by_source"`
	FailedSources   []string       `json:"failed_sources,omitempty"`
	PairsTotal      int            `json:"pairs_total"`
	RefreshedAt     string         `json:"refreshed_at"`
}

// PortfolioResponse is the valuation of the current user's wallets.
type PortfolioResponse struct {
	BaseCurrency string                     `json:"base_currency"`
	Balances     map[string]decimal.Decimal `json:"balances"`
	TotalValue   string                     `json:"total_value"`
}

// TradeResponse confirms an executed trade. Amount is 4dp native currency,
// Cost 2dp base currency.
type TradeResponse struct {
	Side         string `json:"side"`
	CurrencyCode string `json:"currency_code"`
	Amount       string `json:"amount"`
	Rate         string `json:"rate"`
	Cost         string `json:"cost"`
	BaseCurrency string `json:"base_currency"`
	ExecutedAt   string `json:"executed_at"`
	Message      string `json:"message"`
}
