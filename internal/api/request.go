package api

import "github.com/shopspring/decimal"

// CredentialsRequest carries register and login bodies.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TradeRequest carries buy and sell bodies. Amount accepts a JSON number or
// string so callers never lose precision to float parsing.
type TradeRequest struct {
	CurrencyCode string          `json:"currency_code"`
	Amount       decimal.Decimal `json:"amount"`
}
