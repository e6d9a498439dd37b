package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is a single-currency balance inside a portfolio. Balance never
// goes negative; all mutation goes through the ledger.
type Wallet struct {
	CurrencyCode string          `json:"currency_code"`
	Balance      decimal.Decimal `json:"balance"`
}

// Portfolio holds one user's wallets, keyed by currency code (at most one
// wallet per code).
type Portfolio struct {
	UserID  int                `json:"user_id"`
	Wallets map[string]*Wallet `json:"wallets"`
}

// NewPortfolio returns an empty portfolio for a user.
func NewPortfolio(userID int) *Portfolio {
	return &Portfolio{
		UserID:  userID,
		Wallets: make(map[string]*Wallet),
	}
}

// Wallet returns the wallet for code, creating a zero-balance one if absent.
func (p *Portfolio) Wallet(code string) *Wallet {
	code = NormalizeCode(code)
	w, ok := p.Wallets[code]
	if !ok {
		w = &Wallet{CurrencyCode: code, Balance: decimal.Zero}
		p.Wallets[code] = w
	}
	return w
}

// HasWallet reports whether a wallet exists for code without creating one.
func (p *Portfolio) HasWallet(code string) bool {
	_, ok := p.Wallets[NormalizeCode(code)]
	return ok
}

// User is a registered account. Passwords are stored as salted SHA-256.
type User struct {
	UserID           int    `json:"user_id"`
	Username         string `json:"username"`
	HashedPassword   string `json:"hashed_password"`
	Salt             string `json:"salt"`
	RegistrationDate string `json:"registration_date"`
}

// TradeSide is the direction of a settlement.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// TradeConfirmation reports an executed trade back to the caller.
type TradeConfirmation struct {
	Side         TradeSide       `json:"side"`
	CurrencyCode string          `json:"currency_code"`
	Amount       decimal.Decimal `json:"amount"`
	Rate         decimal.Decimal `json:"rate"`
	// Cost is the base-currency amount moved: debit for buys (commission
	// included), credit for sells (commission deducted).
	Cost         decimal.Decimal `json:"cost"`
	BaseCurrency string          `json:"base_currency"`
	ExecutedAt   time.Time       `json:"executed_at"`
}

// PortfolioValuation is the response shape for portfolio display: raw
// balances plus a total converted into the requested base currency.
type PortfolioValuation struct {
	BaseCurrency string                     `json:"base_currency"`
	Balances     map[string]decimal.Decimal `json:"balances"`
	TotalValue   decimal.Decimal            `json:"total_value"`
}
