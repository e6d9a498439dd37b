// Package ledger owns all wallet balance mutation. Balances never go
// negative; every debit is checked before it is applied.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/valutatrade/hub/pkg/model"
)

// InsufficientFundsError is the hard rejection for a debit exceeding the
// wallet balance.
type InsufficientFundsError struct {
	Code      string
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in %s wallet: available %s, required %s",
		e.Code, e.Available.String(), e.Required.String())
}

// InvalidAmountError rejects non-positive amounts before any balance is read.
type InvalidAmountError struct {
	Amount decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("amount must be positive, got %s", e.Amount.String())
}

// Deposit credits amount to the wallet for code, creating it if absent.
func Deposit(p *model.Portfolio, code string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &InvalidAmountError{Amount: amount}
	}
	w := p.Wallet(code)
	w.Balance = w.Balance.Add(amount)
	return nil
}

// TryWithdraw debits amount if the balance covers it, reporting success.
// Missing wallets count as zero balance.
func TryWithdraw(p *model.Portfolio, code string, amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	w := p.Wallet(code)
	if w.Balance.LessThan(amount) {
		return false
	}
	w.Balance = w.Balance.Sub(amount)
	return true
}

// Withdraw debits amount or fails with a typed error carrying the shortfall.
func Withdraw(p *model.Portfolio, code string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &InvalidAmountError{Amount: amount}
	}
	w := p.Wallet(code)
	if w.Balance.LessThan(amount) {
		return &InsufficientFundsError{
			Code:      model.NormalizeCode(code),
			Available: w.Balance,
			Required:  amount,
		}
	}
	w.Balance = w.Balance.Sub(amount)
	return nil
}

// Transfer is the two-leg balance mutation of one trade: debit one wallet,
// credit another.
type Transfer struct {
	DebitCode    string
	DebitAmount  decimal.Decimal
	CreditCode   string
	CreditAmount decimal.Decimal
}

// Apply performs both legs. If the debit leg fails nothing is touched.
func Apply(p *model.Portfolio, t Transfer) error {
	if err := Withdraw(p, t.DebitCode, t.DebitAmount); err != nil {
		return err
	}
	if err := Deposit(p, t.CreditCode, t.CreditAmount); err != nil {
		// put the debit leg back before reporting
		_ = Deposit(p, t.DebitCode, t.DebitAmount)
		return err
	}
	return nil
}

// Revert undoes an applied transfer exactly: the credited amount comes back
// out, the debited amount goes back in. Decimal arithmetic makes the inverse
// exact, so balances match their pre-trade values bit for bit.
func Revert(p *model.Portfolio, t Transfer) error {
	if err := Withdraw(p, t.CreditCode, t.CreditAmount); err != nil {
		return fmt.Errorf("revert credit leg: %w", err)
	}
	if err := Deposit(p, t.DebitCode, t.DebitAmount); err != nil {
		return fmt.Errorf("revert debit leg: %w", err)
	}
	return nil
}
