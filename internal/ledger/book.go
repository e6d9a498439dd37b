package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/valutatrade/hub/internal/store"
	"github.com/valutatrade/hub/pkg/model"
)

// PersistenceError wraps a failed portfolio write. Callers can promise that
// when they see it, in-memory balances already match the persisted state.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Book holds every portfolio in memory and keeps the persisted document in
// step with it. All mutation goes through the book's lock.
type Book struct {
	logger *zap.Logger
	store  store.PortfolioStore

	mu         sync.Mutex
	portfolios map[int]*model.Portfolio
}

// NewBook loads the persisted portfolios.
func NewBook(ctx context.Context, logger *zap.Logger, st store.PortfolioStore) (*Book, error) {
	portfolios, err := st.LoadPortfolios(ctx)
	if err != nil {
		return nil, fmt.Errorf("load portfolios: %w", err)
	}
	logger.Info("ledger.book_loaded", zap.Int("portfolios", len(portfolios)))
	return &Book{logger: logger, store: st, portfolios: portfolios}, nil
}

// Create persists an empty portfolio for a new user.
func (b *Book) Create(ctx context.Context, userID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.portfolios[userID]; exists {
		return fmt.Errorf("portfolio for user %d already exists", userID)
	}
	b.portfolios[userID] = model.NewPortfolio(userID)
	if err := b.store.SavePortfolios(ctx, b.portfolios); err != nil {
		delete(b.portfolios, userID)
		return &PersistenceError{Err: err}
	}
	return nil
}

// Execute applies a two-leg transfer and persists the result. If the write
// fails the legs are inverted in memory before the error surfaces, so memory
// never drifts from disk.
func (b *Book) Execute(ctx context.Context, userID int, t Transfer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.portfolioLocked(userID)
	if err := Apply(p, t); err != nil {
		return err
	}
	if err := b.store.SavePortfolios(ctx, b.portfolios); err != nil {
		if rerr := Revert(p, t); rerr != nil {
			// Revert can only fail if the book was mutated outside the lock.
			b.logger.Error("ledger.rollback_failed",
				zap.Int("user_id", userID),
				zap.Error(rerr))
		}
		b.logger.Warn("ledger.trade_rolled_back",
			zap.Int("user_id", userID),
			zap.Error(err))
		return &PersistenceError{Err: err}
	}
	return nil
}

// Deposit credits a wallet and persists, rolling back the credit on a failed
// write.
func (b *Book) Deposit(ctx context.Context, userID int, code string, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.portfolioLocked(userID)
	if err := Deposit(p, code, amount); err != nil {
		return err
	}
	if err := b.store.SavePortfolios(ctx, b.portfolios); err != nil {
		if rerr := Withdraw(p, code, amount); rerr != nil {
			b.logger.Error("ledger.rollback_failed",
				zap.Int("user_id", userID),
				zap.Error(rerr))
		}
		return &PersistenceError{Err: err}
	}
	return nil
}

// Balances returns a copy of the user's balances keyed by currency code.
func (b *Book) Balances(userID int) map[string]decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.portfolioLocked(userID)
	out := make(map[string]decimal.Decimal, len(p.Wallets))
	for code, w := range p.Wallets {
		out[code] = w.Balance
	}
	return out
}

// Balance returns the balance for one wallet, zero when absent.
func (b *Book) Balance(userID int, code string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.portfolios[userID]
	if !ok || !p.HasWallet(code) {
		return decimal.Zero
	}
	return p.Wallet(code).Balance
}

func (b *Book) portfolioLocked(userID int) *model.Portfolio {
	p, ok := b.portfolios[userID]
	if !ok {
		p = model.NewPortfolio(userID)
		b.portfolios[userID] = p
	}
	return p
}
