package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/valutatrade/hub/pkg/model"
)

type memPortfolioStore struct {
	saved   map[int]*model.Portfolio
	saveErr error
	saves   int
}

func (m *memPortfolioStore) LoadPortfolios(context.Context) (map[int]*model.Portfolio, error) {
	if m.saved == nil {
		return make(map[int]*model.Portfolio), nil
	}
	return m.saved, nil
}

func (m *memPortfolioStore) SavePortfolios(_ context.Context, portfolios map[int]*model.Portfolio) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = portfolios
	return nil
}

func newTestBook(t *testing.T, st *memPortfolioStore) *Book {
	t.Helper()
	b, err := NewBook(context.Background(), zap.NewNop(), st)
	require.NoError(t, err)
	return b
}

func TestBookCreate(t *testing.T) {
	st := &memPortfolioStore{}
	b := newTestBook(t, st)
	ctx := context.Background()

	require.NoError(t, b.Create(ctx, 1))
	assert.Error(t, b.Create(ctx, 1), "duplicate portfolio rejected")
	assert.Equal(t, 1, st.saves)
}

func TestBookCreateRollsBackOnSaveFailure(t *testing.T) {
	st := &memPortfolioStore{saveErr: errors.New("disk full")}
	b := newTestBook(t, st)

	err := b.Create(context.Background(), 1)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	st.saveErr = nil
	require.NoError(t, b.Create(context.Background(), 1), "failed create leaves no trace")
}

func TestBookExecutePersists(t *testing.T) {
	st := &memPortfolioStore{}
	b := newTestBook(t, st)
	ctx := context.Background()

	require.NoError(t, b.Deposit(ctx, 1, "USD", dec("1000")))
	require.NoError(t, b.Execute(ctx, 1, Transfer{
		DebitCode:    "USD",
		DebitAmount:  dec("600.60"),
		CreditCode:   "BTC",
		CreditAmount: dec("0.01"),
	}))

	assert.True(t, b.Balance(1, "USD").Equal(dec("399.40")))
	assert.True(t, b.Balance(1, "BTC").Equal(dec("0.01")))
	assert.True(t, st.saved[1].Wallet("BTC").Balance.Equal(dec("0.01")), "persisted state matches memory")
}

func TestBookExecuteRollsBackOnSaveFailure(t *testing.T) {
	st := &memPortfolioStore{}
	b := newTestBook(t, st)
	ctx := context.Background()

	require.NoError(t, b.Deposit(ctx, 1, "USD", dec("1052.37")))
	require.NoError(t, b.Deposit(ctx, 1, "BTC", dec("0.0003")))

	st.saveErr = errors.New("disk full")
	err := b.Execute(ctx, 1, Transfer{
		DebitCode:    "USD",
		DebitAmount:  dec("600.5994"),
		CreditCode:   "BTC",
		CreditAmount: dec("0.01"),
	})
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	assert.True(t, b.Balance(1, "USD").Equal(dec("1052.37")), "debit leg restored exactly")
	assert.True(t, b.Balance(1, "BTC").Equal(dec("0.0003")), "credit leg restored exactly")
}

func TestBookExecuteInsufficientFunds(t *testing.T) {
	st := &memPortfolioStore{}
	b := newTestBook(t, st)

	err := b.Execute(context.Background(), 1, Transfer{
		DebitCode:    "USD",
		DebitAmount:  dec("10"),
		CreditCode:   "BTC",
		CreditAmount: dec("0.001"),
	})
	var insufficient *InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 0, st.saves, "nothing persisted for a rejected trade")
}

func TestBookBalancesCopy(t *testing.T) {
	st := &memPortfolioStore{}
	b := newTestBook(t, st)
	require.NoError(t, b.Deposit(context.Background(), 1, "USD", dec("5")))

	balances := b.Balances(1)
	balances["USD"] = dec("999")
	assert.True(t, b.Balance(1, "USD").Equal(dec("5")))
}
