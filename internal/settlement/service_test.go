package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/valutatrade/hub/internal/auth"
	"github.com/valutatrade/hub/internal/ledger"
	"github.com/valutatrade/hub/internal/rates"
	"github.com/valutatrade/hub/internal/registry"
	"github.com/valutatrade/hub/pkg/config"
	"github.com/valutatrade/hub/pkg/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type memRatesStore struct {
	doc *model.RatesDocument
}

func (m *memRatesStore) LoadRates(context.Context) (*model.RatesDocument, error) {
	if m.doc == nil {
		return model.NewRatesDocument(), nil
	}
	return m.doc, nil
}

func (m *memRatesStore) SaveRates(_ context.Context, doc *model.RatesDocument) error {
	m.doc = doc
	return nil
}

type memUserStore struct {
	users []model.User
}

func (m *memUserStore) LoadUsers(context.Context) ([]model.User, error) { return m.users, nil }

func (m *memUserStore) SaveUsers(_ context.Context, users []model.User) error {
	m.users = append([]model.User(nil), users...)
	return nil
}

type memPortfolioStore struct {
	saved   map[int]*model.Portfolio
	saveErr error
}

func (m *memPortfolioStore) LoadPortfolios(context.Context) (map[int]*model.Portfolio, error) {
	if m.saved == nil {
		return make(map[int]*model.Portfolio), nil
	}
	return m.saved, nil
}

func (m *memPortfolioStore) SavePortfolios(_ context.Context, portfolios map[int]*model.Portfolio) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = portfolios
	return nil
}

type capturePublisher struct {
	envelopes []*model.Envelope
	subjects  []string
}

func (c *capturePublisher) Publish(_ context.Context, subject string, env *model.Envelope) error {
	c.subjects = append(c.subjects, subject)
	c.envelopes = append(c.envelopes, env)
	return nil
}

func (c *capturePublisher) Close() {}

type fixture struct {
	svc  *Service
	book *ledger.Book
	ps   *memPortfolioStore
	pub  *capturePublisher
	user *model.User
}

// newFixture builds a logged-in service over a fresh cache quoting
// BTC/USD=60000 and EUR/USD=1.08.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	cfg := &config.Config{
		BaseCurrency:       "USD",
		MinTradeAmount:     dec("0.0001"),
		CommissionRate:     dec("0.001"),
		RatesTTL:           5 * time.Minute,
		PublishSubjectBase: "evt.hub",
	}

	now := model.FormatTimestamp(time.Now().UTC())
	doc := model.NewRatesDocument()
	doc.Pairs["BTC_USD"] = model.PairRate{Rate: dec("60000"), UpdatedAt: now, Source: "coingecko"}
	doc.Pairs["EUR_USD"] = model.PairRate{Rate: dec("1.08"), UpdatedAt: now, Source: "exchangerate-api"}
	doc.LastRefresh = now

	cache, err := rates.NewCache(ctx, cfg, zap.NewNop(), &memRatesStore{doc: doc}, nil, nil)
	require.NoError(t, err)

	ps := &memPortfolioStore{}
	book, err := ledger.NewBook(ctx, zap.NewNop(), ps)
	require.NoError(t, err)

	authSvc, err := auth.NewService(ctx, zap.NewNop(), &memUserStore{}, book)
	require.NoError(t, err)
	user, err := authSvc.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	_, err = authSvc.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	pub := &capturePublisher{}
	svc := NewService(zap.NewNop(), cfg, registry.NewDefault(), cache, book, authSvc, pub)
	return &fixture{svc: svc, book: book, ps: ps, pub: pub, user: user}
}

func (f *fixture) fund(t *testing.T, code, amount string) {
	t.Helper()
	require.NoError(t, f.book.Deposit(context.Background(), f.user.UserID, code, dec(amount)))
}

func TestBuyExecutes(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "USD", "1000")

	conf, err := f.svc.Buy(context.Background(), "btc", dec("0.01"))
	require.NoError(t, err)

	// 0.01 * 60000 = 600, plus 0.1% commission = 600.6
	assert.True(t, conf.Cost.Equal(dec("600.6")))
	assert.True(t, conf.Rate.Equal(dec("60000")))
	assert.Equal(t, "BTC", conf.CurrencyCode)

	assert.True(t, f.book.Balance(f.user.UserID, "USD").Equal(dec("399.4")))
	assert.True(t, f.book.Balance(f.user.UserID, "BTC").Equal(dec("0.01")))

	require.NotEmpty(t, f.pub.envelopes)
	assert.Equal(t, "trade.executed", f.pub.envelopes[len(f.pub.envelopes)-1].EventType)
	assert.Equal(t, "evt.hub.trades", f.pub.subjects[len(f.pub.subjects)-1])
}

func TestBuyInsufficientFundsIsSoft(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "USD", "500")

	_, err := f.svc.Buy(context.Background(), "BTC", dec("0.01"))
	var rejected *TradeRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Reason, "need $600.60")
	assert.Contains(t, rejected.Reason, "available $500.00")

	assert.True(t, f.book.Balance(f.user.UserID, "USD").Equal(dec("500")), "balance untouched")
}

func TestBuyBelowMinimumIsSoft(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "USD", "1000")

	_, err := f.svc.Buy(context.Background(), "BTC", dec("0.00005"))
	var rejected *TradeRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Reason, "minimum trade size")
}

func TestBuyRequiresSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.auth.Logout())

	_, err := f.svc.Buy(context.Background(), "BTC", dec("0.01"))
	var unauth *auth.UserNotAuthenticatedError
	assert.ErrorAs(t, err, &unauth)
}

func TestBuyUnknownCurrency(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "USD", "1000")

	_, err := f.svc.Buy(context.Background(), "ZZZZ", dec("1"))
	var notFound *registry.CurrencyNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestBuyInvalidAmount(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Buy(context.Background(), "BTC", decimal.Zero)
	var invalid *ledger.InvalidAmountError
	assert.ErrorAs(t, err, &invalid)
}

func TestSellExecutesWithCommissionDeducted(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "BTC", "0.05")

	conf, err := f.svc.Sell(context.Background(), "BTC", dec("0.02"))
	require.NoError(t, err)

	// 0.02 * 60000 = 1200, minus 0.1% commission = 1198.8
	assert.True(t, conf.Cost.Equal(dec("1198.8")))
	assert.True(t, f.book.Balance(f.user.UserID, "USD").Equal(dec("1198.8")))
	assert.True(t, f.book.Balance(f.user.UserID, "BTC").Equal(dec("0.03")))
}

func TestSellInsufficientFundsIsHard(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "BTC", "0.005")

	_, err := f.svc.Sell(context.Background(), "BTC", dec("0.01"))
	var insufficient *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "BTC", insufficient.Code)
	assert.True(t, insufficient.Available.Equal(dec("0.005")))
	assert.True(t, insufficient.Required.Equal(dec("0.01")))
}

func TestBuyPersistenceFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "USD", "1000")
	f.ps.saveErr = errors.New("disk full")

	_, err := f.svc.Buy(context.Background(), "BTC", dec("0.01"))
	var perr *ledger.PersistenceError
	require.ErrorAs(t, err, &perr)

	assert.True(t, f.book.Balance(f.user.UserID, "USD").Equal(dec("1000")), "debit leg restored")
	assert.True(t, f.book.Balance(f.user.UserID, "BTC").IsZero(), "credit leg restored")
	assert.Equal(t, "trade.failed", f.pub.envelopes[len(f.pub.envelopes)-1].EventType)
}

func TestShowPortfolio(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "USD", "100")
	f.fund(t, "BTC", "0.01")

	v, err := f.svc.ShowPortfolio(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "USD", v.BaseCurrency)
	// 100 + 0.01*60000 = 700
	assert.True(t, v.TotalValue.Equal(dec("700")))
	assert.True(t, v.Balances["BTC"].Equal(dec("0.01")))
}

func TestShowPortfolioFallbackTable(t *testing.T) {
	f := newFixture(t)
	// SOL is not in the live cache; the cache is fresh so no refresh happens
	// and valuation falls back to the fixed table.
	f.fund(t, "SOL", "2")

	v, err := f.svc.ShowPortfolio(context.Background(), "USD")
	require.NoError(t, err)
	assert.True(t, v.TotalValue.Equal(dec("300")))
}

func TestGetRateValidatesCodes(t *testing.T) {
	f := newFixture(t)

	q, err := f.svc.GetRate(context.Background(), "EUR", "USD")
	require.NoError(t, err)
	assert.True(t, q.Rate.Equal(dec("1.08")))

	_, err = f.svc.GetRate(context.Background(), "EUR", "NOPE")
	var notFound *registry.CurrencyNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestRefreshRatesPublishesEvent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RefreshRates(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, f.pub.envelopes)
	assert.Equal(t, "rates.refreshed", f.pub.envelopes[len(f.pub.envelopes)-1].EventType)
	assert.Equal(t, "evt.hub.rates.refreshed", f.pub.subjects[len(f.pub.subjects)-1])
}
