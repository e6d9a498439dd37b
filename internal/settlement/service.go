// Package settlement orchestrates trades: session checks, rate resolution,
// commission, the two-leg ledger mutation, and event emission.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/valutatrade/hub/internal/auth"
	"github.com/valutatrade/hub/internal/ledger"
	"github.com/valutatrade/hub/internal/metrics"
	"github.com/valutatrade/hub/internal/publisher"
	"github.com/valutatrade/hub/internal/rates"
	"github.com/valutatrade/hub/internal/registry"
	"github.com/valutatrade/hub/pkg/config"
	"github.com/valutatrade/hub/pkg/model"
)

// TradeRejectedError is a soft business rejection: the trade was refused by a
// rule, not by a fault. The reason is safe to show to the user.
type TradeRejectedError struct {
	Reason string
}

func (e *TradeRejectedError) Error() string {
	return "trade rejected: " + e.Reason
}

// fallbackUSDRates values wallets whose codes the live cache cannot quote.
// Display only; trades always go through the cache.
var fallbackUSDRates = map[string]string{
	"BTC": "60000",
	"ETH": "2500",
	"LTC": "85",
	"XRP": "0.55",
	"ADA": "0.45",
	"SOL": "150",
	"DOT": "6.5",
	"EUR": "1.08",
	"GBP": "1.27",
	"RUB": "0.0105",
	"JPY": "0.0067",
	"CHF": "1.14",
}

// Service wires session state, the registry, the rate cache, and the ledger
// book behind the trade operations.
type Service struct {
	logger   *zap.Logger
	cfg      *config.Config
	registry *registry.Registry
	cache    *rates.Cache
	book     *ledger.Book
	auth     *auth.Service
	pub      publisher.Publisher
}

// NewService builds the orchestrator.
func NewService(
	logger *zap.Logger,
	cfg *config.Config,
	reg *registry.Registry,
	cache *rates.Cache,
	book *ledger.Book,
	authSvc *auth.Service,
	pub publisher.Publisher,
) *Service {
	return &Service{
		logger:   logger,
		cfg:      cfg,
		registry: reg,
		cache:    cache,
		book:     book,
		auth:     authSvc,
		pub:      pub,
	}
}

// Buy purchases amount of code, paying from the base wallet. Cost carries
// the commission on top. Insufficient base funds are a soft rejection.
func (s *Service) Buy(ctx context.Context, code string, amount decimal.Decimal) (*model.TradeConfirmation, error) {
	user, err := s.auth.Current()
	if err != nil {
		return nil, err
	}
	cur, quote, err := s.prepare(ctx, code, amount)
	if err != nil {
		return nil, err
	}

	cost := amount.Mul(quote.Rate)
	total := cost.Add(cost.Mul(s.cfg.CommissionRate))

	err = s.book.Execute(ctx, user.UserID, ledger.Transfer{
		DebitCode:    s.cfg.BaseCurrency,
		DebitAmount:  total,
		CreditCode:   cur.Code,
		CreditAmount: amount,
	})
	if err != nil {
		var insufficient *ledger.InsufficientFundsError
		if errors.As(err, &insufficient) {
			// normal business outcome for buys, not a fault
			reject := &TradeRejectedError{Reason: fmt.Sprintf(
				"insufficient funds: need $%s, available $%s",
				total.StringFixed(2), insufficient.Available.StringFixed(2))}
			s.emitTrade(ctx, user.Username, model.SideBuy, cur.Code, amount, quote.Rate, total, "rejected", reject.Reason)
			metrics.IncTrade(string(model.SideBuy), "rejected")
			return nil, reject
		}
		s.emitTrade(ctx, user.Username, model.SideBuy, cur.Code, amount, quote.Rate, total, "failed", err.Error())
		metrics.IncTrade(string(model.SideBuy), "failed")
		return nil, err
	}

	conf := &model.TradeConfirmation{
		Side:         model.SideBuy,
		CurrencyCode: cur.Code,
		Amount:       amount,
		Rate:         quote.Rate,
		Cost:         total,
		BaseCurrency: s.cfg.BaseCurrency,
		ExecutedAt:   time.Now().UTC(),
	}
	s.logger.Info("settlement.buy.executed",
		zap.String("username", user.Username),
		zap.String("code", cur.Code),
		zap.String("amount", amount.StringFixed(4)),
		zap.String("cost", total.StringFixed(2)))
	s.emitTrade(ctx, user.Username, model.SideBuy, cur.Code, amount, quote.Rate, total, "executed", "")
	metrics.IncTrade(string(model.SideBuy), "executed")
	return conf, nil
}

// Sell disposes amount of code, crediting the base wallet with the proceeds
// minus commission. Insufficient target funds fail hard.
func (s *Service) Sell(ctx context.Context, code string, amount decimal.Decimal) (*model.TradeConfirmation, error) {
	user, err := s.auth.Current()
	if err != nil {
		return nil, err
	}
	cur, quote, err := s.prepare(ctx, code, amount)
	if err != nil {
		return nil, err
	}

	revenue := amount.Mul(quote.Rate)
	proceeds := revenue.Sub(revenue.Mul(s.cfg.CommissionRate))

	err = s.book.Execute(ctx, user.UserID, ledger.Transfer{
		DebitCode:    cur.Code,
		DebitAmount:  amount,
		CreditCode:   s.cfg.BaseCurrency,
		CreditAmount: proceeds,
	})
	if err != nil {
		status := "failed"
		var insufficient *ledger.InsufficientFundsError
		if errors.As(err, &insufficient) {
			status = "rejected"
		}
		s.emitTrade(ctx, user.Username, model.SideSell, cur.Code, amount, quote.Rate, proceeds, status, err.Error())
		metrics.IncTrade(string(model.SideSell), status)
		return nil, err
	}

	conf := &model.TradeConfirmation{
		Side:         model.SideSell,
		CurrencyCode: cur.Code,
		Amount:       amount,
		Rate:         quote.Rate,
		Cost:         proceeds,
		BaseCurrency: s.cfg.BaseCurrency,
		ExecutedAt:   time.Now().UTC(),
	}
	s.logger.Info("settlement.sell.executed",
		zap.String("username", user.Username),
		zap.String("code", cur.Code),
		zap.String("amount", amount.StringFixed(4)),
		zap.String("proceeds", proceeds.StringFixed(2)))
	s.emitTrade(ctx, user.Username, model.SideSell, cur.Code, amount, quote.Rate, proceeds, "executed", "")
	metrics.IncTrade(string(model.SideSell), "executed")
	return conf, nil
}

// prepare runs the shared trade preconditions and resolves the rate.
// Minimum trade amount and commission come from config on every call, so a
// reload is observed by the next trade.
func (s *Service) prepare(ctx context.Context, code string, amount decimal.Decimal) (model.Currency, *rates.Quote, error) {
	if !amount.IsPositive() {
		return model.Currency{}, nil, &ledger.InvalidAmountError{Amount: amount}
	}
	cur, err := s.registry.Get(code)
	if err != nil {
		return model.Currency{}, nil, err
	}
	if amount.LessThan(s.cfg.MinTradeAmount) {
		return model.Currency{}, nil, &TradeRejectedError{Reason: fmt.Sprintf(
			"amount %s is below the minimum trade size %s",
			amount.String(), s.cfg.MinTradeAmount.String())}
	}
	quote, err := s.cache.GetRate(ctx, cur.Code, s.cfg.BaseCurrency)
	if err != nil {
		return model.Currency{}, nil, err
	}
	return cur, quote, nil
}

// ShowPortfolio values every wallet of the current user in base. Codes the
// live cache cannot quote fall back to a fixed display table; a code covered
// by neither fails the whole valuation.
func (s *Service) ShowPortfolio(ctx context.Context, base string) (*model.PortfolioValuation, error) {
	user, err := s.auth.Current()
	if err != nil {
		return nil, err
	}
	if base == "" {
		base = s.cfg.BaseCurrency
	}
	if _, err := s.registry.Get(base); err != nil {
		return nil, err
	}
	base = model.NormalizeCode(base)

	balances := s.book.Balances(user.UserID)
	total := decimal.Zero
	for code, balance := range balances {
		if balance.IsZero() {
			continue
		}
		rate, err := s.valuationRate(ctx, code, base)
		if err != nil {
			return nil, err
		}
		total = total.Add(balance.Mul(rate))
	}

	return &model.PortfolioValuation{
		BaseCurrency: base,
		Balances:     balances,
		TotalValue:   total,
	}, nil
}

func (s *Service) valuationRate(ctx context.Context, code, base string) (decimal.Decimal, error) {
	if code == base {
		return decimal.NewFromInt(1), nil
	}
	quote, err := s.cache.GetRate(ctx, code, base)
	if err == nil {
		return quote.Rate, nil
	}

	var unavail *rates.RateUnavailableError
	if errors.As(err, &unavail) && base == "USD" {
		if fixed, ok := fallbackUSDRates[code]; ok {
			s.logger.Warn("settlement.valuation_fallback",
				zap.String("code", code))
			return decimal.RequireFromString(fixed), nil
		}
	}
	return decimal.Zero, err
}

// GetRate resolves a quote after both codes pass the registry.
func (s *Service) GetRate(ctx context.Context, from, to string) (*rates.Quote, error) {
	if _, err := s.registry.Get(from); err != nil {
		return nil, err
	}
	if _, err := s.registry.Get(to); err != nil {
		return nil, err
	}
	return s.cache.GetRate(ctx, from, to)
}

// RefreshRates forces a full cache refresh and reports per-source counts.
func (s *Service) RefreshRates(ctx context.Context) (*rates.RefreshSummary, error) {
	summary, err := s.cache.RefreshAll(ctx)
	if err != nil {
		return summary, err
	}

	payload, merr := json.Marshal(model.RatesRefreshEvent{
		UpdatedBySource: summary.UpdatedBySource,
		PairsTotal:      summary.PairsTotal,
		Timestamp:       summary.RefreshedAt,
	})
	if merr == nil {
		env := model.NewEnvelope("rates.refreshed", payload)
		if perr := s.pub.Publish(ctx, s.cfg.PublishSubjectBase+".rates.refreshed", env); perr != nil {
			s.logger.Warn("settlement.publish_refresh_failed", zap.Error(perr))
		}
	}
	return summary, nil
}

// emitTrade publishes a trade event; delivery is best effort.
func (s *Service) emitTrade(ctx context.Context, username string, side model.TradeSide, code string, amount, rate, cost decimal.Decimal, status, reason string) {
	payload, err := json.Marshal(model.TradeEvent{
		Username:     username,
		Side:         side,
		CurrencyCode: code,
		Amount:       amount.StringFixed(4),
		Rate:         rate.String(),
		Cost:         cost.StringFixed(2),
		Status:       status,
		Reason:       reason,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		return
	}
	env := model.NewEnvelope("trade."+status, payload)
	if err := s.pub.Publish(ctx, s.cfg.PublishSubjectBase+".trades", env); err != nil {
		s.logger.Warn("settlement.publish_trade_failed",
			zap.String("status", status),
			zap.Error(err))
	}
}
