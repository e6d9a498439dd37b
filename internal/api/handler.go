// Package api exposes the hub over HTTP with Fiber.
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/valutatrade/hub/internal/auth"
	"github.com/valutatrade/hub/internal/ledger"
	"github.com/valutatrade/hub/internal/provider"
	"github.com/valutatrade/hub/internal/rates"
	"github.com/valutatrade/hub/internal/registry"
	"github.com/valutatrade/hub/internal/settlement"
	"github.com/valutatrade/hub/pkg/model"
)

type Handler struct {
	Logger     *zap.Logger
	Auth       *auth.Service
	Settlement *settlement.Service
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	user, err := h.Auth.Register(c.Context(), req.Username, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(UserResponse{
		UserID:   user.UserID,
		Username: user.Username,
		Message:  fmt.Sprintf("User %s registered", user.Username),
	})
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	user, err := h.Auth.Login(c.Context(), req.Username, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(UserResponse{
		UserID:   user.UserID,
		Username: user.Username,
		Message:  fmt.Sprintf("Welcome back, %s", user.Username),
	})
}

func (h *Handler) Logout(c *fiber.Ctx) error {
	if err := h.Auth.Logout(); err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "logged out"})
}

func (h *Handler) GetRate(c *fiber.Ctx) error {
	quote, err := h.Settlement.GetRate(c.Context(), c.Params("from"), c.Params("to"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(RateResponse{
		From:      quote.From,
		To:        quote.To,
		Rate:      quote.Rate,
		UpdatedAt: model.FormatTimestamp(quote.UpdatedAt),
		Source:    quote.Source,
		Derived:   quote.Derived,
	})
}

func (h *Handler) RefreshRates(c *fiber.Ctx) error {
	summary, err := h.Settlement.RefreshRates(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(RefreshResponse{
		UpdatedBySource: summary.UpdatedBySource,
		FailedSources:   summary.FailedSources,
		PairsTotal:      summary.PairsTotal,
		RefreshedAt:     model.FormatTimestamp(summary.RefreshedAt),
	})
}

func (h *Handler) GetPortfolio(c *fiber.Ctx) error {
	valuation, err := h.Settlement.ShowPortfolio(c.Context(), c.Query("base"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(PortfolioResponse{
		BaseCurrency: valuation.BaseCurrency,
		Balances:     valuation.Balances,
		TotalValue:   valuation.TotalValue.StringFixed(2),
	})
}

func (h *Handler) Buy(c *fiber.Ctx) error {
	return h.trade(c, model.SideBuy)
}

func (h *Handler) Sell(c *fiber.Ctx) error {
	return h.trade(c, model.SideSell)
}

func (h *Handler) trade(c *fiber.Ctx, side model.TradeSide) error {
	var req TradeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var conf *model.TradeConfirmation
	var err error
	if side == model.SideBuy {
		conf, err = h.Settlement.Buy(c.Context(), req.CurrencyCode, req.Amount)
	} else {
		conf, err = h.Settlement.Sell(c.Context(), req.CurrencyCode, req.Amount)
	}
	if err != nil {
		return h.fail(c, err)
	}

	verb := "Bought"
	if side == model.SideSell {
		verb = "Sold"
	}
	return c.Status(http.StatusOK).JSON(TradeResponse{
		Side:         string(conf.Side),
		CurrencyCode: conf.CurrencyCode,
		Amount:       conf.Amount.StringFixed(4),
		Rate:         conf.Rate.String(),
		Cost:         conf.Cost.StringFixed(2),
		BaseCurrency: conf.BaseCurrency,
		ExecutedAt:   model.FormatTimestamp(conf.ExecutedAt),
		Message: fmt.Sprintf("%s %s %s at %s for $%s",
			verb, conf.Amount.StringFixed(4), conf.CurrencyCode,
			conf.Rate.String(), conf.Cost.StringFixed(2)),
	})
}

// fail maps domain errors onto HTTP statuses with a readable message.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	var (
		unauth       *auth.UserNotAuthenticatedError
		validation   *auth.ValidationError
		notFound     *registry.CurrencyNotFoundError
		unavailable  *rates.RateUnavailableError
		rejected     *settlement.TradeRejectedError
		insufficient *ledger.InsufficientFundsError
		invalid      *ledger.InvalidAmountError
		persistence  *ledger.PersistenceError
		upstream     *provider.Error
	)

	switch {
	case errors.As(err, &unauth), errors.Is(err, auth.ErrInvalidCredentials):
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &notFound):
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &rejected):
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{"error": rejected.Reason})
	case errors.As(err, &insufficient):
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":     insufficient.Error(),
			"currency":  insufficient.Code,
			"available": insufficient.Available.String(),
			"required":  insufficient.Required.String(),
		})
	case errors.As(err, &invalid), errors.As(err, &validation):
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &unavailable), errors.As(err, &upstream):
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &persistence):
		h.Logger.Error("api.persistence_failure", zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	default:
		h.Logger.Error("api.unhandled_error", zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
