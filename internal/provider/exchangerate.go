package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/valutatrade/hub/internal/httpclient"
	"github.com/valutatrade/hub/internal/ratelimit"
	"github.com/valutatrade/hub/pkg/config"
	"github.com/valutatrade/hub/pkg/model"
)

const exchangeRateSource = "exchangerate-api"

// mockFiatRates are the fixed CODE→USD quotes served when the API key is the
// mock sentinel. Unlisted codes fall back to 1.0.
var mockFiatRates = map[string]string{
	"EUR": "1.08",
	"GBP": "1.27",
	"RUB": "0.0105",
	"JPY": "0.0067",
	"CHF": "1.14",
}

// ExchangeRate quotes fiat currencies via ExchangeRate-API. The upstream
// returns BASE→CODE conversion rates, so quotes are inverted into CODE→BASE
// before they leave the adapter. With the mock sentinel key the adapter
// serves fixed rates and never touches the network.
type ExchangeRate struct {
	logger   *zap.Logger
	executor *httpclient.Executor
	baseURL  string
	apiKey   string
	mock     bool
}

type exchangeRateResponse struct {
	Result          string                     `json:"result"`
	ErrorType       string                     `json:"error-type"`
	BaseCode        string                     `json:"base_code"`
	ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`
}

// NewExchangeRate wires the adapter. apiKey may come from the environment or
// a secrets backend; the mock sentinel short-circuits all network calls.
func NewExchangeRate(cfg *config.Config, logger *zap.Logger, rateMgr *ratelimit.Manager, apiKey string) *ExchangeRate {
	log := logger.With(zap.String("provider", exchangeRateSource))

	classify := func(status int, body []byte) error {
		errType := errorTypeOf(body)
		switch {
		case status == http.StatusTooManyRequests || errType == "quota-reached":
			return NewError(KindRateLimited, exchangeRateSource, fmt.Errorf("status %d: %s", status, errType))
		case status == http.StatusUnauthorized || status == http.StatusForbidden ||
			errType == "invalid-key" || errType == "inactive-account":
			return NewError(KindAuthenticationFailed, exchangeRateSource, fmt.Errorf("status %d: %s", status, errType))
		case status >= 500:
			return NewError(KindNetwork, exchangeRateSource, fmt.Errorf("status %d", status))
		default:
			return NewError(KindMalformedResponse, exchangeRateSource,
				fmt.Errorf("status %d: %s", status, truncateBody(body)))
		}
	}

	exec := httpclient.New(
		log,
		rateMgr,
		&http.Client{Timeout: cfg.RequestTimeout},
		cfg.MaxRetries,
		cfg.RetryDelay,
		exchangeRateSource,
		classify,
		func(err error) error { return NewError(KindNetwork, exchangeRateSource, err) },
		func(err error) error { return NewError(KindMalformedResponse, exchangeRateSource, err) },
	)

	return &ExchangeRate{
		logger:   log,
		executor: exec,
		baseURL:  cfg.ExchangeRateURL,
		apiKey:   apiKey,
		mock:     apiKey == config.MockAPIKeySentinel,
	}
}

func (e *ExchangeRate) Name() string { return exchangeRateSource }

// FetchRates quotes the requested fiat codes against base.
func (e *ExchangeRate) FetchRates(ctx context.Context, codes []string, base string) (map[string]decimal.Decimal, error) {
	if err := validateRequest(codes, base); err != nil {
		return nil, err
	}
	if e.mock {
		return e.mockRates(codes), nil
	}

	baseNorm := model.NormalizeCode(base)
	reqURL := fmt.Sprintf("%s/%s/latest/%s", e.baseURL, e.apiKey, baseNorm)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	var payload exchangeRateResponse
	if err := e.executor.DoJSON(ctx, req, &payload); err != nil {
		return nil, err
	}
	if payload.Result != "success" {
		return nil, NewError(KindMalformedResponse, exchangeRateSource,
			fmt.Errorf("result %q (%s)", payload.Result, payload.ErrorType))
	}

	// The upstream quotes 1 BASE = r CODE; the cache stores 1 CODE = 1/r BASE.
	rates := make(map[string]decimal.Decimal, len(codes))
	for _, code := range codes {
		norm := model.NormalizeCode(code)
		r, ok := payload.ConversionRates[norm]
		if !ok || !r.IsPositive() {
			e.logger.Warn("exchangerate.invalid_quote",
				zap.String("code", norm),
				zap.String("rate", r.String()))
			continue
		}
		rates[norm] = decimal.NewFromInt(1).Div(r)
	}

	e.logger.Info("exchangerate.fetch_rates.done",
		zap.Int("requested", len(codes)),
		zap.Int("quoted", len(rates)),
		zap.Duration("elapsed", time.Since(start)))

	return rates, nil
}

func (e *ExchangeRate) mockRates(codes []string) map[string]decimal.Decimal {
	rates := make(map[string]decimal.Decimal, len(codes))
	for _, code := range codes {
		norm := model.NormalizeCode(code)
		if fixed, ok := mockFiatRates[norm]; ok {
			rates[norm] = decimal.RequireFromString(fixed)
		} else {
			rates[norm] = decimal.NewFromInt(1)
		}
	}
	e.logger.Debug("exchangerate.mock_rates", zap.Int("quoted", len(rates)))
	return rates
}

func errorTypeOf(body []byte) string {
	var payload struct {
		ErrorType string `json:"error-type"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.ErrorType
}
