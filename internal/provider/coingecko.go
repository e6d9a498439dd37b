package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/valutatrade/hub/internal/httpclient"
	"github.com/valutatrade/hub/internal/ratelimit"
	"github.com/valutatrade/hub/pkg/config"
	"github.com/valutatrade/hub/pkg/model"
)

const coinGeckoSource = "coingecko"

// CoinGecko quotes crypto currencies via the public simple/price endpoint.
// Responses are already CODE→BASE, no inversion needed.
type CoinGecko struct {
	logger   *zap.Logger
	executor *httpclient.Executor
	baseURL  string
	idByCode map[string]string
}

// NewCoinGecko wires the adapter with its own classified executor.
func NewCoinGecko(cfg *config.Config, logger *zap.Logger, rateMgr *ratelimit.Manager) *CoinGecko {
	log := logger.With(zap.String("provider", coinGeckoSource))

	classify := func(status int, body []byte) error {
		switch {
		case status == http.StatusTooManyRequests:
			return NewError(KindRateLimited, coinGeckoSource, fmt.Errorf("status %d", status))
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return NewError(KindAuthenticationFailed, coinGeckoSource, fmt.Errorf("status %d", status))
		case status >= 500:
			return NewError(KindNetwork, coinGeckoSource, fmt.Errorf("status %d", status))
		default:
			return NewError(KindMalformedResponse, coinGeckoSource,
				fmt.Errorf("status %d: %s", status, truncateBody(body)))
		}
	}

	exec := httpclient.New(
		log,
		rateMgr,
		&http.Client{Timeout: cfg.RequestTimeout},
		cfg.MaxRetries,
		cfg.RetryDelay,
		coinGeckoSource,
		classify,
		func(err error) error { return NewError(KindNetwork, coinGeckoSource, err) },
		func(err error) error { return NewError(KindMalformedResponse, coinGeckoSource, err) },
	)

	return &CoinGecko{
		logger:   log,
		executor: exec,
		baseURL:  cfg.CoinGeckoURL,
		idByCode: cfg.CryptoIDMap,
	}
}

func (c *CoinGecko) Name() string { return coinGeckoSource }

// FetchRates quotes the requested crypto codes against base in one request.
// Codes without a known CoinGecko id are skipped with a warning.
func (c *CoinGecko) FetchRates(ctx context.Context, codes []string, base string) (map[string]decimal.Decimal, error) {
	if err := validateRequest(codes, base); err != nil {
		return nil, err
	}

	vs := strings.ToLower(model.NormalizeCode(base))
	codeByID := make(map[string]string, len(codes))
	ids := make([]string, 0, len(codes))
	for _, code := range codes {
		norm := model.NormalizeCode(code)
		id, ok := c.idByCode[norm]
		if !ok {
			c.logger.Warn("coingecko.unknown_ticker", zap.String("code", norm))
			continue
		}
		codeByID[id] = norm
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	sort.Strings(ids)

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", vs)
	reqURL := c.baseURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	var payload map[string]map[string]decimal.Decimal
	if err := c.executor.DoJSON(ctx, req, &payload); err != nil {
		return nil, err
	}

	rates := make(map[string]decimal.Decimal, len(ids))
	for id, code := range codeByID {
		quote, ok := payload[id]
		if !ok {
			c.logger.Warn("coingecko.missing_quote", zap.String("id", id))
			continue
		}
		rate, ok := quote[vs]
		if !ok || !rate.IsPositive() {
			c.logger.Warn("coingecko.invalid_quote",
				zap.String("id", id),
				zap.String("rate", rate.String()))
			continue
		}
		rates[code] = rate
	}

	c.logger.Info("coingecko.fetch_rates.done",
		zap.Int("requested", len(ids)),
		zap.Int("quoted", len(rates)),
		zap.Duration("elapsed", time.Since(start)))

	return rates, nil
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
