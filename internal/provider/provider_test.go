package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/valutatrade/hub/internal/ratelimit"
	"github.com/valutatrade/hub/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		RequestTimeout: 2 * time.Second,
		MaxRetries:     2,
		RetryDelay:     10 * time.Millisecond,
		CryptoIDMap: map[string]string{
			"BTC": "bitcoin",
			"ETH": "ethereum",
		},
	}
}

func testRateMgr() *ratelimit.Manager {
	return ratelimit.NewManager(ratelimit.Config{RequestsPerSecond: 100, Burst: 100})
}

func TestCoinGeckoFetchRates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("ids"), "bitcoin")
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":59337.21},"ethereum":{"usd":2412.5}}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.CoinGeckoURL = server.URL
	cg := NewCoinGecko(cfg, zap.NewNop(), testRateMgr())

	rates, err := cg.FetchRates(context.Background(), []string{"BTC", "ETH"}, "USD")
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, "59337.21", rates["BTC"].String())
	assert.Equal(t, "2412.5", rates["ETH"].String())
}

func TestCoinGeckoSkipsUnknownTickers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":60000}}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.CoinGeckoURL = server.URL
	cg := NewCoinGecko(cfg, zap.NewNop(), testRateMgr())

	rates, err := cg.FetchRates(context.Background(), []string{"BTC", "DOGE"}, "USD")
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.True(t, rates["BTC"].IsPositive())
}

func TestCoinGeckoRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":60000}}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.CoinGeckoURL = server.URL
	cg := NewCoinGecko(cfg, zap.NewNop(), testRateMgr())

	rates, err := cg.FetchRates(context.Background(), []string{"BTC"}, "USD")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "60000", rates["BTC"].String())
}

func TestCoinGeckoMalformedBodyExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.CoinGeckoURL = server.URL
	cg := NewCoinGecko(cfg, zap.NewNop(), testRateMgr())

	_, err := cg.FetchRates(context.Background(), []string{"BTC"}, "USD")
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindMalformedResponse, perr.Kind)
	assert.Equal(t, int32(3), calls.Load(), "MaxRetries=2 means 3 attempts")
}

func TestCoinGeckoRejectsEmptyRequest(t *testing.T) {
	cg := NewCoinGecko(testConfig(), zap.NewNop(), testRateMgr())
	_, err := cg.FetchRates(context.Background(), nil, "USD")
	require.Error(t, err)
}

func TestExchangeRateMockMode(t *testing.T) {
	cfg := testConfig()
	cfg.ExchangeRateURL = "http://unreachable.invalid"
	er := NewExchangeRate(cfg, zap.NewNop(), testRateMgr(), config.MockAPIKeySentinel)

	rates, err := er.FetchRates(context.Background(), []string{"EUR", "GBP", "RUB", "JPY", "CHF", "AUD"}, "USD")
	require.NoError(t, err)

	assert.Equal(t, "1.08", rates["EUR"].String())
	assert.Equal(t, "1.27", rates["GBP"].String())
	assert.Equal(t, "0.0105", rates["RUB"].String())
	assert.Equal(t, "0.0067", rates["JPY"].String())
	assert.Equal(t, "1.14", rates["CHF"].String())
	// unlisted codes fall back to parity
	assert.Equal(t, "1", rates["AUD"].String())
}

func TestExchangeRateInvertsQuotes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/real-key/latest/USD", r.URL.Path)
		_, _ = w.Write([]byte(`{"result":"success","base_code":"USD","conversion_rates":{"USD":1,"EUR":0.8,"JPY":125}}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.ExchangeRateURL = server.URL
	er := NewExchangeRate(cfg, zap.NewNop(), testRateMgr(), "real-key")

	rates, err := er.FetchRates(context.Background(), []string{"EUR", "JPY"}, "USD")
	require.NoError(t, err)

	// upstream quotes USD→CODE, adapter stores CODE→USD
	assert.Equal(t, "1.25", rates["EUR"].String())
	assert.Equal(t, "0.008", rates["JPY"].String())
}

func TestExchangeRateInvalidKeyFailsFast(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"result":"error","error-type":"invalid-key"}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.ExchangeRateURL = server.URL
	er := NewExchangeRate(cfg, zap.NewNop(), testRateMgr(), "bad-key")

	_, err := er.FetchRates(context.Background(), []string{"EUR"}, "USD")
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindAuthenticationFailed, perr.Kind)
	assert.False(t, perr.Retryable())
	assert.Equal(t, int32(1), calls.Load(), "auth failures must not be retried")
}

func TestExchangeRateSkipsNonPositiveQuotes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"success","conversion_rates":{"EUR":0.8,"GBP":0}}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.ExchangeRateURL = server.URL
	er := NewExchangeRate(cfg, zap.NewNop(), testRateMgr(), "real-key")

	rates, err := er.FetchRates(context.Background(), []string{"EUR", "GBP"}, "USD")
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Contains(t, rates, "EUR")
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := NewError(KindNetwork, "test", inner)
	assert.ErrorIs(t, err, inner)
	assert.True(t, err.Retryable())
}
