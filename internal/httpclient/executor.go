// Package httpclient executes outbound JSON API calls with rate limiting
// and a bounded, fixed-delay retry loop around transient failures.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/valutatrade/hub/internal/ratelimit"
)

// retryable is satisfied by classified errors that may succeed on retry.
type retryable interface {
	error
	Retryable() bool
}

// IsRetryable reports whether err (or anything it wraps) is a transient,
// retry-worthy failure.
func IsRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// Executor handles rate-limited, retrying HTTP execution with JSON decoding.
// Failure classification is delegated to the owning adapter via hooks so the
// executor stays source-agnostic.
type Executor struct {
	logger     *zap.Logger
	rateMgr    *ratelimit.Manager
	http       *http.Client
	retryMax   int
	retryDelay time.Duration
	sourceTag  string

	// classify maps a non-2xx response to a classified error.
	classify func(status int, body []byte) error
	// onNetwork wraps a transport-level failure.
	onNetwork func(err error) error
	// onMalformed wraps a JSON decode failure of a 2xx body.
	onMalformed func(err error) error
}

// New creates an Executor. All three hooks are required.
func New(
	logger *zap.Logger,
	rateMgr *ratelimit.Manager,
	httpClient *http.Client,
	retryMax int,
	retryDelay time.Duration,
	sourceTag string,
	classify func(status int, body []byte) error,
	onNetwork func(err error) error,
	onMalformed func(err error) error,
) *Executor {
	return &Executor{
		logger:      logger,
		rateMgr:     rateMgr,
		http:        httpClient,
		retryMax:    retryMax,
		retryDelay:  retryDelay,
		sourceTag:   sourceTag,
		classify:    classify,
		onNetwork:   onNetwork,
		onMalformed: onMalformed,
	}
}

// DoJSON executes req with rate limiting and retries, then JSON-decodes the
// response body into out. Non-retryable classified errors return immediately;
// transient ones are retried up to retryMax extra attempts with a fixed delay
// between attempts.
func (e *Executor) DoJSON(ctx context.Context, req *http.Request, out any) error {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, e.sourceTag); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= e.retryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.retryDelay):
			}
		}

		start := time.Now()
		resp, err := e.http.Do(req)
		if err != nil {
			lastErr = e.onNetwork(err)
			e.logger.Warn(e.sourceTag+".http_failed",
				zap.String("url", req.URL.String()),
				zap.Error(err),
				zap.Int("attempt", attempt))
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = e.onNetwork(readErr)
			continue
		}
		elapsed := time.Since(start)

		if resp.StatusCode >= 400 {
			cerr := e.classify(resp.StatusCode, body)
			if !IsRetryable(cerr) {
				return cerr
			}
			lastErr = cerr
			e.logger.Warn(e.sourceTag+".request_retrying",
				zap.Int("status", resp.StatusCode),
				zap.String("url", req.URL.String()),
				zap.Duration("latency", elapsed),
				zap.Int("attempt", attempt))
			continue
		}

		if out != nil && len(body) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				// Malformed payloads are retried like network faults but
				// logged under their own event so they stand out.
				lastErr = e.onMalformed(err)
				e.logger.Warn(e.sourceTag+".decode_failed",
					zap.Error(err),
					zap.String("url", req.URL.String()),
					zap.Int("attempt", attempt))
				continue
			}
		}

		e.logger.Debug(e.sourceTag+".http_success",
			zap.String("url", req.URL.String()),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed))

		return nil
	}

	return fmt.Errorf("%s request failed after %d attempts: %w", e.sourceTag, e.retryMax+1, lastErr)
}
