package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Persisted documents carry rates and balances as plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// TimestampLayout is the second-granularity form all persisted timestamps
// normalize to: fractional seconds stripped, trailing "Z" implied UTC.
const TimestampLayout = "2006-01-02T15:04:05"

// PairRate is the current quote for one directional currency pair.
// Entries are replaced wholesale on refresh, never mutated.
type PairRate struct {
	Rate      decimal.Decimal `json:"rate"`
	UpdatedAt string          `json:"updated_at"`
	Source    string          `json:"source"`
}

// RatesDocument is the persisted shape of the rate cache:
// {"pairs": {"FROM_TO": {...}}, "last_refresh": iso8601|null}.
type RatesDocument struct {
	Pairs       map[string]PairRate `json:"pairs"`
	LastRefresh string              `json:"last_refresh,omitempty"`
}

// NewRatesDocument returns an empty document ready for merging.
func NewRatesDocument() *RatesDocument {
	return &RatesDocument{Pairs: make(map[string]PairRate)}
}

// PairKey builds the "FROM_TO" key identifying a directional pair.
func PairKey(from, to string) string {
	return NormalizeCode(from) + "_" + NormalizeCode(to)
}

// SplitPairKey breaks a "FROM_TO" key back into its codes.
func SplitPairKey(key string) (from, to string, ok bool) {
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// FormatTimestamp renders t in the persisted form: second granularity, UTC,
// trailing Z marker.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimestampLayout) + "Z"
}

// ParseTimestamp reads a persisted timestamp, tolerating fractional seconds
// and an optional trailing UTC marker. Comparison callers get second
// granularity regardless of what was written.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	s = strings.TrimSuffix(s, "Z")
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// RateRecord is one historical rate observation, one per fetch per pair.
type RateRecord struct {
	ID           string            `json:"id"` // "<FROM>_<TO>_<ISO8601-UTC>"
	FromCurrency string            `json:"from_currency"`
	ToCurrency   string            `json:"to_currency"`
	Rate         decimal.Decimal   `json:"rate"`
	Timestamp    string            `json:"timestamp"`
	Source       string            `json:"source"`
	Meta         map[string]string `json:"meta,omitempty"`
}

// NewRateRecord builds a record with its generated ID.
func NewRateRecord(from, to string, rate decimal.Decimal, source string, at time.Time, meta map[string]string) RateRecord {
	ts := FormatTimestamp(at)
	return RateRecord{
		ID:           fmt.Sprintf("%s_%s_%s", NormalizeCode(from), NormalizeCode(to), ts),
		FromCurrency: NormalizeCode(from),
		ToCurrency:   NormalizeCode(to),
		Rate:         rate,
		Timestamp:    ts,
		Source:       source,
		Meta:         meta,
	}
}
