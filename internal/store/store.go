// Package store persists the hub's documents: users, portfolios, the rate
// cache, and rate history. The default backend is JSON files on disk;
// Redis can hold the rates document and Postgres the history stream.
package store

import (
	"context"

	"github.com/valutatrade/hub/pkg/model"
)

// RatesStore persists the rate cache document.
type RatesStore interface {
	// LoadRates reads the persisted document. A missing document yields an
	// empty one, not an error.
	LoadRates(ctx context.Context) (*model.RatesDocument, error)
	SaveRates(ctx context.Context, doc *model.RatesDocument) error
}

// UserStore persists registered accounts.
type UserStore interface {
	LoadUsers(ctx context.Context) ([]model.User, error)
	SaveUsers(ctx context.Context, users []model.User) error
}

// PortfolioStore persists user portfolios keyed by user ID.
type PortfolioStore interface {
	LoadPortfolios(ctx context.Context) (map[int]*model.Portfolio, error)
	SavePortfolios(ctx context.Context, portfolios map[int]*model.Portfolio) error
}

// HistoryStore appends rate observations, one record per pair per fetch.
type HistoryStore interface {
	AppendRecords(ctx context.Context, records []model.RateRecord) error
}
