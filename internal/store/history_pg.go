package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/valutatrade/hub/pkg/model"
)

// PGHistoryStore writes rate observations to Postgres instead of the JSON
// history file. Records are immutable; duplicate IDs are ignored so a retried
// refresh never double-writes.
type PGHistoryStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPGHistoryStore connects a pgx pool to the given URL.
func NewPGHistoryStore(pgURL string, logger *zap.Logger) (*PGHistoryStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PGHistoryStore{pool: pool, logger: logger}, nil
}

func (s *PGHistoryStore) AppendRecords(ctx context.Context, records []model.RateRecord) error {
	for _, rec := range records {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO rates.rate_history (
				id, from_currency, to_currency, rate, source, observed_at
			)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING;
		`, rec.ID, rec.FromCurrency, rec.ToCurrency, rec.Rate.String(), rec.Source, rec.Timestamp)
		if err != nil {
			s.logger.Error("store.pg.insert_history_failed",
				zap.String("id", rec.ID),
				zap.Error(err))
			return fmt.Errorf("insert rate history %s: %w", rec.ID, err)
		}
	}
	return nil
}

func (s *PGHistoryStore) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (s *PGHistoryStore) Close() {
	s.pool.Close()
}
