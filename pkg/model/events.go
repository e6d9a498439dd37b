package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event wrapper published to the bus.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds an envelope around an already-marshaled payload.
func NewEnvelope(eventType string, payload json.RawMessage) *Envelope {
	return &Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		EventType:     eventType,
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}
}

// TradeEvent is the payload emitted when a settlement completes or fails.
type TradeEvent struct {
	Username     string    `json:"username"`
	Side         TradeSide `json:"side"`
	CurrencyCode string    `json:"currency_code"`
	Amount       string    `json:"amount"`
	Rate         string    `json:"rate,omitempty"`
	Cost         string    `json:"cost,omitempty"`
	Status       string    `json:"status"` // "executed" | "rejected" | "failed"
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// RatesRefreshEvent is the payload emitted after a cache refresh attempt.
type RatesRefreshEvent struct {
	UpdatedBySource map[string]int `json:"updated_by_source"`
	PairsTotal      int            `json:"pairs_total"`
	Timestamp       time.Time      `json:"timestamp"`
}
