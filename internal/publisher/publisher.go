// Package publisher emits the hub's domain events (trades, refreshes) to
// NATS JetStream. A Noop implementation serves single-process deployments.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/valutatrade/hub/internal/metrics"
	"github.com/valutatrade/hub/pkg/model"
)

// Publisher emits an event envelope on a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, env *model.Envelope) error
	Close()
}

// NATSPublisher publishes through JetStream.
type NATSPublisher struct {
	logger  *zap.Logger
	nc      *nats.Conn
	js      nats.JetStreamContext
	service string
}

// NewNATS connects a publisher over an established NATS connection.
func NewNATS(logger *zap.Logger, nc *nats.Conn, service string) (*NATSPublisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	return &NATSPublisher{logger: logger, nc: nc, js: js, service: service}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("publisher.marshal_failed",
			zap.String("subject", subject),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}

	if _, err := p.js.PublishMsg(msg); err != nil {
		metrics.NATSPublishErrors.WithLabelValues(subject).Inc()
		p.logger.Error("publisher.publish_failed",
			zap.String("subject", subject),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		return err
	}

	p.logger.Debug("publisher.publish_success",
		zap.String("subject", subject),
		zap.String("event_type", env.EventType))
	return nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}

// Noop drops every event; used when no NATS URL is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, *model.Envelope) error { return nil }
func (Noop) Close()                                                 {}
