package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/noah-isme/gema-assess-api/internal/dto"
)

// EventPublisher announces evaluated answers to other services.
type EventPublisher interface {
	Publish(ctx context.Context, event dto.AnswerEvaluatedEvent) error
}

type natsEventPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSEventPublisher publishes events on subject. A nil connection yields a no-op publisher.
func NewNATSEventPublisher(conn *nats.Conn, subject string) EventPublisher {
	if conn == nil || subject == "" {
		return noopEventPublisher{}
	}
	return &natsEventPublisher{conn: conn, subject: subject}
}

func (p *natsEventPublisher) Publish(_ context.Context, event dto.AnswerEvaluatedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode answer event: %w", err)
	}
	return p.conn.Publish(p.subject, payload)
}

type noopEventPublisher struct{}

func (noopEventPublisher) Publish(context.Context, dto.AnswerEvaluatedEvent) error { return nil }
