package kafka

import (
	"context"
	"strconv"
	"time"

	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const eventVersion = 1

// Publisher wraps domain events in the versioned envelope and hands them to
// a Producer. It satisfies orders.Emitter.
type Publisher struct {
	Producer *Producer
	Service  string
	Log      zerolog.Logger
}

func (p *Publisher) Emit(ctx context.Context, eventType, correlationID string, payload any) {
	topic := orders.TopicFor(eventType)
	if topic == "" {
		p.Log.Error().Str("event_type", eventType).Msg("no topic for event, dropped")
		return
	}
	env, err := NewEnvelope(eventType, p.Service, middleware.GetReqID(ctx), correlationID, payload)
	if err != nil {
		p.Log.Error().Err(err).Str("event_type", eventType).Msg("encode event failed")
		return
	}
	b, err := Marshal(env)
	if err != nil {
		p.Log.Error().Err(err).Str("event_type", eventType).Msg("encode envelope failed")
		return
	}
	p.Producer.Publish(topic, orders.PartitionKey(correlationID), b, Headers(eventType)...)
}

func NewEnvelope(eventType, producer, traceID, correlationID string, payload any) (orders.Envelope, error) {
	raw, err := Marshal(payload)
	if err != nil {
		return orders.Envelope{}, err
	}
	return orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

func Headers(eventType string) []kafka.Header {
	return []kafka.Header{
		{Key: "x-event-type", Value: []byte(eventType)},
		{Key: "x-event-version", Value: []byte(strconv.Itoa(eventVersion))},
	}
}
