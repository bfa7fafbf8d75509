package fulfillment

import (
	"context"
	"errors"

	kafkax "github.com/ariefcatur/go-bakery-cart/internal/kafka"
	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
)

// Deduper remembers processed event ids so a redelivered command is applied once.
type Deduper interface {
	Seen(ctx context.Context, scope, eventID string) (bool, error)
	Mark(ctx context.Context, scope, eventID string) error
}

const dedupScope = "fulfillment"

// Commands applies staff status requests arriving on TopicOrderStatusRequested.
type Commands struct {
	Service *Service
	Dedup   Deduper
}

// HandleStatusRequested is installed as the consumer handler. It returns nil
// for anything that must not be retried (foreign events, duplicates, rejected
// transitions) so the offset gets committed.
func (c *Commands) HandleStatusRequested(ctx context.Context, m kafkago.Message) error {
	log := c.Service.Log
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		log.Warn().Err(err).Int64("offset", m.Offset).Msg("drop undecodable command")
		return nil
	}
	if env.EventType != orders.EventOrderStatusRequested {
		return nil
	}

	if c.Dedup != nil {
		seen, err := c.Dedup.Seen(ctx, dedupScope, env.EventID)
		if err != nil {
			log.Warn().Err(err).Str("event_id", env.EventID).Msg("dedup lookup failed, processing anyway")
		}
		if seen {
			log.Debug().Str("event_id", env.EventID).Msg("duplicate command skipped")
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.StatusRequestPayload](env.Payload)
	if err != nil {
		log.Warn().Err(err).Str("event_id", env.EventID).Msg("drop command with bad payload")
		return nil
	}

	actor := orders.Actor{ID: p.StaffID, Role: orders.RoleStaff}
	if _, err := c.Service.UpdateStatus(ctx, actor, p.OrderID, p.Status); err != nil {
		if errors.Is(err, orders.ErrStorageUnavailable) {
			return err
		}
		log.Warn().Err(err).Str("event_id", env.EventID).Str("order_id", p.OrderID).
			Str("status", string(p.Status)).Msg("status request rejected")
	}

	if c.Dedup != nil {
		if err := c.Dedup.Mark(ctx, dedupScope, env.EventID); err != nil {
			log.Warn().Err(err).Str("event_id", env.EventID).Msg("dedup mark failed")
		}
	}
	return nil
}
