//go:build integration

package kafka

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func setupKafka(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	kafkaContainer, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	t.Helper()
	conn, err := kafka.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer cc.Close()

	err = cc.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 3, ReplicationFactor: 1})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestPublishAndConsume(t *testing.T) {
	broker := setupKafka(t)
	createTopic(t, broker, orders.TopicOrderStatusRequested)

	prod := NewProducer([]string{broker}, 16, zerolog.Nop())
	prod.Start(context.Background())
	pub := &Publisher{Producer: prod, Service: "staff-tablet", Log: zerolog.Nop()}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	got := make(chan orders.StatusRequestPayload, 1)
	cons := NewConsumer([]string{broker}, "it-fulfillment", orders.TopicOrderStatusRequested, 2, zerolog.Nop())
	go func() {
		_ = cons.Start(ctx, func(_ context.Context, m kafka.Message) error {
			var env orders.Envelope
			if err := UnmarshalEnvelope(m.Value, &env); err != nil {
				return err
			}
			p, err := UnwrapPayload[orders.StatusRequestPayload](env.Payload)
			if err != nil {
				return err
			}
			got <- p
			return nil
		})
	}()

	pub.Emit(ctx, orders.EventOrderStatusRequested, "order-1", orders.StatusRequestPayload{
		OrderID: "order-1", Status: orders.StatusConfirmed, StaffID: "s1",
	})
	prod.Close()
	prod.WaitClosed()

	select {
	case p := <-got:
		assert.Equal(t, "order-1", p.OrderID)
		assert.Equal(t, orders.StatusConfirmed, p.Status)
	case <-ctx.Done():
		t.Fatal("message not consumed")
	}
}
