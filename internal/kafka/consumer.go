package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Handler returns nil only when the message was processed and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r        fetcher
	workers  int
	attempts int
	backoff  time.Duration
	log      zerolog.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log zerolog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r fetcher, workers int, log zerolog.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, attempts: 5, backoff: 200 * time.Millisecond, log: log}
}

// Start dispatches messages to a pool of workers until ctx is cancelled.
// Every partition is pinned to one worker, so a partition's messages are
// handled and committed in offset order. A message whose handler keeps
// failing is logged and committed after the last attempt so one poison
// message cannot stall the partition.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(id int, in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				c.handle(ctx, id, h, m)
			}
		}(i, jobs[i])
	}
	stop := func() {
		for _, ch := range jobs {
			close(ch)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs[workerFor(m.Partition, c.workers)] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

func workerFor(partition, workers int) int {
	if partition < 0 {
		partition = -partition
	}
	return partition % workers
}

func (c *Consumer) handle(ctx context.Context, worker int, h Handler, m kafka.Message) {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = h(ctx, m); err == nil {
			break
		}
		c.log.Warn().Err(err).Int("worker", worker).Int("attempt", attempt).
			Str("topic", m.Topic).Int64("offset", m.Offset).Msg("handler failed")
		if attempt == c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	if err != nil {
		c.log.Error().Err(err).Str("topic", m.Topic).Int64("offset", m.Offset).
			Msg("giving up on message")
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Error().Err(err).Int64("offset", m.Offset).Msg("commit failed")
	}
}
