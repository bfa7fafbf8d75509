package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages in an inbox drained by one goroutine, so Publish
// never waits on the broker. When the inbox is full the message is dropped
// and logged.
type Producer struct {
	w       messageWriter
	log     zerolog.Logger
	inbox   chan kafka.Message
	closeCh chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewProducer returns a producer whose messages each name their own topic.
func NewProducer(brokers []string, buf int, log zerolog.Logger) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Error().Err(err).Int("messages", len(msgs)).Msg("kafka write failed")
			}
		},
	}
	return newProducer(w, buf, log)
}

func newProducer(w messageWriter, buf int, log zerolog.Logger) *Producer {
	if buf <= 0 {
		buf = 1024
	}
	return &Producer{
		w:       w,
		log:     log,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start runs the writer loop. Cancelling ctx has the same effect as Close.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		p.Close()
	}()
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.Background(), m); err != nil {
				p.log.Error().Err(err).Str("topic", m.Topic).Str("key", string(m.Key)).Msg("kafka publish failed")
			}
		}
		if err := p.w.Close(); err != nil {
			p.log.Warn().Err(err).Msg("kafka writer close")
		}
	}()
}

func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn().Str("topic", topic).Msg("publish after close dropped")
		return
	}
	m := kafka.Message{Topic: topic, Key: key, Value: value, Time: time.Now(), Headers: headers}
	select {
	case p.inbox <- m:
	default:
		p.log.Error().Str("topic", topic).Str("key", string(key)).Msg("producer inbox full, message dropped")
	}
}

// Close stops accepting messages; the loop flushes what is queued and exits.
func (p *Producer) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
	})
}

// WaitClosed blocks until the queued messages are flushed and the writer is closed.
func (p *Producer) WaitClosed() { <-p.closeCh }
