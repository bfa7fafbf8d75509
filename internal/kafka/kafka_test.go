package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
	block  chan struct{}
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func TestProducer_FlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 8, zerolog.Nop())
	p.Start(context.Background())

	p.Publish("t", []byte("k1"), []byte("a"))
	p.Publish("t", []byte("k2"), []byte("b"))
	p.Close()
	p.WaitClosed()

	got := w.written()
	require.Len(t, got, 2)
	assert.Equal(t, "a", string(got[0].Value))
	assert.Equal(t, "k2", string(got[1].Key))
	assert.True(t, w.closed)

	p.Publish("t", nil, []byte("late"))
	p.Close()
	assert.Len(t, w.written(), 2)
}

func TestProducer_DropsWhenInboxFull(t *testing.T) {
	w := &fakeWriter{block: make(chan struct{})}
	p := newProducer(w, 1, zerolog.Nop())
	p.Start(context.Background())

	p.Publish("t", nil, []byte("1")) // taken by the loop, stuck in WriteMessages
	require.Eventually(t, func() bool { return len(p.inbox) == 0 }, time.Second, time.Millisecond)
	p.Publish("t", nil, []byte("2")) // queued
	p.Publish("t", nil, []byte("3")) // dropped

	close(w.block)
	p.Close()
	p.WaitClosed()
	assert.Len(t, w.written(), 2)
}

func TestProducer_StopsWithContext(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 8, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() { p.WaitClosed(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer did not stop")
	}
}

func TestPublisher_WrapsEnvelope(t *testing.T) {
	w := &fakeWriter{}
	prod := newProducer(w, 8, zerolog.Nop())
	prod.Start(context.Background())
	pub := &Publisher{Producer: prod, Service: "bakery-cart", Log: zerolog.Nop()}

	pub.Emit(context.Background(), orders.EventOrderCreated, "order-1", orders.OrderCreatedPayload{OrderID: "order-1", CustomerID: "alice"})
	pub.Emit(context.Background(), "Unknown", "x", struct{}{})
	prod.Close()
	prod.WaitClosed()

	got := w.written()
	require.Len(t, got, 1)
	m := got[0]
	assert.Equal(t, orders.TopicOrderCreated, m.Topic)
	assert.Equal(t, "order-1", string(m.Key))
	require.Len(t, m.Headers, 2)
	assert.Equal(t, orders.EventOrderCreated, string(m.Headers[0].Value))

	var env orders.Envelope
	require.NoError(t, UnmarshalEnvelope(m.Value, &env))
	assert.Equal(t, orders.EventOrderCreated, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "bakery-cart", env.Producer)
	assert.NotEmpty(t, env.EventID)

	p, err := UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.CustomerID)
}

func TestUnwrapPayload_Bad(t *testing.T) {
	_, err := UnwrapPayload[orders.StatusRequestPayload](json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

type fakeFetcher struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		m := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeFetcher) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeFetcher) commits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

func TestConsumer_RetriesThenCommits(t *testing.T) {
	f := &fakeFetcher{queue: []kafka.Message{{Offset: 1}, {Offset: 2}}}
	c := newConsumer(f, 1, zerolog.Nop())
	c.backoff = time.Millisecond

	var calls atomic.Int32
	h := func(_ context.Context, m kafka.Message) error {
		calls.Add(1)
		if m.Offset == 1 {
			return errors.New("still broken")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	require.Eventually(t, func() bool { return f.commits() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, int32(c.attempts+1), calls.Load())
	assert.Equal(t, []int64{1, 2}, f.committed)
	assert.True(t, f.closed)
}

func TestConsumer_CommitsPartitionInOffsetOrder(t *testing.T) {
	f := &fakeFetcher{queue: []kafka.Message{
		{Partition: 0, Offset: 10},
		{Partition: 0, Offset: 11},
		{Partition: 1, Offset: 20},
		{Partition: 5, Offset: 30},
	}}
	c := newConsumer(f, 4, zerolog.Nop())
	c.backoff = 5 * time.Millisecond

	var failures atomic.Int32
	h := func(_ context.Context, m kafka.Message) error {
		if m.Offset == 10 && failures.Add(1) <= 2 {
			time.Sleep(10 * time.Millisecond)
			return errors.New("order row busy")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	require.Eventually(t, func() bool { return f.commits() == 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	pos := map[int64]int{}
	for i, off := range f.committed {
		pos[off] = i
	}
	assert.Less(t, pos[10], pos[11], "offset 11 must wait for offset 10")
	assert.Equal(t, 1, workerFor(5, 4))
	assert.Equal(t, workerFor(1, 4), workerFor(5, 4), "partitions share workers by modulo")
}
