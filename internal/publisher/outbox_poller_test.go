package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/meiduo/internal/domain"
	"github.com/fjod/meiduo/internal/repository"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type mockOutbox struct {
	mu        sync.Mutex
	events    []*repository.OutboxEvent
	processed []string
	getErr    error
}

func (m *mockOutbox) GetUnprocessedEvents(_ context.Context, limit int) ([]*repository.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []*repository.OutboxEvent
	done := map[string]bool{}
	for _, id := range m.processed {
		done[id] = true
	}
	for _, e := range m.events {
		if !done[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockOutbox) MarkEventAsProcessed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed = append(m.processed, id)
	return nil
}

func (m *mockOutbox) processedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.processed...)
}

type mockWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *mockWriter) Close() error {
	w.closed = true
	return nil
}

func (w *mockWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.messages...)
}

func event(id, orderID string) *repository.OutboxEvent {
	return &repository.OutboxEvent{
		ID:          id,
		AggregateID: orderID,
		EventType:   domain.EventOrderCreated,
		Payload:     []byte(`{"order_id":"` + orderID + `"}`),
		CreatedAt:   time.Now(),
	}
}

func TestProcessUnpublishedEvents_PublishesAndMarks(t *testing.T) {
	repo := &mockOutbox{events: []*repository.OutboxEvent{event("e1", "o1"), event("e2", "o2")}}
	writer := &mockWriter{}
	p := NewOutboxPollerWithWriter(repo, writer, zerolog.Nop())

	p.processUnpublishedEvents(context.Background())

	msgs := writer.written()
	require.Len(t, msgs, 2)
	assert.Equal(t, "o1", string(msgs[0].Key))
	assert.Equal(t, []kafka.Header{
		{Key: "event_type", Value: []byte(domain.EventOrderCreated)},
		{Key: "event_id", Value: []byte("e1")},
	}, msgs[0].Headers)
	assert.Equal(t, []string{"e1", "e2"}, repo.processedIDs())
}

func TestProcessUnpublishedEvents_WriteFailureLeavesEventPending(t *testing.T) {
	repo := &mockOutbox{events: []*repository.OutboxEvent{event("e1", "o1"), event("e2", "o2")}}
	writer := &mockWriter{err: errors.New("broker unavailable")}
	p := NewOutboxPollerWithWriter(repo, writer, zerolog.Nop())

	p.processUnpublishedEvents(context.Background())

	assert.Empty(t, repo.processedIDs())
	pending, err := repo.GetUnprocessedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestProcessUnpublishedEvents_BreakerOpensOnRepeatedFailures(t *testing.T) {
	repo := &mockOutbox{events: []*repository.OutboxEvent{event("e1", "o1")}}
	writer := &mockWriter{err: errors.New("broker unavailable")}
	p := NewOutboxPollerWithWriter(repo, writer, zerolog.Nop())

	for i := 0; i < 6; i++ {
		p.processUnpublishedEvents(context.Background())
	}

	writer.err = nil
	p.processUnpublishedEvents(context.Background())
	assert.Empty(t, writer.written(), "open breaker must short-circuit publishing")
	assert.Empty(t, repo.processedIDs())
}

func TestProcessUnpublishedEvents_FetchError(t *testing.T) {
	repo := &mockOutbox{getErr: errors.New("db down")}
	writer := &mockWriter{}
	p := NewOutboxPollerWithWriter(repo, writer, zerolog.Nop())

	p.processUnpublishedEvents(context.Background())
	assert.Empty(t, writer.written())
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := &mockOutbox{events: []*repository.OutboxEvent{event("e1", "o1")}}
	writer := &mockWriter{}
	p := NewOutboxPollerWithWriter(repo, writer, zerolog.Nop())
	p.eventTick = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(repo.processedIDs()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.NoError(t, p.Close())
	assert.True(t, writer.closed)
}
