package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func eventMessage(t *testing.T, offset int64, eventID string) kafka.Message {
	t.Helper()
	event := &Event{EventID: eventID, EventType: "account.verification_requested", Data: []byte(`{}`)}
	data, err := event.Marshal()
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: data}
}

func runConsumer(t *testing.T, c *Consumer, r *fakeReader, wantCommits int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(r.commits()) >= wantCommits }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestConsumer_HandlesAndCommits(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{eventMessage(t, 1, "a"), eventMessage(t, 2, "b")}}

	var mu sync.Mutex
	var seen []string
	c := NewConsumerWithReader(r, "topic", "group", func(_ context.Context, e *Event) error {
		mu.Lock()
		seen = append(seen, e.EventID)
		mu.Unlock()
		return nil
	}, testLogger())

	runConsumer(t, c, r, 2)

	assert.Equal(t, []int64{1, 2}, r.commits())
	mu.Lock()
	assert.Equal(t, []string{"a", "b"}, seen)
	mu.Unlock()
	assert.Equal(t, 1, r.closed)
}

func TestConsumer_RetriesThenSkips(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{eventMessage(t, 7, "poison")}}

	var mu sync.Mutex
	attempts := 0
	c := NewConsumerWithReader(r, "topic", "group", func(context.Context, *Event) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("smtp down")
	}, testLogger())
	c.backoff = func(int) time.Duration { return time.Millisecond }

	runConsumer(t, c, r, 1)

	mu.Lock()
	assert.Equal(t, maxHandlerAttempts, attempts)
	mu.Unlock()
	assert.Equal(t, []int64{7}, r.commits())
}

func TestConsumer_RecoversAfterTransientFailure(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{eventMessage(t, 3, "flaky")}}

	var mu sync.Mutex
	attempts := 0
	c := NewConsumerWithReader(r, "topic", "group", func(context.Context, *Event) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("timeout")
		}
		return nil
	}, testLogger())
	c.backoff = func(int) time.Duration { return time.Millisecond }

	runConsumer(t, c, r, 1)

	mu.Lock()
	assert.Equal(t, 2, attempts)
	mu.Unlock()
}

func TestConsumer_SkipsUndecodableMessage(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 4, Value: []byte("garbage")}}}

	called := false
	c := NewConsumerWithReader(r, "topic", "group", func(context.Context, *Event) error {
		called = true
		return nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	runConsumer(t, c, r, 1)

	assert.False(t, called)
	assert.Equal(t, []int64{4}, r.commits())
}

func TestConsumer_CloseIsIdempotent(t *testing.T) {
	r := &fakeReader{}
	c := NewConsumerWithReader(r, "topic", "group", nil, testLogger())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, r.closed)
}
