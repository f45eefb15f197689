package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"kairopi/internal/domain"
	"kairopi/internal/infra/pgtest"
)

type queueUnderTest interface {
	domain.JobPublisher
	domain.JobConsumer
}

// recorder collects handled job ids and cancels the receive loop once it has
// seen want acknowledged messages.
type recorder struct {
	mu      sync.Mutex
	acked   []string
	calls   map[string]int
	want    int
	cancel  context.CancelFunc
	failFor map[string]int
}

func newRecorder(want int, cancel context.CancelFunc) *recorder {
	return &recorder{want: want, cancel: cancel, calls: map[string]int{}, failFor: map[string]int{}}
}

func (r *recorder) handle(ctx context.Context, msg domain.QueueMessage) error {
	var req domain.JobRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[req.JobID]++
	if r.failFor[req.JobID] > 0 {
		r.failFor[req.JobID]--
		return errors.New("transient")
	}
	r.acked = append(r.acked, req.JobID)
	if len(r.acked) >= r.want {
		r.cancel()
	}
	return nil
}

func runUntilDone(t *testing.T, ctx context.Context, q queueUnderTest, rec *recorder) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- q.Receive(ctx, rec.handle) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("receive did not finish")
	}
}

func exerciseQueue(t *testing.T, q queueUnderTest) {
	t.Run("delivers every message", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		for _, id := range []string{"video-a", "video-b", "video-c"} {
			require.NoError(t, q.Publish(ctx, domain.JobRequest{JobID: id, Prompt: "p"}))
		}
		rec := newRecorder(3, cancel)
		runUntilDone(t, ctx, q, rec)
		assert.ElementsMatch(t, []string{"video-a", "video-b", "video-c"}, rec.acked)
	})

	t.Run("redelivers after handler error", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		require.NoError(t, q.Publish(ctx, domain.JobRequest{JobID: "video-retry", Prompt: "p"}))
		rec := newRecorder(1, cancel)
		rec.failFor["video-retry"] = 1
		runUntilDone(t, ctx, q, rec)
		assert.Equal(t, []string{"video-retry"}, rec.acked)
		assert.Equal(t, 2, rec.calls["video-retry"])
	})
}

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue(8, 2)
	q.RedeliveryDelay = time.Millisecond
	exerciseQueue(t, q)
}

func TestMemoryQueueCountsDeliveries(t *testing.T) {
	q := NewMemoryQueue(1, 1)
	q.RedeliveryDelay = time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Publish(ctx, domain.JobRequest{JobID: "video-1"}))

	var seen []int
	err := q.Receive(ctx, func(ctx context.Context, msg domain.QueueMessage) error {
		seen = append(seen, msg.Deliveries)
		if len(seen) < 3 {
			return errors.New("again")
		}
		cancel()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestMemoryQueuePublishRespectsContext(t *testing.T) {
	q := NewMemoryQueue(1, 1)
	require.NoError(t, q.Publish(context.Background(), domain.JobRequest{JobID: "video-1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, domain.JobRequest{JobID: "video-2"}), context.Canceled)
	assert.Equal(t, 1, q.Len())
}

func TestMemoryQueueRedeliveryDoesNotBlockAfterShutdown(t *testing.T) {
	q := NewMemoryQueue(1, 1)
	q.RedeliveryDelay = time.Hour
	require.NoError(t, q.Publish(context.Background(), domain.JobRequest{JobID: "video-1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.redeliver(ctx, domain.QueueMessage{ID: "nacked"})

	require.Eventually(t, func() bool { return q.Dropped() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, q.Len())
}

func TestMemoryQueueRequeuesAfterShutdownWhenRoomLeft(t *testing.T) {
	q := NewMemoryQueue(1, 1)
	q.RedeliveryDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.redeliver(ctx, domain.QueueMessage{ID: "nacked"})

	require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, q.Dropped())
}

func TestPostgresQueue(t *testing.T) {
	runner := pgtest.Runner(t)
	q := NewPostgresQueue(runner, zerolog.Nop(), PostgresOptions{
		Table:             "video-requests",
		Concurrency:       2,
		PollInterval:      20 * time.Millisecond,
		VisibilityTimeout: 2 * time.Second,
	})
	require.NoError(t, q.EnsureSchema(context.Background()))
	require.NoError(t, q.EnsureSchema(context.Background()))

	exerciseQueue(t, q)

	_, ok, err := q.claim(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "acknowledged messages are deleted")
}

func TestPostgresQueueHidesClaimedMessages(t *testing.T) {
	runner := pgtest.Runner(t)
	q := NewPostgresQueue(runner, zerolog.Nop(), PostgresOptions{Table: "claims", VisibilityTimeout: time.Minute})
	ctx := context.Background()
	require.NoError(t, q.EnsureSchema(ctx))
	require.NoError(t, q.Publish(ctx, domain.JobRequest{JobID: "video-1"}))

	first, ok, err := q.claim(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, first.Deliveries)

	_, ok, err = q.claim(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "claimed message stays invisible")
}

func TestPubSubQueue(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client, err := pubsub.NewClient(ctx, "kairopi-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "video-requests")
	require.NoError(t, err)
	_, err = client.CreateSubscription(ctx, "video-requests-sub", pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 10 * time.Second,
	})
	require.NoError(t, err)

	q := NewPubSubQueue(client, zerolog.Nop(), PubSubOptions{
		Topic:        "video-requests",
		Subscription: "video-requests-sub",
		Concurrency:  2,
		MaxExtension: time.Minute,
	})
	t.Cleanup(q.Stop)

	exerciseQueue(t, q)
}
