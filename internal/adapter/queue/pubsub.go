package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"

	"kairopi/internal/domain"
)

// PubSubOptions configures the subscriber side.
type PubSubOptions struct {
	Topic        string
	Subscription string
	Concurrency  int
	// MaxExtension bounds how long a delivery may stay leased while the
	// handler is still polling the render.
	MaxExtension time.Duration
}

// PubSubQueue publishes to a topic and pulls from a subscription on it. The
// client library extends ack deadlines while a handler runs.
type PubSubQueue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger zerolog.Logger
	opts   PubSubOptions
}

func NewPubSubQueue(client *pubsub.Client, logger zerolog.Logger, opts PubSubOptions) *PubSubQueue {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &PubSubQueue{
		client: client,
		topic:  client.Topic(opts.Topic),
		logger: logger,
		opts:   opts,
	}
}

func (q *PubSubQueue) Publish(ctx context.Context, req domain.JobRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode job request: %w", err)
	}
	res := q.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"jobId": req.JobID},
	})
	id, err := res.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish job %s: %w", req.JobID, err)
	}
	q.logger.Debug().Str("job_id", req.JobID).Str("message_id", id).Msg("job published")
	return nil
}

// Receive blocks until ctx is cancelled. A handler error nacks the message.
func (q *PubSubQueue) Receive(ctx context.Context, handler domain.MessageHandler) error {
	sub := q.client.Subscription(q.opts.Subscription)
	sub.ReceiveSettings.MaxOutstandingMessages = q.opts.Concurrency
	sub.ReceiveSettings.NumGoroutines = 1
	if q.opts.MaxExtension > 0 {
		sub.ReceiveSettings.MaxExtension = q.opts.MaxExtension
	}

	err := sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		deliveries := 1
		if m.DeliveryAttempt != nil {
			deliveries = *m.DeliveryAttempt
		}
		msg := domain.QueueMessage{ID: m.ID, Data: m.Data, Deliveries: deliveries}
		if err := handler(ctx, msg); err != nil {
			q.logger.Warn().Err(err).Str("message_id", m.ID).Msg("message nacked")
			m.Nack()
			return
		}
		m.Ack()
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receive %s: %w", q.opts.Subscription, err)
	}
	return nil
}

// Stop flushes pending publishes.
func (q *PubSubQueue) Stop() {
	q.topic.Stop()
}

var (
	_ domain.JobPublisher = (*PubSubQueue)(nil)
	_ domain.JobConsumer  = (*PubSubQueue)(nil)
)
