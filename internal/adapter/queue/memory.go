package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"kairopi/internal/domain"
)

// MemoryQueue is an in-process queue for tests and the standalone binary.
// Nacked messages are put back after RedeliveryDelay.
type MemoryQueue struct {
	ch              chan domain.QueueMessage
	concurrency     int
	seq             atomic.Int64
	dropped         atomic.Int64
	RedeliveryDelay time.Duration
	Logger          zerolog.Logger
}

func NewMemoryQueue(buffer, concurrency int) *MemoryQueue {
	if buffer < 1 {
		buffer = 64
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &MemoryQueue{
		ch:              make(chan domain.QueueMessage, buffer),
		concurrency:     concurrency,
		RedeliveryDelay: 100 * time.Millisecond,
		Logger:          zerolog.Nop(),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, req domain.JobRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode job request: %w", err)
	}
	msg := domain.QueueMessage{ID: strconv.FormatInt(q.seq.Add(1), 10), Data: data}
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped reports nacked messages that could not be requeued after shutdown.
func (q *MemoryQueue) Dropped() int64 {
	return q.dropped.Load()
}

// Len reports messages waiting for delivery.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

func (q *MemoryQueue) Receive(ctx context.Context, handler domain.MessageHandler) error {
	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-q.ch:
					msg.Deliveries++
					if err := handler(ctx, msg); err != nil {
						q.redeliver(ctx, msg)
					}
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func (q *MemoryQueue) redeliver(ctx context.Context, msg domain.QueueMessage) {
	go func() {
		select {
		case <-time.After(q.RedeliveryDelay):
			select {
			case q.ch <- msg:
				return
			case <-ctx.Done():
			}
		case <-ctx.Done():
		}
		// after cancellation keep the message only if the buffer has room
		select {
		case q.ch <- msg:
		default:
			q.dropped.Add(1)
			q.Logger.Warn().Str("message_id", msg.ID).Int("deliveries", msg.Deliveries).Msg("memory queue: buffer full, dropping nacked message")
		}
	}()
}

var (
	_ domain.JobPublisher = (*MemoryQueue)(nil)
	_ domain.JobConsumer  = (*MemoryQueue)(nil)
)
