// Package queue implements the video work queue on Postgres, Pub/Sub and
// process memory. Every driver delivers at least once: a message whose
// handler errors or whose worker dies becomes visible again.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"kairopi/internal/domain"
	"kairopi/internal/infra"
	"kairopi/internal/sqlinline"
)

const settleTimeout = 10 * time.Second

// PostgresOptions tunes the claim loops.
type PostgresOptions struct {
	Table             string
	Concurrency       int
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
}

// PostgresQueue is a table-backed queue claimed with FOR UPDATE SKIP LOCKED.
// A claimed row stays hidden for the visibility timeout, which a heartbeat
// keeps extending while the handler runs.
type PostgresQueue struct {
	sql    infra.SQLExecutor
	logger zerolog.Logger
	table  string
	index  string
	opts   PostgresOptions
}

func NewPostgresQueue(sql infra.SQLExecutor, logger zerolog.Logger, opts PostgresOptions) *PostgresQueue {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 5 * time.Minute
	}
	return &PostgresQueue{
		sql:    sql,
		logger: logger,
		table:  pq.QuoteIdentifier(opts.Table),
		index:  pq.QuoteIdentifier(opts.Table + "_visible_idx"),
		opts:   opts,
	}
}

// EnsureSchema creates the queue table and its claim index.
func (q *PostgresQueue) EnsureSchema(ctx context.Context) error {
	if _, err := q.sql.Exec(ctx, sqlinline.Bind(sqlinline.QCreateJobQueueTable, q.table)); err != nil {
		return fmt.Errorf("create queue table: %w", err)
	}
	if _, err := q.sql.Exec(ctx, sqlinline.Bind(sqlinline.QCreateJobQueueIndex, q.table, q.index)); err != nil {
		return fmt.Errorf("create queue index: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Publish(ctx context.Context, req domain.JobRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode job request: %w", err)
	}
	var id int64
	if err := q.sql.QueryRow(ctx, sqlinline.Bind(sqlinline.QEnqueueJobMessage, q.table), req.JobID, payload).Scan(&id); err != nil {
		return fmt.Errorf("enqueue job %s: %w", req.JobID, err)
	}
	q.logger.Debug().Str("job_id", req.JobID).Int64("message_id", id).Msg("job enqueued")
	return nil
}

// Receive runs Concurrency claim loops until ctx is cancelled.
func (q *PostgresQueue) Receive(ctx context.Context, handler domain.MessageHandler) error {
	var wg sync.WaitGroup
	for i := 0; i < q.opts.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			q.loop(ctx, slot, handler)
		}(i)
	}
	wg.Wait()
	return nil
}

func (q *PostgresQueue) loop(ctx context.Context, slot int, handler domain.MessageHandler) {
	logger := q.logger.With().Int("slot", slot).Logger()
	for {
		if ctx.Err() != nil {
			return
		}
		msg, ok, err := q.claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("claim failed")
		}
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(q.opts.PollInterval):
			}
			continue
		}
		q.process(ctx, logger, msg, handler)
	}
}

type claimedMessage struct {
	id int64
	domain.QueueMessage
}

func (q *PostgresQueue) claim(ctx context.Context) (claimedMessage, bool, error) {
	var (
		msg     claimedMessage
		jobID   string
		payload []byte
	)
	row := q.sql.QueryRow(ctx, sqlinline.Bind(sqlinline.QClaimJobMessage, q.table), q.opts.VisibilityTimeout.Seconds())
	if err := row.Scan(&msg.id, &jobID, &payload, &msg.Deliveries); err != nil {
		if infra.IsNoRows(err) {
			return msg, false, nil
		}
		return msg, false, err
	}
	msg.ID = strconv.FormatInt(msg.id, 10)
	msg.Data = payload
	return msg, true, nil
}

func (q *PostgresQueue) process(ctx context.Context, logger zerolog.Logger, msg claimedMessage, handler domain.MessageHandler) {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		q.runHeartbeat(hbCtx, logger, msg.id)
	}()

	err := handler(ctx, msg.QueueMessage)
	stopHeartbeat()
	<-hbDone

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err != nil {
		logger.Warn().Err(err).Str("message_id", msg.ID).Int("deliveries", msg.Deliveries).Msg("message released")
		if _, rerr := q.sql.Exec(settleCtx, sqlinline.Bind(sqlinline.QReleaseJobMessage, q.table), msg.id); rerr != nil {
			logger.Error().Err(rerr).Str("message_id", msg.ID).Msg("release failed")
		}
		return
	}
	if _, aerr := q.sql.Exec(settleCtx, sqlinline.Bind(sqlinline.QAckJobMessage, q.table), msg.id); aerr != nil {
		logger.Error().Err(aerr).Str("message_id", msg.ID).Msg("ack failed")
	}
}

func (q *PostgresQueue) runHeartbeat(ctx context.Context, logger zerolog.Logger, id int64) {
	ticker := time.NewTicker(q.opts.VisibilityTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.sql.Exec(ctx, sqlinline.Bind(sqlinline.QExtendJobMessage, q.table), id, q.opts.VisibilityTimeout.Seconds()); err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Int64("message_id", id).Msg("heartbeat failed")
			}
		}
	}
}

var (
	_ domain.JobPublisher = (*PostgresQueue)(nil)
	_ domain.JobConsumer  = (*PostgresQueue)(nil)
)
