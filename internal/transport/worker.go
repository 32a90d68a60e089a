package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/LazarevaL/agro-llm-hack/constants"
	"github.com/LazarevaL/agro-llm-hack/internal/common"
	"github.com/LazarevaL/agro-llm-hack/internal/entity"
)

// ErrDeliveriesClosed is returned by Run when the broker closes the consumer.
var ErrDeliveriesClosed = errors.New("transport: delivery channel closed")

// Processor turns a job payload into an extraction result.
type Processor interface {
	Build(ctx context.Context, text string) (entity.ExtractionResult, error)
}

const replyTimeout = 5 * time.Second

// Worker consumes the job queue one delivery at a time.
type Worker struct {
	name  string
	url   string
	queue string
	proc  Processor
	dial  Dialer
	now   func() time.Time
	live  atomic.Bool
	log   *slog.Logger
}

type WorkerOption func(*Worker)

func WithWorkerDialer(d Dialer) WorkerOption {
	return func(w *Worker) { w.dial = d }
}

func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

func NewWorker(name string, cfg common.BrokerConfig, proc Processor, logger *slog.Logger, opts ...WorkerOption) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		name:  name,
		url:   cfg.URL,
		queue: cfg.Queue,
		proc:  proc,
		dial:  DialAMQP,
		now:   time.Now,
		log:   logger.With("worker", name),
	}
	if w.queue == "" {
		w.queue = constants.DefaultQueueName
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Worker) Name() string { return w.name }

// Live reports whether the worker is consuming.
func (w *Worker) Live() bool { return w.live.Load() }

// Run consumes until ctx is done (returns nil) or the broker goes away.
func (w *Worker) Run(ctx context.Context) error {
	conn, err := w.dial(w.url)
	if err != nil {
		return err
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(w.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", w.queue, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	deliveries, err := ch.Consume(w.queue, w.name, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", w.queue, err)
	}

	w.live.Store(true)
	defer w.live.Store(false)
	w.log.Info("worker.started", "queue", w.queue)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker.stopped")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			w.handle(ctx, ch, d)
		}
	}
}

// handle processes one delivery. The delivery is acked before the reply is
// published and a reply is sent on every path.
func (w *Worker) handle(ctx context.Context, ch Channel, d amqp.Delivery) {
	start := w.now()
	job := jobFromDelivery(d)
	ctx = common.WithCorrelationID(common.WithWorker(ctx, w.name), job.CorrelationID)
	log := w.log.With("correlation_id", job.CorrelationID)
	log.Info("worker.job.received", "payload_len", len(job.Payload))

	result, status := w.process(ctx, job, log)

	if err := d.Ack(false); err != nil {
		log.Error("worker.job.ack_failed", "error", err)
	}
	w.reply(ctx, ch, job, result, status, log)
	log.Info("worker.job.done",
		"status", status,
		"records", len(result.Records),
		"elapsed_ms", w.now().Sub(start).Milliseconds(),
	)
}

func (w *Worker) process(ctx context.Context, job Job, log *slog.Logger) (entity.ExtractionResult, constants.ReplyStatus) {
	if job.Expired(w.now()) {
		log.Warn("worker.job.expired", "deadline", job.Deadline)
		return entity.UnprocessableResult(), constants.ReplyStatusError
	}
	if !job.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = common.WithDeadline(ctx, job.Deadline)
		defer cancel()
	}
	result, err := w.proc.Build(ctx, job.Payload)
	if err != nil {
		log.Error("worker.job.failed", "error", err)
		return entity.UnprocessableResult(), constants.ReplyStatusError
	}
	return result, constants.ReplyStatusOK
}

func (w *Worker) reply(ctx context.Context, ch Channel, job Job, result entity.ExtractionResult, status constants.ReplyStatus, log *slog.Logger) {
	if job.ReplyTo == "" {
		log.Warn("worker.reply.skipped", "reason", "no reply_to")
		return
	}
	body, err := json.Marshal(result)
	if err != nil {
		log.Error("worker.reply.encode_failed", "error", err)
		body, _ = json.Marshal(entity.UnprocessableResult())
		status = constants.ReplyStatusError
	}
	// the reply must go out even while shutting down
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
	defer cancel()
	err = ch.PublishWithContext(pctx, "", job.ReplyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: job.CorrelationID,
		Headers:       amqp.Table{constants.HeaderStatus: string(status)},
		Timestamp:     w.now(),
		Body:          body,
	})
	if err != nil {
		log.Error("worker.reply.publish_failed", "error", err)
	}
}
