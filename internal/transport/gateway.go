package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/LazarevaL/agro-llm-hack/constants"
	"github.com/LazarevaL/agro-llm-hack/internal/common"
	"github.com/LazarevaL/agro-llm-hack/internal/entity"
)

// ErrReplyTimeout is returned when no correlated reply arrives before the job deadline.
var ErrReplyTimeout = errors.New("transport: no reply before deadline")

// Gateway submits one job per call over a fresh connection.
type Gateway struct {
	url     string
	queue   string
	timeout time.Duration
	dial    Dialer
	now     func() time.Time
	log     *slog.Logger
}

type GatewayOption func(*Gateway)

func WithGatewayDialer(d Dialer) GatewayOption {
	return func(g *Gateway) { g.dial = d }
}

func WithGatewayClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

func NewGateway(cfg common.BrokerConfig, logger *slog.Logger, opts ...GatewayOption) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		url:     cfg.URL,
		queue:   cfg.Queue,
		timeout: cfg.RPCTimeout,
		dial:    DialAMQP,
		now:     time.Now,
		log:     logger,
	}
	if g.queue == "" {
		g.queue = constants.DefaultQueueName
	}
	if g.timeout <= 0 {
		g.timeout = 10 * time.Minute
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Submit publishes text as a job and waits for the reply carrying its
// correlation id. The wait ends at the job deadline or when ctx is done.
func (g *Gateway) Submit(ctx context.Context, text string) (entity.ExtractionResult, error) {
	start := g.now()
	deadline := start.Add(g.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	conn, err := g.dial(g.url)
	if err != nil {
		return entity.ExtractionResult{}, err
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return entity.ExtractionResult{}, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(g.queue, true, false, false, false, nil); err != nil {
		return entity.ExtractionResult{}, fmt.Errorf("declare %s: %w", g.queue, err)
	}
	replyQ, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return entity.ExtractionResult{}, fmt.Errorf("declare reply queue: %w", err)
	}
	replies, err := ch.Consume(replyQ.Name, "", true, true, false, false, nil)
	if err != nil {
		return entity.ExtractionResult{}, fmt.Errorf("consume reply queue: %w", err)
	}

	job := Job{
		Payload:       text,
		CorrelationID: uuid.NewString(),
		ReplyTo:       replyQ.Name,
		Deadline:      deadline,
	}
	log := g.log.With("correlation_id", job.CorrelationID)
	if err := ch.PublishWithContext(ctx, "", g.queue, false, false, job.publishing(start)); err != nil {
		return entity.ExtractionResult{}, fmt.Errorf("publish job: %w", err)
	}
	log.Info("gateway.job.published", "queue", g.queue, "deadline", deadline.Format(time.RFC3339), "payload_len", len(text))

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				log.Warn("gateway.reply.timeout", "elapsed_ms", g.now().Sub(start).Milliseconds())
				return entity.ExtractionResult{}, ErrReplyTimeout
			}
			return entity.ExtractionResult{}, ctx.Err()
		case d, ok := <-replies:
			if !ok {
				return entity.ExtractionResult{}, errors.New("transport: reply channel closed")
			}
			if d.CorrelationId != job.CorrelationID {
				log.Debug("gateway.reply.foreign", "got", d.CorrelationId)
				continue
			}
			var res entity.ExtractionResult
			if err := json.Unmarshal(d.Body, &res); err != nil {
				return entity.ExtractionResult{}, fmt.Errorf("decode reply: %w", err)
			}
			if replyStatus(d) == constants.ReplyStatusError {
				log.Warn("gateway.reply.error", "elapsed_ms", g.now().Sub(start).Milliseconds())
				return entity.UnprocessableResult(), nil
			}
			log.Info("gateway.reply.ok",
				"records", len(res.Records),
				"unprocessable", res.Unprocessable,
				"elapsed_ms", g.now().Sub(start).Milliseconds(),
			)
			return res, nil
		}
	}
}
