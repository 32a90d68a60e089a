package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/LazarevaL/agro-llm-hack/constants"
	"github.com/LazarevaL/agro-llm-hack/internal/common"
	"github.com/LazarevaL/agro-llm-hack/internal/entity"
)

func brokerConfig(timeout time.Duration) common.BrokerConfig {
	return common.BrokerConfig{URL: "amqp://test", Queue: constants.DefaultQueueName, RPCTimeout: timeout}
}

func sampleRecords() []entity.OperationRecord {
	return []entity.OperationRecord{{Date: "05.09.2025", Operation: "Пахота", Source: "Пахота 10/100"}}
}

func startWorker(t *testing.T, w *Worker) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.Eventually(t, w.Live, time.Second, 5*time.Millisecond)
	return func() error {
		cancel()
		return <-done
	}
}

func TestSubmitRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := newFakeBroker()
	var got string
	w := NewWorker("worker_v1", brokerConfig(0), processorFunc(func(ctx context.Context, text string) (entity.ExtractionResult, error) {
		got = text
		assert.NotEmpty(t, common.CorrelationIDFromContext(ctx))
		assert.Equal(t, "worker_v1", common.WorkerFromContext(ctx))
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return entity.ExtractionResult{Records: sampleRecords()}, nil
	}), nil, WithWorkerDialer(b.dial))
	stop := startWorker(t, w)

	g := NewGateway(brokerConfig(time.Second), nil, WithGatewayDialer(b.dial))
	res, err := g.Submit(context.Background(), "Пахота 10/100")
	require.NoError(t, err)
	require.NoError(t, stop())

	assert.Equal(t, "Пахота 10/100", got)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Пахота", res.Records[0].Operation)
	assert.Equal(t, 1, b.prefetch)
}

func TestSubmitRespectsCallerCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := newFakeBroker()
	g := NewGateway(brokerConfig(time.Minute), nil, WithGatewayDialer(b.dial))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Submit(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerAcksThenRepliesWithErrorOnFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := newFakeBroker()
	w := NewWorker("worker_v1", brokerConfig(0), processorFunc(func(context.Context, string) (entity.ExtractionResult, error) {
		return entity.ExtractionResult{}, errors.New("model unavailable")
	}), nil, WithWorkerDialer(b.dial))
	stop := startWorker(t, w)

	ch := &fakeChannel{b: b}
	replyQ, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	job := Job{Payload: "x", CorrelationID: "cid-1", ReplyTo: replyQ.Name, Deadline: time.Now().Add(time.Minute)}
	require.NoError(t, ch.PublishWithContext(context.Background(), "", constants.DefaultQueueName, false, false, job.publishing(time.Now())))

	var reply amqp.Delivery
	select {
	case reply = <-b.get(replyQ.Name):
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
	require.NoError(t, stop())

	assert.Equal(t, "cid-1", reply.CorrelationId)
	assert.Equal(t, string(constants.ReplyStatusError), reply.Headers[constants.HeaderStatus])
	var text string
	require.NoError(t, json.Unmarshal(reply.Body, &text))
	assert.Equal(t, constants.ErrorText, text)

	_, events := b.snapshot()
	assert.Equal(t, []string{"publish:" + constants.DefaultQueueName, "ack:2", "publish:" + replyQ.Name}, events)
}

func TestWorkerAnswersExpiredJobWithoutProcessing(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := newFakeBroker()
	called := false
	w := NewWorker("worker_v1", brokerConfig(0), processorFunc(func(context.Context, string) (entity.ExtractionResult, error) {
		called = true
		return entity.ExtractionResult{}, nil
	}), nil, WithWorkerDialer(b.dial))
	stop := startWorker(t, w)

	now := time.Now()
	job := Job{Payload: "x", CorrelationID: "late", ReplyTo: "replies", Deadline: now.Add(-time.Second)}
	b.deliver(constants.DefaultQueueName, job.publishing(now.Add(-time.Minute)))

	var reply amqp.Delivery
	select {
	case reply = <-b.get("replies"):
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
	require.NoError(t, stop())
	assert.False(t, called)
	assert.Equal(t, "late", reply.CorrelationId)
	assert.Equal(t, string(constants.ReplyStatusError), reply.Headers[constants.HeaderStatus])
}

func TestSubmitTimesOutWithoutReply(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := newFakeBroker()
	g := NewGateway(brokerConfig(30*time.Millisecond), nil, WithGatewayDialer(b.dial))

	_, err := g.Submit(context.Background(), "x")
	assert.ErrorIs(t, err, ErrReplyTimeout)

	pubs, _ := b.snapshot()
	require.Len(t, pubs, 1)
	msg := pubs[0].msg
	assert.Equal(t, constants.DefaultQueueName, pubs[0].key)
	assert.NotEmpty(t, msg.CorrelationId)
	assert.NotEmpty(t, msg.ReplyTo)
	assert.NotEmpty(t, msg.Expiration)
	assert.Contains(t, msg.Headers, constants.HeaderDeadline)
}

func TestSubmitIgnoresForeignReplies(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := newFakeBroker()
	b.onPublish = func(b *fakeBroker, key string, msg amqp.Publishing) {
		if key != constants.DefaultQueueName {
			return
		}
		body, _ := json.Marshal(entity.ExtractionResult{Records: sampleRecords()})
		go func() {
			b.deliver(msg.ReplyTo, amqp.Publishing{CorrelationId: "someone-else", Body: []byte(`"x"`)})
			b.deliver(msg.ReplyTo, amqp.Publishing{CorrelationId: msg.CorrelationId, Body: body})
		}()
	}
	g := NewGateway(brokerConfig(time.Second), nil, WithGatewayDialer(b.dial))

	res, err := g.Submit(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, res.Unprocessable)
	assert.Len(t, res.Records, 1)
}

func TestSubmitErrorReplyIsUnprocessable(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := newFakeBroker()
	b.onPublish = func(b *fakeBroker, key string, msg amqp.Publishing) {
		if key != constants.DefaultQueueName {
			return
		}
		body, _ := json.Marshal(entity.UnprocessableResult())
		go b.deliver(msg.ReplyTo, amqp.Publishing{
			CorrelationId: msg.CorrelationId,
			Headers:       amqp.Table{constants.HeaderStatus: string(constants.ReplyStatusError)},
			Body:          body,
		})
	}
	g := NewGateway(brokerConfig(time.Second), nil, WithGatewayDialer(b.dial))

	res, err := g.Submit(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, res.Unprocessable)
	assert.Equal(t, constants.ErrorText, res.Message())
}

func TestSubmitDialError(t *testing.T) {
	b := newFakeBroker()
	b.dialErr = errors.New("connection refused")
	g := NewGateway(brokerConfig(time.Second), nil, WithGatewayDialer(b.dial))

	_, err := g.Submit(context.Background(), "x")
	assert.ErrorContains(t, err, "connection refused")
}

func TestJobDeadlineTravelsInHeaders(t *testing.T) {
	now := time.Date(2025, 9, 5, 10, 0, 0, 0, time.UTC)
	job := Job{Payload: "p", CorrelationID: "c", ReplyTo: "r", Deadline: now.Add(90 * time.Second)}
	msg := job.publishing(now)
	assert.Equal(t, "90000", msg.Expiration)

	back := jobFromDelivery(amqp.Delivery{Body: msg.Body, CorrelationId: msg.CorrelationId, ReplyTo: msg.ReplyTo, Headers: msg.Headers})
	assert.Equal(t, job.Payload, back.Payload)
	assert.True(t, job.Deadline.Equal(back.Deadline))
	assert.False(t, back.Expired(now))
	assert.True(t, back.Expired(now.Add(90*time.Second)))
	assert.False(t, Job{}.Expired(now))
}

func TestPoolStopsAllWorkersWhenOneFails(t *testing.T) {
	defer goleak.VerifyNone(t)
	good := newFakeBroker()
	bad := newFakeBroker()
	bad.dialErr = errors.New("no route")
	noop := processorFunc(func(context.Context, string) (entity.ExtractionResult, error) {
		return entity.ExtractionResult{}, nil
	})
	w1 := NewWorker("worker_v1", brokerConfig(0), noop, nil, WithWorkerDialer(good.dial))
	w2 := NewWorker("worker_v2", brokerConfig(0), noop, nil, WithWorkerDialer(bad.dial))
	p := NewPool([]*Worker{w1, w2}, nil)

	err := p.Run(context.Background())
	assert.ErrorContains(t, err, "no route")
	assert.False(t, p.Live())
}

func TestHealthReflectsLiveness(t *testing.T) {
	live := false
	h := NewHealthServer(func() bool { return live }, nil)
	defer h.srv.Stop()

	assert.Equal(t, "NOT_SERVING", h.Refresh().String())
	live = true
	assert.Equal(t, "SERVING", h.Refresh().String())
}
