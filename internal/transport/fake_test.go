package transport

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/LazarevaL/agro-llm-hack/internal/entity"
)

type published struct {
	key string
	msg amqp.Publishing
}

// fakeBroker routes publishes on the default exchange straight to queues.
type fakeBroker struct {
	mu        sync.Mutex
	queues    map[string]chan amqp.Delivery
	seq       uint64
	published []published
	events    []string
	prefetch  int
	dialErr   error
	onPublish func(b *fakeBroker, key string, msg amqp.Publishing)
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{queues: map[string]chan amqp.Delivery{}}
}

func (b *fakeBroker) dial(string) (Connection, error) {
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	return fakeConn{b}, nil
}

func (b *fakeBroker) queue(name string) chan amqp.Delivery {
	q, ok := b.queues[name]
	if !ok {
		q = make(chan amqp.Delivery, 16)
		b.queues[name] = q
	}
	return q
}

func (b *fakeBroker) get(name string) chan amqp.Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue(name)
}

func (b *fakeBroker) deliver(key string, msg amqp.Publishing) {
	b.mu.Lock()
	b.seq++
	b.published = append(b.published, published{key: key, msg: msg})
	b.events = append(b.events, "publish:"+key)
	q := b.queue(key)
	d := amqp.Delivery{
		Acknowledger:  b,
		DeliveryTag:   b.seq,
		Headers:       msg.Headers,
		CorrelationId: msg.CorrelationId,
		ReplyTo:       msg.ReplyTo,
		Expiration:    msg.Expiration,
		Body:          msg.Body,
	}
	hook := b.onPublish
	b.mu.Unlock()
	if hook != nil {
		hook(b, key, msg)
	}
	q <- d
}

func (b *fakeBroker) Ack(tag uint64, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, fmt.Sprintf("ack:%d", tag))
	return nil
}

func (b *fakeBroker) Nack(uint64, bool, bool) error { return nil }
func (b *fakeBroker) Reject(uint64, bool) error     { return nil }

func (b *fakeBroker) snapshot() ([]published, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.published...), append([]string(nil), b.events...)
}

type fakeConn struct{ b *fakeBroker }

func (c fakeConn) Channel() (Channel, error) { return &fakeChannel{b: c.b}, nil }
func (c fakeConn) Close() error              { return nil }

type fakeChannel struct{ b *fakeBroker }

func (c *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if name == "" {
		c.b.seq++
		name = fmt.Sprintf("amq.gen-%d", c.b.seq)
	}
	c.b.queue(name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) Consume(queue, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.b.queue(queue), nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.b.deliver(key, msg)
	return nil
}

func (c *fakeChannel) Close() error { return nil }

type processorFunc func(ctx context.Context, text string) (entity.ExtractionResult, error)

func (f processorFunc) Build(ctx context.Context, text string) (entity.ExtractionResult, error) {
	return f(ctx, text)
}
