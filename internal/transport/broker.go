// Package transport carries extraction jobs over AMQP: the Gateway
// publishes a job and waits for the correlated reply, Workers consume
// the shared queue and always answer.
package transport

import (
	"context"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/LazarevaL/agro-llm-hack/constants"
)

// Channel is the subset of *amqp.Channel used here.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Connection interface {
	Channel() (Channel, error)
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(url string) (Connection, error)

// DialAMQP is the production Dialer.
func DialAMQP(url string) (Connection, error) {
	c, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	return amqpConn{c}, nil
}

type amqpConn struct {
	*amqp.Connection
}

func (c amqpConn) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Job is one submission travelling to a worker.
type Job struct {
	Payload       string
	CorrelationID string
	ReplyTo       string
	Deadline      time.Time
}

// Expired reports whether the job's deadline has passed at now.
func (j Job) Expired(now time.Time) bool {
	return !j.Deadline.IsZero() && !now.Before(j.Deadline)
}

func (j Job) publishing(now time.Time) amqp.Publishing {
	p := amqp.Publishing{
		ContentType:   "text/plain",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: j.CorrelationID,
		ReplyTo:       j.ReplyTo,
		Timestamp:     now,
		Body:          []byte(j.Payload),
	}
	if !j.Deadline.IsZero() {
		ms := j.Deadline.Sub(now).Milliseconds()
		if ms < 1 {
			ms = 1
		}
		p.Expiration = strconv.FormatInt(ms, 10)
		p.Headers = amqp.Table{constants.HeaderDeadline: j.Deadline.UTC().Format(time.RFC3339)}
	}
	return p
}

func jobFromDelivery(d amqp.Delivery) Job {
	j := Job{
		Payload:       string(d.Body),
		CorrelationID: d.CorrelationId,
		ReplyTo:       d.ReplyTo,
	}
	if v, ok := d.Headers[constants.HeaderDeadline].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			j.Deadline = t
		}
	}
	return j
}

func replyStatus(d amqp.Delivery) constants.ReplyStatus {
	if v, ok := d.Headers[constants.HeaderStatus].(string); ok && v == string(constants.ReplyStatusError) {
		return constants.ReplyStatusError
	}
	return constants.ReplyStatusOK
}
