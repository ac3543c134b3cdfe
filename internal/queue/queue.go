// Package queue wraps the durable "biomajdownload" work queue (spec §6):
// persistent publish, prefetch=1, manual ack. Grounded on the teacher's
// networking idiom (one connection, one retry-guarded operation at a
// time) and on github.com/rabbitmq/amqp091-go, the AMQP 0-9-1 client the
// spec names explicitly (§4.8/§6) though no pack example imports one.
package queue

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/biomaj/biomaj-download/internal/model"
)

// QueueName is the durable queue name fixed by spec §6.
const QueueName = "biomajdownload"

// Queue is a thin, reconnect-free wrapper around one AMQP channel bound
// to the biomajdownload queue.
type Queue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to url and declares the durable queue with prefetch=1
// (spec §4.5 wait_for_messages, §6 delivery properties).
func Dial(url string) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "queue: dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "queue: channel")
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrap(err, "queue: qos")
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrap(err, "queue: declare")
	}
	return &Queue{conn: conn, ch: ch}, nil
}

// Publish serializes op and publishes it with persistent delivery mode
// (spec §4.5 ask_download, §6 "Delivery properties: persistent").
func (q *Queue) Publish(ctx context.Context, op model.Operation) error {
	body, err := json.Marshal(op)
	if err != nil {
		return errors.Wrap(err, "queue: marshal")
	}
	return errors.Wrap(q.ch.PublishWithContext(ctx, "", QueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}), "queue: publish")
}

// Handler processes one decoded Operation and returns an error to be
// recorded, never to trigger requeue: the consumer loop always acks
// (spec §4.5: "ack the delivery after the handler returns, even on
// handler exception, to avoid poison-message redelivery loops").
type Handler func(ctx context.Context, op model.Operation) error

// Consume runs the consumer loop described in spec §4.5 wait_for_messages
// until ctx is canceled: decode each delivery, call handle, ack
// unconditionally.
func (q *Queue) Consume(ctx context.Context, handle Handler) error {
	deliveries, err := q.ch.ConsumeWithContext(ctx, QueueName, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "queue: consume")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("queue: delivery channel closed")
			}
			var op model.Operation
			if err := json.Unmarshal(d.Body, &op); err != nil {
				// Malformed body: nothing to dispatch to, ack and move on
				// rather than wedge the queue.
				_ = d.Ack(false)
				continue
			}
			_ = handle(ctx, op)
			_ = d.Ack(false)
		}
	}
}

// Close releases the channel and connection.
func (q *Queue) Close() error {
	var err error
	if q.ch != nil {
		err = q.ch.Close()
	}
	if q.conn != nil {
		if cerr := q.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
