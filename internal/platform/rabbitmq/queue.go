// Package rabbitmq implements the task queue transport on RabbitMQ.
// Each worker owns one durable queue; a companion dead-letter queue on
// the same vhost parks messages whose batches have terminally failed.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/oroshi/backoffice/internal/task"
)

const (
	// deadLetterSuffix names the parking queue next to each worker queue.
	deadLetterSuffix = ".dead"

	// groupHeader carries the ordering group id on every message so
	// operators can trace which lane a chunk belongs to.
	groupHeader = "x-ordering-group"
)

// Queue implements task.Queue on a RabbitMQ queue pair. Consumption uses
// a prefetch of one so each loop iteration holds at most a single
// unsettled chunk, which together with the publisher emitting all chunks
// of a group in order preserves per-group delivery order.
type Queue struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
	deadName  string
	logger    *slog.Logger
	msgs      <-chan amqp.Delivery
}

// New connects to RabbitMQ and declares the worker queue and its
// dead-letter companion.
func New(url, queueName string, log *slog.Logger) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	deadName := queueName + deadLetterSuffix
	if _, err := ch.QueueDeclare(
		deadName,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": deadName,
		},
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// One unsettled message at a time keeps chunk processing strictly
	// sequential within the consumer.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	return &Queue{
		conn:      conn,
		channel:   ch,
		queueName: queueName,
		deadName:  deadName,
		logger:    log.With("component", "rabbitmq_queue", "queue", queueName),
	}, nil
}

// Publish enqueues one chunk envelope and returns the message id used as
// the dispatch handle.
func (q *Queue) Publish(ctx context.Context, groupID string, env *task.Envelope) (string, error) {
	body, err := env.Encode()
	if err != nil {
		return "", err
	}

	messageID := fmt.Sprintf("%s:%d", env.CorrelationID, env.ChunkID)
	err = q.channel.PublishWithContext(ctx,
		"",
		q.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Body:         body,
			Headers: amqp.Table{
				groupHeader: groupID,
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	return messageID, nil
}

// Receive blocks until a chunk arrives or ctx is cancelled. A delivery
// whose body cannot be decoded is rejected straight to the dead-letter
// queue and reported as a nil delivery.
func (q *Queue) Receive(ctx context.Context) (task.Delivery, error) {
	if q.msgs == nil {
		msgs, err := q.channel.Consume(
			q.queueName,
			"",
			false,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to start consuming: %w", err)
		}
		q.msgs = msgs
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-q.msgs:
		if !ok {
			return nil, fmt.Errorf("consume channel closed")
		}

		env, err := task.DecodeEnvelope(msg.Body)
		if err != nil {
			q.logger.Error("malformed message, rejecting to dead-letter queue",
				"message_id", msg.MessageId,
				"error", err)
			if rejectErr := msg.Reject(false); rejectErr != nil {
				q.logger.Error("failed to reject malformed message", "error", rejectErr)
			}
			return nil, nil
		}

		return &delivery{msg: msg, env: env}, nil
	}
}

// Close shuts down the channel and connection.
func (q *Queue) Close() error {
	if err := q.channel.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}

// delivery wraps one unsettled AMQP message.
type delivery struct {
	msg amqp.Delivery
	env *task.Envelope
}

func (d *delivery) Envelope() *task.Envelope { return d.env }

// Ack deletes the message from the queue.
func (d *delivery) Ack(ctx context.Context) error {
	if err := d.msg.Ack(false); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// Retry releases the message back to the queue for redelivery.
func (d *delivery) Retry(ctx context.Context) error {
	if err := d.msg.Nack(false, true); err != nil {
		return fmt.Errorf("failed to release message: %w", err)
	}
	return nil
}

// DeadLetter rejects the message without requeue; the queue's
// dead-letter routing parks it on the companion queue.
func (d *delivery) DeadLetter(ctx context.Context) error {
	if err := d.msg.Reject(false); err != nil {
		return fmt.Errorf("failed to dead-letter message: %w", err)
	}
	return nil
}
