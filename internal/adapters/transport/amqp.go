package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/merchkit/stockcast/internal/domain/dispatch"
)

// AMQP is a message-queue request/reply transport, used when the
// scoring service is deployed as an asynchronous worker pool instead of
// a directly reachable endpoint. Requests go to a durable queue; each
// reply is matched by correlation ID on an exclusive reply queue.
type AMQP struct {
	queue   string
	timeout time.Duration

	conn       *amqp.Connection
	channel    *amqp.Channel
	replyQueue string
	deliveries <-chan amqp.Delivery

	// One request/reply exchange in flight at a time. Chunk dispatch is
	// sequential already; the lock keeps the reply stream unambiguous.
	mu sync.Mutex
}

// AMQPOption applies a configuration option to the AMQP transport.
type AMQPOption func(*AMQP)

// WithAMQPTimeout sets the reply-wait timeout.
func WithAMQPTimeout(timeout time.Duration) AMQPOption {
	return func(t *AMQP) {
		if timeout > 0 {
			t.timeout = timeout
		}
	}
}

// NewAMQP connects to the broker and prepares the request and reply
// queues. The request queue is durable so worker restarts do not drop
// in-flight chunks.
func NewAMQP(url, queue string, opts ...AMQPOption) (*AMQP, error) {
	t := &AMQP{
		queue:   queue,
		timeout: defaultTimeout,
	}

	for _, opt := range opts {
		opt(t)
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare request queue: %w", err)
	}

	reply, err := channel.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare reply queue: %w", err)
	}

	deliveries, err := channel.Consume(reply.Name, "", true, true, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("consume reply queue: %w", err)
	}

	t.conn = conn
	t.channel = channel
	t.replyQueue = reply.Name
	t.deliveries = deliveries
	return t, nil
}

// Name identifies the transport for logs.
func (t *AMQP) Name() string { return "amqp" }

// Send publishes the payload and waits for the correlated reply, making
// exactly one attempt. Replies with a foreign correlation ID are
// discarded; the wait ends at the timeout.
func (t *AMQP) Send(ctx context.Context, payload []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	corrID := uuid.NewString()

	publishCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	err := t.channel.PublishWithContext(publishCtx, "", t.queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: corrID,
		ReplyTo:       t.replyQueue,
		DeliveryMode:  amqp.Persistent,
		Body:          payload,
	})
	if err != nil {
		return nil, failure(dispatch.KindUnreachable, fmt.Errorf("publish request: %w", err))
	}

	return t.awaitReply(ctx, corrID)
}

// awaitReply waits for the reply carrying corrID. The wait ends at the
// timeout or when the caller gives up; cancellation is reported
// distinctly from a reply timeout.
func (t *AMQP) awaitReply(ctx context.Context, corrID string) ([]byte, error) {
	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	for {
		select {
		case delivery, ok := <-t.deliveries:
			if !ok {
				return nil, failure(dispatch.KindUnreachable, fmt.Errorf("reply channel closed"))
			}
			if delivery.CorrelationId != corrID {
				// Stale reply from an earlier timed-out request.
				continue
			}
			return delivery.Body, nil
		case <-timer.C:
			return nil, failure(dispatch.KindTimeout, fmt.Errorf("no reply within %s", t.timeout))
		case <-ctx.Done():
			return nil, failure(dispatch.KindTimeout, fmt.Errorf("reply wait abandoned: %w", ctx.Err()))
		}
	}
}

// Close tears down the channel and connection.
func (t *AMQP) Close() error {
	if t.channel != nil {
		_ = t.channel.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
