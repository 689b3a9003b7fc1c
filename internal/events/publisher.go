// Package events fans audit entries out to RabbitMQ for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ideaboard.app/internal/audit"
)

// DefaultQueue receives every published audit entry.
const DefaultQueue = "audit.events"

type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func() (channel, func() error, error)

// Publisher publishes JSON messages to a durable queue over a lazily opened,
// reused channel. A failed publish drops the channel so the next call redials.
type Publisher struct {
	queue string
	dial  dialFunc

	mu        sync.Mutex
	ch        channel
	closeConn func() error
}

var _ audit.Publisher = (*Publisher)(nil)

// NewPublisher prepares a publisher for url. No connection is made until the
// first publish.
func NewPublisher(url, queue string) *Publisher {
	url = strings.TrimSpace(url)
	if queue = strings.TrimSpace(queue); queue == "" {
		queue = DefaultQueue
	}
	return &Publisher{
		queue: queue,
		dial: func() (channel, func() error, error) {
			conn, err := amqp.Dial(url)
			if err != nil {
				return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
			}
			ch, err := conn.Channel()
			if err != nil {
				_ = conn.Close()
				return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
			}
			return ch, conn.Close, nil
		},
	}
}

// Publish sends e as a persistent JSON message routed to the queue.
func (p *Publisher) Publish(ctx context.Context, e audit.Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Type:         e.Action,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.reset(ch)
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *Publisher) channel() (channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		return p.ch, nil
	}
	ch, closeConn, err := p.dial()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if closeConn != nil {
			_ = closeConn()
		}
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.ch = ch
	p.closeConn = closeConn
	return ch, nil
}

// reset drops failed only if it is still the live channel; a concurrent
// publisher may already have replaced it.
func (p *Publisher) reset(failed channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != failed {
		_ = failed.Close()
		return
	}
	_ = p.closeLocked()
}

func (p *Publisher) closeLocked() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.closeConn != nil {
		errs = append(errs, p.closeConn())
		p.closeConn = nil
	}
	return errors.Join(errs...)
}
