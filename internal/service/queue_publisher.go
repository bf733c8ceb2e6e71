// Package service holds adapters the reservation engine talks to at its
// edges.  BookingPublisher sends booking lifecycle events to RabbitMQ.
package service

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/cinema-seat-booking/internal/logger"
    "github.com/iliyamo/cinema-seat-booking/internal/queue"
)

// BookingPublisher publishes queue.BookingEvent messages on the default
// exchange, routed by queue name.  The connection is opened lazily and
// re-dialled after a failure, so a broker outage only costs the events
// published while it lasts; errors are returned for the caller to log and
// never affect the booking itself.
type BookingPublisher struct {
    url string
    log *logger.Logger

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

// NewBookingPublisher returns a publisher for the broker at url.  No
// connection is made until the first Publish.
func NewBookingPublisher(url string, log *logger.Logger) *BookingPublisher {
    if log == nil {
        log = logger.Discard()
    }
    return &BookingPublisher{url: url, log: log}
}

// Publish sends ev to the queue selected by ev.Queue().  Messages are
// marked persistent.
func (p *BookingPublisher) Publish(ctx context.Context, ev queue.BookingEvent) error {
    body, err := json.Marshal(ev)
    if err != nil {
        return fmt.Errorf("marshal booking event: %w", err)
    }

    p.mu.Lock()
    defer p.mu.Unlock()

    ch, err := p.channel()
    if err != nil {
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx,
        "",         // default exchange
        ev.Queue(), // routing key = queue name
        false,      // mandatory
        false,      // immediate
        pub,
    ); err != nil {
        p.resetLocked()
        return fmt.Errorf("publish %s: %w", ev.Queue(), err)
    }
    return nil
}

// channel returns an open channel, dialling and declaring the booking
// queues if needed.  p.mu must be held.
func (p *BookingPublisher) channel() (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() {
        return p.ch, nil
    }
    p.resetLocked()

    conn, err := amqp.Dial(p.url)
    if err != nil {
        return nil, fmt.Errorf("rabbitmq dial: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, fmt.Errorf("rabbitmq channel: %w", err)
    }
    for _, name := range []string{queue.BookingConfirmedQueue, queue.BookingReleasedQueue} {
        // durable so messages survive broker restarts
        if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
            _ = ch.Close()
            _ = conn.Close()
            return nil, fmt.Errorf("declare %s: %w", name, err)
        }
    }
    p.conn, p.ch = conn, ch
    p.log.Info("booking publisher connected")
    return ch, nil
}

func (p *BookingPublisher) resetLocked() {
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        _ = p.conn.Close()
        p.conn = nil
    }
}

// Close releases the broker connection.
func (p *BookingPublisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.resetLocked()
    return nil
}
