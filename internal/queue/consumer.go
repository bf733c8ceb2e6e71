package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/cinema-seat-booking/internal/logger"
)

// AuditLog appends one line per booking event to a file.
type AuditLog struct {
    mu   sync.Mutex
    path string
}

// NewAuditLog returns an AuditLog writing to path.  The directory is
// created on first write.
func NewAuditLog(path string) *AuditLog {
    return &AuditLog{path: path}
}

// Append decodes a message body from queueName and writes it as a single
// human-friendly line.
func (a *AuditLog) Append(queueName string, body []byte) error {
    var ev BookingEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.BookingID == 0 {
        return errors.New("event without booking id")
    }

    a.mu.Lock()
    defer a.mu.Unlock()

    if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(formatLine(queueName, ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func formatLine(queueName string, ev BookingEvent) string {
    seats := make([]string, len(ev.SeatIDs))
    for i, id := range ev.SeatIDs {
        seats[i] = fmt.Sprint(id)
    }
    verb := "Booking released"
    if queueName == BookingConfirmedQueue {
        verb = "Booking confirmed"
    }
    return fmt.Sprintf("[%s] %s | booking_id=%d | ticket=%s | screening_id=%d | status=%s | total=%d cents | seats=[%s] | customer=%q\n",
        ev.OccurredAt, verb, ev.BookingID, ev.TicketUUID, ev.ScreeningID, ev.Status, ev.AmountCents,
        strings.Join(seats, ","), ev.Customer)
}

// StartBookingConsumer connects to RabbitMQ, declares both booking queues
// (durable) and appends every delivery to the audit log.  It reconnects
// with exponential backoff until ctx is cancelled.  A message that cannot
// be handled is rejected without requeue so one bad payload cannot stall
// the queue.
func StartBookingConsumer(ctx context.Context, url string, audit *AuditLog, log *logger.Logger) {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Warn("booking consumer: dial failed", "error", err.Error(), "retry_in", backoff.String())
            select {
            case <-ctx.Done():
                return
            case <-time.After(backoff):
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = consumeLoop(ctx, conn, audit, log)
        _ = conn.Close()
        if ctx.Err() != nil {
            log.Info("booking consumer stopped")
            return
        }
        log.Warn("booking consumer: loop ended, reconnecting", "error", err.Error())
        select {
        case <-ctx.Done():
            return
        case <-time.After(2 * time.Second):
        }
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, audit *AuditLog, log *logger.Logger) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Warn("booking consumer: set QoS failed", "error", err.Error())
    }

    type delivery struct {
        queue string
        amqp.Delivery
    }
    merged := make(chan delivery)
    var wg sync.WaitGroup
    for _, name := range []string{BookingConfirmedQueue, BookingReleasedQueue} {
        if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
            return fmt.Errorf("queue declare %s: %w", name, err)
        }
        msgs, err := ch.Consume(name, "", false, false, false, false, nil)
        if err != nil {
            return fmt.Errorf("queue consume %s: %w", name, err)
        }
        wg.Add(1)
        go func(name string, msgs <-chan amqp.Delivery) {
            defer wg.Done()
            for d := range msgs {
                select {
                case merged <- delivery{queue: name, Delivery: d}:
                case <-ctx.Done():
                    _ = d.Nack(false, true)
                    return
                }
            }
        }(name, msgs)
    }
    go func() {
        wg.Wait()
        close(merged)
    }()

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-merged:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := audit.Append(d.queue, d.Body); err != nil {
                log.Error("booking consumer: handle message failed", "queue", d.queue, "error", err.Error())
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}
