// Package logger wraps log/slog with the handler selection and helper
// methods used across the service.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
}

// New creates a logger writing to stdout.  env "dev" selects the text
// handler, anything else the JSON handler.  level is one of debug, info,
// warn, error.
func New(env, level string) *Logger {
	return NewWithWriter(os.Stdout, env, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, env, level string) *Logger {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	var h slog.Handler
	if strings.EqualFold(env, "dev") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h)}
}

// Discard returns a logger that drops everything.  Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID adds request ID to logger context
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("request_id", requestID))}
}

// WithSession adds the client session to logger context
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("session_id", sessionID))}
}

// WithError adds error to logger context
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("error", err.Error()))}
}

// LogHTTPRequest logs a served request.
func (l *Logger) LogHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, ip string) {
	l.Logger.InfoContext(ctx,
		"HTTP Request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Duration("duration", duration),
		slog.String("ip", ip),
	)
}

// LogHoldAcquired is debug-level: holds are frequent and cheap.
func (l *Logger) LogHoldAcquired(ctx context.Context, screeningID, seatID uint64, sessionID string, expiresAt time.Time) {
	l.Logger.DebugContext(ctx,
		"Hold Acquired",
		slog.Uint64("screening_id", screeningID),
		slog.Uint64("seat_id", seatID),
		slog.String("session_id", sessionID),
		slog.Time("expires_at", expiresAt),
	)
}

// LogBookingCreated logs a successful promotion.
func (l *Logger) LogBookingCreated(ctx context.Context, bookingID, screeningID uint64, seats int, amountCents uint32) {
	l.Logger.InfoContext(ctx,
		"Booking Created",
		slog.Uint64("booking_id", bookingID),
		slog.Uint64("screening_id", screeningID),
		slog.Int("seats", seats),
		slog.Any("amount_cents", amountCents),
	)
}

// LogBookingTransition logs a booking status change.
func (l *Logger) LogBookingTransition(ctx context.Context, bookingID uint64, from, to string) {
	l.Logger.InfoContext(ctx,
		"Booking Status Changed",
		slog.Uint64("booking_id", bookingID),
		slog.String("from", from),
		slog.String("to", to),
	)
}

// LogSweep logs a sweep that did something.
func (l *Logger) LogSweep(ctx context.Context, holds, sessions, bookings int, took time.Duration) {
	l.Logger.InfoContext(ctx,
		"Sweep Completed",
		slog.Int("holds_released", holds),
		slog.Int("sessions_expired", sessions),
		slog.Int("bookings_timed_out", bookings),
		slog.Duration("took", took),
	)
}
