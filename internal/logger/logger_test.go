package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "prod", "info")

	log.WithRequestID("req-1").LogBookingTransition(context.Background(), 7, "PAYMENT_PENDING", "CONFIRMED")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Booking Status Changed", line["msg"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.EqualValues(t, 7, line["booking_id"])
	assert.Equal(t, "CONFIRMED", line["to"])
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "prod", "info")

	log.LogHoldAcquired(context.Background(), 1, 2, "sess", time.Now())
	assert.Zero(t, buf.Len(), "hold logs are debug level")

	log = NewWithWriter(&buf, "dev", "debug")
	log.WithSession("sess").LogHoldAcquired(context.Background(), 1, 2, "sess", time.Now())
	assert.Contains(t, buf.String(), "Hold Acquired")
	assert.Contains(t, buf.String(), "session_id=sess")
}
