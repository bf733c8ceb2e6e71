package reservation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/cinema-seat-booking/internal/logger"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Sweep(ctx context.Context) (SweepReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(SweepReport), args.Error(1)
}

func TestSweeper_TicksRunner(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Sweep", mock.Anything).Return(SweepReport{HoldsReleased: 2}, nil)

	s := NewSweeper(runner, 20*time.Millisecond, logger.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	assert.GreaterOrEqual(t, len(runner.Calls), 1)
}

func TestSweeper_KeepsRunningAfterError(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Sweep", mock.Anything).Return(SweepReport{}, errors.New("db down"))

	s := NewSweeper(runner, 20*time.Millisecond, logger.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	assert.GreaterOrEqual(t, len(runner.Calls), 2)
}

func TestSweeper_StopsOnContextCancel(t *testing.T) {
	runner := &mockRunner{}
	s := NewSweeper(runner, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
	runner.AssertNotCalled(t, "Sweep", mock.Anything)
}

func TestEngine_Sweep_IsIdempotent(t *testing.T) {
	f := newFixture(t, 3)
	f.selectSeats(t, "a", 1, 2)
	f.clock.Advance(testConfig.SelectionTTL)

	first, err := f.engine.Sweep(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, first.HoldsReleased)

	second, err := f.engine.Sweep(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, second.HoldsReleased)
	assert.Zero(t, second.SessionsExpired)
	assert.Equal(t, int64(2), f.engine.Stats().HoldsSwept)
}
