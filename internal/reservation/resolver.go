package reservation

import (
	"context"

	"github.com/iliyamo/cinema-seat-booking/internal/holdstore"
	"github.com/iliyamo/cinema-seat-booking/internal/model"
)

// Selection is the accepted result of Select.
type Selection struct {
	Hold      model.Hold
	Occupancy model.Occupancy
}

// Select tries to hold seatID for the session.  The first writer wins; a
// losing session gets a *ConflictError carrying the current occupancy and
// is expected to pick another seat.  Selecting a seat the session already
// holds succeeds without touching its deadline.
func (e *Engine) Select(ctx context.Context, screeningID uint64, sessionID string, seatID uint64, device *model.DeviceInfo) (Selection, error) {
	if !validSessionID(sessionID) {
		return Selection{}, ErrInvalidSessionID
	}
	if err := e.ensureLoaded(ctx, screeningID); err != nil {
		return Selection{}, err
	}
	scr, err := e.screening(ctx, screeningID)
	if err != nil {
		return Selection{}, err
	}
	if !scr.Bookable(e.now()) {
		return Selection{}, ErrScreeningClosed
	}
	seats, err := e.seatMap(ctx, screeningID)
	if err != nil {
		return Selection{}, err
	}
	if _, ok := seats[seatID]; !ok {
		return Selection{}, ErrUnknownSeat
	}

	st := e.sessions.lock(sessionID)
	defer e.sessions.unlock(sessionID, st)

	now := e.now()
	for _, h := range e.holds.SessionHolds(sessionID, screeningID) {
		if h.SeatID == seatID && !h.Expired(now) {
			return Selection{Hold: h, Occupancy: e.occupancy(screeningID, sessionID, now)}, nil
		}
	}
	if e.holds.CountLive(sessionID, now) >= e.cfg.MaxSeatsPerSession {
		e.stats.limitRejections.Add(1)
		return Selection{}, ErrSelectionLimitExceeded
	}

	out := e.holds.TryAcquire(screeningID, seatID, sessionID, now, e.cfg.SelectionTTL, device)
	switch out.Result {
	case holdstore.Conflict, holdstore.Booked:
		e.stats.conflicts.Add(1)
		return Selection{}, &ConflictError{
			SeatID:    seatID,
			Occupancy: e.occupancy(screeningID, sessionID, now),
		}
	}

	touch(st, sessionID, screeningID, out.Hold.ExpiresAt, now)
	e.stats.selects.Add(1)
	e.log.LogHoldAcquired(ctx, screeningID, seatID, sessionID, out.Hold.ExpiresAt)
	return Selection{Hold: out.Hold, Occupancy: e.occupancy(screeningID, sessionID, now)}, nil
}

// Deselect releases the session's hold on seatID.  Releasing a seat the
// session no longer owns is a successful no-op.
func (e *Engine) Deselect(ctx context.Context, screeningID uint64, sessionID string, seatID uint64) (model.Occupancy, error) {
	if !validSessionID(sessionID) {
		return model.Occupancy{}, ErrInvalidSessionID
	}
	if err := e.ensureLoaded(ctx, screeningID); err != nil {
		return model.Occupancy{}, err
	}

	st := e.sessions.lock(sessionID)
	defer e.sessions.unlock(sessionID, st)

	if e.holds.Release(screeningID, seatID, sessionID) == holdstore.Released {
		e.stats.deselects.Add(1)
		if st.rec.ID != "" {
			st.rec.UpdatedAt = e.now()
		}
	}
	return e.occupancy(screeningID, sessionID, e.now()), nil
}
