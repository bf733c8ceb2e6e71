package reservation

import "sync/atomic"

// Stats counts reservation outcomes.  Conflicts and rejections are
// expected under contention and are recorded here instead of the error
// log.
type Stats struct {
	selects            atomic.Int64
	deselects          atomic.Int64
	conflicts          atomic.Int64
	limitRejections    atomic.Int64
	promotionsRejected atomic.Int64
	bookingsCreated    atomic.Int64
	bookingsConfirmed  atomic.Int64
	bookingsReleased   atomic.Int64
	holdsSwept         atomic.Int64
	holdsReleased      atomic.Int64
	sessionsExpired    atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats plus store gauges.
type StatsSnapshot struct {
	Selects            int64 `json:"selects"`
	Deselects          int64 `json:"deselects"`
	Conflicts          int64 `json:"conflicts"`
	LimitRejections    int64 `json:"limitRejections"`
	PromotionsRejected int64 `json:"promotionsRejected"`
	BookingsCreated    int64 `json:"bookingsCreated"`
	BookingsConfirmed  int64 `json:"bookingsConfirmed"`
	BookingsReleased   int64 `json:"bookingsReleased"`
	HoldsSwept         int64 `json:"holdsSwept"`
	HoldsReleased      int64 `json:"holdsReleased"`
	SessionsExpired    int64 `json:"sessionsExpired"`
	LiveHolds          int   `json:"liveHolds"`
	BookedSeats        int   `json:"bookedSeats"`
	ActiveSessions     int   `json:"activeSessions"`
}

func (s *Stats) snapshot(liveHolds, bookedSeats, sessions int) StatsSnapshot {
	return StatsSnapshot{
		Selects:            s.selects.Load(),
		Deselects:          s.deselects.Load(),
		Conflicts:          s.conflicts.Load(),
		LimitRejections:    s.limitRejections.Load(),
		PromotionsRejected: s.promotionsRejected.Load(),
		BookingsCreated:    s.bookingsCreated.Load(),
		BookingsConfirmed:  s.bookingsConfirmed.Load(),
		BookingsReleased:   s.bookingsReleased.Load(),
		HoldsSwept:         s.holdsSwept.Load(),
		HoldsReleased:      s.holdsReleased.Load(),
		SessionsExpired:    s.sessionsExpired.Load(),
		LiveHolds:          liveHolds,
		BookedSeats:        bookedSeats,
		ActiveSessions:     sessions,
	}
}
