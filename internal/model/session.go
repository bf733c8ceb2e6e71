package model

import "time"

// SessionPhase is the lifecycle state of a client session.
type SessionPhase string

const (
    SessionSelecting SessionPhase = "SELECTING"
    SessionPayment   SessionPhase = "PAYMENT"
    SessionTerminal  SessionPhase = "TERMINAL"
)

// TerminalReason records why a session reached SessionTerminal.
type TerminalReason string

const (
    ReasonPromoted  TerminalReason = "promoted"
    ReasonExpired   TerminalReason = "expired"
    ReasonCancelled TerminalReason = "cancelled"
    ReasonFailed    TerminalReason = "failed"
)

// Session is the server-side view of an anonymous client session.  It is
// not persisted: holds carry absolute deadlines and the session record
// only tracks the phase and the session-level deadline.
type Session struct {
    ID          string         `json:"sessionId"`
    ScreeningID uint64         `json:"screeningId"`
    Phase       SessionPhase   `json:"phase"`
    Reason      TerminalReason `json:"reason,omitempty"`
    ExpiresAt   time.Time      `json:"expiresAt"`
    UpdatedAt   time.Time      `json:"updatedAt"`
}
