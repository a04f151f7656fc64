package domain

import "time"

// CallStatus represents the lifecycle state of a call session.
type CallStatus string

const (
	CallStatusRinging   CallStatus = "ringing"
	CallStatusOngoing   CallStatus = "ongoing"
	CallStatusEnded     CallStatus = "ended"
	CallStatusCancelled CallStatus = "cancelled"
)

// CallEndReason describes why a call session ended.
type CallEndReason string

const (
	CallEndCompleted      CallEndReason = "completed"
	CallEndTimeout        CallEndReason = "timeout"
	CallEndCancelled      CallEndReason = "cancelled"
	CallEndNoAnswer       CallEndReason = "no_answer"
	CallEndTechnicalIssue CallEndReason = "technical_issue"
)

// CallSession is the authoritative live record of one negotiation call
// between a tourist and a guide. The owning trip keeps a denormalized
// CallRecord snapshot. The Deadline is persisted so that pending
// auto-end timers survive a process restart.
type CallSession struct {
	ID      string
	TripID  string
	Channel string // transport room name

	TouristID  string
	GuideID    string
	TouristUID uint32 // numeric id used by the call transport
	GuideUID   uint32

	Status             CallStatus
	MaxDurationSeconds int
	Deadline           time.Time

	EndReason       CallEndReason
	Summary         string
	NegotiatedPrice float64

	StartedAt time.Time
	EndedAt   time.Time
}

// Terminal reports whether the session can no longer change.
func (s *CallSession) Terminal() bool {
	return s.Status == CallStatusEnded || s.Status == CallStatusCancelled
}
