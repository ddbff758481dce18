package session

import (
	"time"

	"github.com/waabox/catalogauth/internal/domain"
)

// EventType identifies a session lifecycle transition.
type EventType int

const (
	// EventLoggedIn is published after a login or a resumed session.
	EventLoggedIn EventType = iota + 1
	// EventRefreshed is published after a scheduled refresh replaced the token.
	EventRefreshed
	// EventLoggedOut is published after an explicit logout.
	EventLoggedOut
	// EventExpired is published when a scheduled refresh failed. Err is a
	// *domain.SchedulerError.
	EventExpired
)

func (t EventType) String() string {
	switch t {
	case EventLoggedIn:
		return "logged_in"
	case EventRefreshed:
		return "refreshed"
	case EventLoggedOut:
		return "logged_out"
	case EventExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Event is delivered to every subscriber, outside any session lock.
type Event struct {
	Type       EventType
	Session    domain.Session
	Err        error
	// Generation is the scheduler generation current when the event happened.
	Generation uint64
}

// Recorder receives exchange and session measurements.
// metrics.Metrics is the production implementation.
type Recorder interface {
	ObserveExchange(phase string, elapsed time.Duration, err error)
	SetSession(active bool, expiresAt time.Time)
}

type nopRecorder struct{}

func (nopRecorder) ObserveExchange(string, time.Duration, error) {}
func (nopRecorder) SetSession(bool, time.Time)                  {}
