package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/waabox/catalogauth/internal/domain"
	"github.com/waabox/catalogauth/internal/logging"
)

const (
	DefaultRefreshRatio    = 0.5
	DefaultMinRefreshDelay = time.Second
	DefaultRefreshTimeout  = 15 * time.Second
)

// Exchanger trades a credential request for a fresh session.
// auth.Client is the production implementation.
type Exchanger interface {
	Exchange(ctx context.Context, req domain.CredentialRequest) (domain.Session, error)
}

// State is the scheduler's lifecycle state.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Options configures a Scheduler or a Manager. Zero values select defaults.
type Options struct {
	Clock Clock
	// RefreshRatio is the fraction of the remaining lifetime to wait before refreshing.
	RefreshRatio float64
	// MinRefreshDelay is the smallest delay armed while the token has at least that long left.
	MinRefreshDelay time.Duration
	// RefreshTimeout bounds each background exchange.
	RefreshTimeout time.Duration
	Recorder       Recorder
	// Store persists the current session. Nil disables persistence (Manager only).
	Store  Store
	Logger logr.Logger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = RealClock()
	}
	if o.RefreshRatio <= 0 || o.RefreshRatio > 1 {
		o.RefreshRatio = DefaultRefreshRatio
	}
	if o.MinRefreshDelay <= 0 {
		o.MinRefreshDelay = DefaultMinRefreshDelay
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = DefaultRefreshTimeout
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	return o
}

// Delay returns how long to wait before refreshing a token with the given
// remaining lifetime. The result is remaining*ratio, raised to minDelay and
// never above remaining.
func Delay(remaining time.Duration, ratio float64, minDelay time.Duration) time.Duration {
	if remaining <= 0 {
		return 0
	}
	d := time.Duration(float64(remaining) * ratio)
	if d < minDelay {
		d = minDelay
	}
	if d > remaining {
		d = remaining
	}
	return d
}

// Scheduler owns the process-wide session slot and the single refresh timer.
// Every timer callback carries the generation it was armed with; callbacks and
// exchange results from an older generation are discarded.
type Scheduler struct {
	mu      sync.Mutex
	state   State
	timer   Timer
	gen     uint64
	session domain.Session
	req     domain.CredentialRequest

	exchanger Exchanger
	opts      Options
	notify    func(Event)
	log       logr.Logger
}

// NewScheduler creates an Idle scheduler. notify receives EventRefreshed and
// EventExpired stamped with the generation they belong to; it is called
// outside the scheduler lock, so a Start or Cancel may already have superseded
// the event by the time it runs. notify may be nil.
func NewScheduler(ex Exchanger, opts Options, notify func(Event)) *Scheduler {
	opts = opts.withDefaults()
	if notify == nil {
		notify = func(Event) {}
	}
	return &Scheduler{
		exchanger: ex,
		opts:      opts,
		notify:    notify,
		log:       opts.Logger.WithName("scheduler"),
	}
}

// Start makes sess the current session and arms its refresh timer.
// Any previously armed timer is stopped first. It returns the new generation.
func (s *Scheduler) Start(req domain.CredentialRequest, sess domain.Session) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	s.gen++
	s.state = Active
	s.req = req
	s.session = sess
	s.armLocked()
	return s.gen
}

// Cancel stops the refresh timer and clears the session. It reports whether
// there was an active session; cancelling an Idle scheduler does nothing.
// A refresh already in flight is not aborted, but its result is discarded.
func (s *Scheduler) Cancel() bool {
	_, _, ok := s.stop()
	return ok
}

func (s *Scheduler) stop() (domain.Session, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Idle {
		return domain.Session{}, s.gen, false
	}
	prev := s.session
	s.stopTimerLocked()
	s.gen++
	s.state = Idle
	s.session = domain.Session{}
	s.req = domain.CredentialRequest{}
	s.log.V(1).Info("scheduler cancelled", logging.KeySession, prev.ID, logging.KeyGeneration, s.gen)
	return prev, s.gen, true
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Session returns a copy of the current session, if any.
func (s *Scheduler) Session() (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.state == Active
}

// Generation returns the current generation counter.
func (s *Scheduler) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) armLocked() {
	remaining := s.session.Remaining(s.opts.Clock.Now())
	delay := Delay(remaining, s.opts.RefreshRatio, s.opts.MinRefreshDelay)
	gen := s.gen
	s.timer = s.opts.Clock.AfterFunc(delay, func() { s.fire(gen) })
	s.log.V(1).Info("refresh armed",
		logging.KeySession, s.session.ID,
		logging.KeyGeneration, gen,
		logging.KeyDelay, delay.String(),
		logging.KeyExpiresAt, s.session.ExpiresAt.Format(time.RFC3339),
	)
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != Active {
		s.mu.Unlock()
		s.log.V(1).Info("stale timer discarded", logging.KeyGeneration, gen)
		return
	}
	// The handle that fired is spent.
	s.timer = nil
	req := s.req
	prev := s.session
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RefreshTimeout)
	start := s.opts.Clock.Now()
	next, err := s.exchanger.Exchange(ctx, req)
	cancel()
	s.opts.Recorder.ObserveExchange(logging.PhaseRefresh, s.opts.Clock.Now().Sub(start), err)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.log.V(1).Info("stale refresh result discarded", logging.KeySession, prev.ID, logging.KeyGeneration, gen)
		return
	}

	if err != nil {
		s.gen++
		expiredGen := s.gen
		s.state = Idle
		s.session = domain.Session{}
		s.req = domain.CredentialRequest{}
		s.mu.Unlock()

		schedErr := &domain.SchedulerError{SessionID: prev.ID, Refreshes: prev.Refreshes, Err: err}
		s.log.Error(err, "refresh failed, session cancelled",
			logging.KeySession, prev.ID,
			logging.KeyRefreshes, prev.Refreshes,
		)
		s.notify(Event{Type: EventExpired, Session: prev, Err: schedErr, Generation: expiredGen})
		return
	}

	next.ID = prev.ID
	next.Refreshes = prev.Refreshes + 1
	s.session = next
	s.armLocked()
	s.mu.Unlock()

	s.log.Info("session refreshed", logging.KeySession, next.ID, logging.KeyRefreshes, next.Refreshes)
	s.notify(Event{Type: EventRefreshed, Session: next, Generation: gen})
}
