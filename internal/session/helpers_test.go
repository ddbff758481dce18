package session_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/waabox/catalogauth/internal/domain"
	"github.com/waabox/catalogauth/internal/session"
)

var epoch = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeClock fires timers only when Advance is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	// stopIsNoop simulates a timer that already fired on its own goroutine
	// when Stop was called.
	stopIsNoop bool
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) session.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.clock.stopIsNoop || t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs every timer that became due, in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// Pending returns the number of armed timers that have neither fired nor been stopped.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// LastDelay returns the delay of the most recently armed timer.
func (c *fakeClock) LastDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return 0
	}
	return c.timers[len(c.timers)-1].delay
}

// fakeExchanger issues tokens valid for ttl and counts calls.
type fakeExchanger struct {
	mu    sync.Mutex
	clock *fakeClock
	ttl   time.Duration
	calls int
	err   error
	// during runs inside Exchange, outside the scheduler lock.
	during func()
}

func (e *fakeExchanger) Exchange(_ context.Context, req domain.CredentialRequest) (domain.Session, error) {
	e.mu.Lock()
	e.calls++
	n := e.calls
	err := e.err
	during := e.during
	e.mu.Unlock()

	if during != nil {
		during()
	}
	if err != nil {
		return domain.Session{}, err
	}
	now := e.clock.Now()
	return domain.Session{
		AccessToken: fmt.Sprintf("tok_%d", n),
		TokenType:   domain.DefaultTokenType,
		Scope:       req.Scope,
		IssuedAt:    now,
		ExpiresAt:   now.Add(e.ttl),
	}, nil
}

func (e *fakeExchanger) SetDuring(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.during = fn
}

func (e *fakeExchanger) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *fakeExchanger) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// recordingRecorder captures Recorder calls.
type recordingRecorder struct {
	mu        sync.Mutex
	exchanges []string
	active    bool
}

func (r *recordingRecorder) ObserveExchange(phase string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.exchanges = append(r.exchanges, phase+":"+result)
}

func (r *recordingRecorder) SetSession(active bool, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = active
}

// memoryStore is an in-memory session.Store.
type memoryStore struct {
	mu      sync.Mutex
	sess    *domain.Session
	saves   int
	deletes int
}

func (s *memoryStore) Load(context.Context) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return domain.Session{}, domain.ErrNoSession
	}
	return *s.sess, nil
}

func (s *memoryStore) Save(_ context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = &sess
	s.saves++
	return nil
}

func (s *memoryStore) Delete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = nil
	s.deletes++
	return nil
}

func (s *memoryStore) Stored() (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return domain.Session{}, false
	}
	return *s.sess, true
}

func validRequest() domain.CredentialRequest {
	return domain.NewClientCredentials("a", "b", "c")
}

func newTestManager(ttl time.Duration) (*session.Manager, *fakeClock, *fakeExchanger) {
	clock := newFakeClock()
	ex := &fakeExchanger{clock: clock, ttl: ttl}
	m := session.NewManager(ex, session.Options{Clock: clock})
	return m, clock, ex
}
