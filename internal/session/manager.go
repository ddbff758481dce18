package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/waabox/catalogauth/internal/credential"
	"github.com/waabox/catalogauth/internal/domain"
	"github.com/waabox/catalogauth/internal/logging"
)

const storeTimeout = 5 * time.Second

// Snapshot is a point-in-time view of the manager.
type Snapshot struct {
	State      State
	Session    domain.Session
	Generation uint64
	LastError  error
}

// Manager is the session façade: it logs in through the Exchanger, hands the
// session to the Scheduler, persists it and fans events out to subscribers.
type Manager struct {
	exchanger Exchanger
	sched     *Scheduler
	store     Store
	clock     Clock
	recorder  Recorder
	log       logr.Logger

	// ops serializes Login, Resume and Logout.
	ops sync.Mutex

	mu        sync.Mutex
	listeners map[int]func(Event)
	nextID    int
	lastErr   error
}

// NewManager creates a Manager with no active session.
func NewManager(ex Exchanger, opts Options) *Manager {
	opts = opts.withDefaults()
	m := &Manager{
		exchanger: ex,
		store:     opts.Store,
		clock:     opts.Clock,
		recorder:  opts.Recorder,
		log:       opts.Logger.WithName("session"),
		listeners: make(map[int]func(Event)),
	}
	m.sched = NewScheduler(ex, opts, m.onSchedulerEvent)
	return m
}

// Login exchanges req for a new session and schedules its refresh.
// The previous session, if any, is cancelled only when the exchange succeeds.
func (m *Manager) Login(ctx context.Context, req domain.CredentialRequest) (domain.Session, error) {
	m.ops.Lock()
	defer m.ops.Unlock()
	return m.login(ctx, req)
}

func (m *Manager) login(ctx context.Context, req domain.CredentialRequest) (domain.Session, error) {
	start := m.clock.Now()
	sess, err := m.exchanger.Exchange(ctx, req)
	m.recorder.ObserveExchange(logging.PhaseLogin, m.clock.Now().Sub(start), err)
	if err != nil {
		m.log.Info("login failed", logging.KeyPhase, logging.PhaseLogin, "error", err.Error())
		return domain.Session{}, err
	}

	sess.ID = uuid.NewString()
	sess.Refreshes = 0
	m.activate(ctx, req, sess)
	m.log.Info("logged in",
		logging.KeySession, sess.ID,
		logging.KeyExpiresAt, sess.ExpiresAt.Format(time.RFC3339),
	)
	return sess, nil
}

// Resume adopts a stored session that is still valid and schedules its refresh.
// When the store is empty, unreadable or holds an expired session, Resume logs in.
func (m *Manager) Resume(ctx context.Context, req domain.CredentialRequest) (domain.Session, error) {
	if err := credential.Check(req); err != nil {
		return domain.Session{}, err
	}

	m.ops.Lock()
	defer m.ops.Unlock()

	if m.store != nil {
		sess, err := m.store.Load(ctx)
		switch {
		case err == nil && sess.ID != "" && sess.ValidAt(m.clock.Now()):
			m.activate(ctx, req, sess)
			m.log.Info("session resumed", logging.KeySession, sess.ID, logging.KeyRefreshes, sess.Refreshes)
			return sess, nil
		case err != nil && !errors.Is(err, domain.ErrNoSession):
			m.log.Error(err, "loading stored session")
		}
	}
	return m.login(ctx, req)
}

func (m *Manager) activate(ctx context.Context, req domain.CredentialRequest, sess domain.Session) {
	gen := m.sched.Start(req, sess)
	m.setLastError(nil)
	m.recorder.SetSession(true, sess.ExpiresAt)
	m.save(ctx, sess)
	m.publish(Event{Type: EventLoggedIn, Session: sess, Generation: gen})
}

// Logout cancels the active session and removes it from the store.
// Logging out without a session is a no-op.
func (m *Manager) Logout(ctx context.Context) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	prev, gen, ok := m.sched.stop()
	if !ok {
		return nil
	}
	m.recorder.SetSession(false, time.Time{})

	var err error
	if m.store != nil {
		if delErr := m.store.Delete(ctx); delErr != nil {
			err = fmt.Errorf("removing stored session: %w", delErr)
		}
	}
	m.log.Info("logged out", logging.KeySession, prev.ID)
	m.publish(Event{Type: EventLoggedOut, Session: prev, Generation: gen})
	return err
}

// Current returns the active session when its token is still valid.
// It returns domain.ErrNoSession, or an error wrapping domain.ErrSessionExpired
// when the token lapsed or the last refresh failed.
func (m *Manager) Current() (domain.Session, error) {
	sess, ok := m.sched.Session()
	if !ok {
		if last := m.LastError(); last != nil {
			return domain.Session{}, fmt.Errorf("%w: %v", domain.ErrSessionExpired, last)
		}
		return domain.Session{}, domain.ErrNoSession
	}
	if !sess.ValidAt(m.clock.Now()) {
		return domain.Session{}, domain.ErrSessionExpired
	}
	return sess, nil
}

// Token returns the current access token.
func (m *Manager) Token() (string, error) {
	sess, err := m.Current()
	if err != nil {
		return "", err
	}
	return sess.AccessToken, nil
}

// Snapshot returns the scheduler state, the session and the last refresh error.
func (m *Manager) Snapshot() Snapshot {
	sess, _ := m.sched.Session()
	return Snapshot{
		State:      m.sched.State(),
		Session:    sess,
		Generation: m.sched.Generation(),
		LastError:  m.LastError(),
	}
}

// LastError returns the *domain.SchedulerError of the last failed refresh.
// It is cleared by the next login.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Subscribe registers fn for every session event and returns a function that
// unregisters it. Listeners are called synchronously in registration order
// while Login, Resume and Logout are held off, so events arrive in the order the
// transitions happened. A listener must not call those methods itself.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
}

func (m *Manager) publish(ev Event) {
	m.mu.Lock()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.listeners[id])
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// onSchedulerEvent applies a refresh outcome. It runs under ops so it cannot
// interleave with Login, Resume or Logout, and drops events whose generation a
// later Start or Cancel has already superseded.
func (m *Manager) onSchedulerEvent(ev Event) {
	m.ops.Lock()
	defer m.ops.Unlock()

	if gen := m.sched.Generation(); ev.Generation != gen {
		m.log.V(1).Info("superseded session event dropped",
			logging.KeySession, ev.Session.ID,
			logging.KeyGeneration, ev.Generation,
			"current", gen,
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	switch ev.Type {
	case EventRefreshed:
		m.recorder.SetSession(true, ev.Session.ExpiresAt)
		m.save(ctx, ev.Session)
	case EventExpired:
		m.setLastError(ev.Err)
		m.recorder.SetSession(false, time.Time{})
		if m.store != nil {
			if err := m.store.Delete(ctx); err != nil {
				m.log.Error(err, "removing stored session", logging.KeySession, ev.Session.ID)
			}
		}
	}
	m.publish(ev)
}

func (m *Manager) save(ctx context.Context, sess domain.Session) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, sess); err != nil {
		m.log.Error(err, "persisting session", logging.KeySession, sess.ID)
	}
}
