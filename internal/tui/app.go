package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/catalogauth/internal/domain"
	"github.com/waabox/catalogauth/internal/session"
)

// LoginResultMsg is sent when a submitted login completes.
// It is exported so that tests can inject it directly into AppModel.Update.
type LoginResultMsg struct {
	Session domain.Session
	Err     error
}

// SessionEventMsg wraps a session manager event delivered to the program.
type SessionEventMsg struct {
	Event session.Event
}

// LogoutResultMsg is sent when a requested logout completes.
type LogoutResultMsg struct {
	Err error
}

// tickMsg redraws the session countdown. seq identifies the tick chain; only
// the chain started by the latest login keeps running.
type tickMsg struct {
	seq int
}

// viewState indicates the current screen.
type viewState int

const (
	viewLogin viewState = iota
	viewSession
)

const submitTimeout = 30 * time.Second

// AppModel is the root Bubbletea model for catalogauth.
type AppModel struct {
	view       viewState
	form       FormModel
	session    domain.Session
	submitting bool
	err        error
	width      int
	height     int
	tickSeq    int
	// Callbacks set by the caller.
	OnSubmit     func(ctx context.Context, req domain.CredentialRequest) (domain.Session, error)
	OnLogout     func(ctx context.Context) error
	Now          func() time.Time
	// TickInterval is how often the countdown redraws.
	TickInterval time.Duration
}

// NewAppModel creates the root model showing the login form prefilled from initial.
func NewAppModel(initial domain.CredentialRequest) AppModel {
	return AppModel{
		view: viewLogin,
		form:         NewFormModel(initial),
		Now:          time.Now,
		TickInterval: time.Second,
	}
}

// Init has nothing to load; the login form waits for input.
func (m AppModel) Init() tea.Cmd {
	return nil
}

func (m AppModel) submit(req domain.CredentialRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		sess, err := m.OnSubmit(ctx, req)
		return LoginResultMsg{Session: sess, Err: err}
	}
}

func (m AppModel) logout() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		return LogoutResultMsg{Err: m.OnLogout(ctx)}
	}
}

func tickEvery(d time.Duration, seq int) tea.Cmd {
	return tea.Tick(d, func(_ time.Time) tea.Msg {
		return tickMsg{seq: seq}
	})
}

// Form returns the login form model.
func (m AppModel) Form() FormModel {
	return m.form
}

// LoggedIn reports whether the session screen is shown.
func (m AppModel) LoggedIn() bool {
	return m.view == viewSession
}

// Update handles all incoming messages and key events.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case LoginResultMsg:
		m.submitting = false
		if msg.Err != nil {
			var vErr *domain.ValidationError
			if errors.As(msg.Err, &vErr) {
				m.form = m.form.WithErrors(vErr.Fields)
				m.err = nil
				return m, nil
			}
			m.err = msg.Err
			return m, nil
		}
		m.session = msg.Session
		m.view = viewSession
		m.err = nil
		m.tickSeq++
		return m, tickEvery(m.TickInterval, m.tickSeq)

	case SessionEventMsg:
		switch msg.Event.Type {
		case session.EventLoggedIn, session.EventRefreshed:
			m.session = msg.Event.Session
		case session.EventExpired:
			m.view = viewLogin
			m.session = domain.Session{}
			m.err = msg.Event.Err
		case session.EventLoggedOut:
			m.view = viewLogin
			m.session = domain.Session{}
		}

	case LogoutResultMsg:
		m.view = viewLogin
		m.session = domain.Session{}
		m.err = msg.Err

	case tickMsg:
		if m.view == viewSession && msg.seq == m.tickSeq {
			return m, tickEvery(m.TickInterval, m.tickSeq)
		}

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.view {
		case viewLogin:
			return m.updateLogin(msg)
		case viewSession:
			return m.updateSession(msg)
		}
	}
	return m, nil
}

func (m AppModel) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	switch msg.Type {
	case tea.KeyTab, tea.KeyDown:
		m.form = m.form.MoveDown()
	case tea.KeyShiftTab, tea.KeyUp:
		m.form = m.form.MoveUp()
	case tea.KeyBackspace:
		m.form = m.form.Backspace()
	case tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyEnter:
		if m.OnSubmit == nil {
			return m, nil
		}
		m.submitting = true
		m.err = nil
		return m, m.submit(m.form.Request())
	case tea.KeySpace:
		m.form = m.form.Insert(" ")
	case tea.KeyRunes:
		m.form = m.form.Insert(string(msg.Runes))
	}
	return m, nil
}

func (m AppModel) updateSession(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "l":
		if m.OnLogout != nil {
			return m, m.logout()
		}
	}
	return m, nil
}

// View renders the full TUI.
func (m AppModel) View() string {
	separator := "────────────────────────────────────────────────────────────\n"
	if m.view == viewSession {
		return m.renderSessionView(separator)
	}
	return m.renderLoginView(separator)
}

func (m AppModel) renderLoginView(separator string) string {
	header := " catalogauth | Sign in to the data catalog\n"
	body := m.form.View()

	status := ""
	switch {
	case m.submitting:
		status = " Signing in...\n"
	case m.err != nil:
		status = fmt.Sprintf(" Error: %v\n", m.err)
	}

	footer := " tab/↑/↓: move   enter: sign in   esc: quit\n"
	return header + separator + body + separator + status + footer
}

func (m AppModel) renderSessionView(separator string) string {
	header := fmt.Sprintf(" catalogauth | session %s\n", shortID(m.session.ID))
	remaining := m.session.Remaining(m.Now()).Truncate(time.Second)
	body := fmt.Sprintf(
		" Token type:  %s\n"+
			" Scope:       %s\n"+
			" Expires in:  %s\n"+
			" Refreshes:   %d\n",
		m.session.TokenType, m.session.Scope, remaining, m.session.Refreshes)
	footer := " l: logout   q: quit\n"
	return header + separator + body + separator + footer
}

// Run starts the Bubbletea program and blocks until the user quits or ctx is done.
// subscribe, when set, registers a listener that forwards session events to the program.
func Run(ctx context.Context, m AppModel, subscribe func(func(session.Event)) func()) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if subscribe != nil {
		unsubscribe := subscribe(func(ev session.Event) {
			p.Send(SessionEventMsg{Event: ev})
		})
		defer unsubscribe()
	}
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("running terminal UI: %w", err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
