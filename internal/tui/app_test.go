package tui_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/catalogauth/internal/domain"
	"github.com/waabox/catalogauth/internal/session"
	"github.com/waabox/catalogauth/internal/tui"
)

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m tui.AppModel, msg tea.Msg) (tui.AppModel, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(tui.AppModel), cmd
}

func loggedInSession() domain.Session {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return domain.Session{
		ID:          "0f3c9a12-aaaa-4bbb-8ccc-000000000000",
		AccessToken: "tok",
		TokenType:   "Bearer",
		Scope:       "c",
		IssuedAt:    now,
		ExpiresAt:   now.Add(3 * time.Second),
	}
}

func TestApp_TypingFillsFocusedField(t *testing.T) {
	m := tui.NewAppModel(domain.CredentialRequest{})

	m, _ = update(t, m, key(tea.KeyTab))
	m, _ = update(t, m, runes("a"))
	m, _ = update(t, m, key(tea.KeyTab))
	m, _ = update(t, m, runes("bx"))
	m, _ = update(t, m, key(tea.KeyBackspace))
	m, _ = update(t, m, key(tea.KeyTab))
	m, _ = update(t, m, runes("c"))
	m, _ = update(t, m, key(tea.KeySpace))
	m, _ = update(t, m, runes("d"))

	got := m.Form().Request()
	want := domain.CredentialRequest{GrantType: domain.GrantClientCredentials, ClientID: "a", ClientSecret: "b", Scope: "c d"}
	if got != want {
		t.Errorf("want %+v, got %+v", want, got)
	}
}

func TestApp_SecretIsMasked(t *testing.T) {
	m := tui.NewAppModel(domain.NewClientCredentials("a", "hunter2", "c"))
	view := m.View()
	if strings.Contains(view, "hunter2") {
		t.Errorf("expected secret to be masked, got:\n%s", view)
	}
	if !strings.Contains(view, "*******") {
		t.Errorf("expected mask characters, got:\n%s", view)
	}
}

func TestApp_EnterSubmitsFormValues(t *testing.T) {
	var submitted domain.CredentialRequest
	m := tui.NewAppModel(domain.NewClientCredentials("a", "b", "c"))
	m.OnSubmit = func(_ context.Context, req domain.CredentialRequest) (domain.Session, error) {
		submitted = req
		return loggedInSession(), nil
	}

	m, cmd := update(t, m, key(tea.KeyEnter))
	if cmd == nil {
		t.Fatal("expected a submit command")
	}
	if !strings.Contains(m.View(), "Signing in") {
		t.Errorf("expected submitting status, got:\n%s", m.View())
	}

	msg := cmd()
	if submitted != domain.NewClientCredentials("a", "b", "c") {
		t.Errorf("unexpected submitted request: %+v", submitted)
	}
	m, _ = update(t, m, msg)
	if !m.LoggedIn() {
		t.Fatal("expected session screen after successful login")
	}
}

func TestApp_ValidationErrorsShownPerField(t *testing.T) {
	m := tui.NewAppModel(domain.NewClientCredentials("", "b", ""))
	m, _ = update(t, m, tui.LoginResultMsg{Err: &domain.ValidationError{Fields: []domain.FieldError{
		{Field: domain.FieldClientID, Message: "is required"},
		{Field: domain.FieldScope, Message: "is required"},
	}}})

	if m.LoggedIn() {
		t.Fatal("expected to stay on login form")
	}
	if m.Form().Error(domain.FieldClientID) != "is required" || m.Form().Error(domain.FieldScope) != "is required" {
		t.Errorf("expected field errors, got client_id=%q scope=%q",
			m.Form().Error(domain.FieldClientID), m.Form().Error(domain.FieldScope))
	}
	view := m.View()
	if !strings.Contains(view, "client_id is required") {
		t.Errorf("expected client_id error in view, got:\n%s", view)
	}

	m, _ = update(t, m, key(tea.KeyTab))
	m, _ = update(t, m, runes("a"))
	if m.Form().Error(domain.FieldClientID) != "" {
		t.Error("expected typing to clear the field's error")
	}
}

func TestApp_AuthErrorShownOnForm(t *testing.T) {
	m := tui.NewAppModel(domain.NewClientCredentials("a", "b", "c"))
	m, _ = update(t, m, tui.LoginResultMsg{Err: &domain.AuthError{Kind: domain.AuthInvalidCredentials, StatusCode: 401}})

	if m.LoggedIn() {
		t.Fatal("expected to stay on login form")
	}
	if !strings.Contains(m.View(), "invalid_credentials") {
		t.Errorf("expected auth error in view, got:\n%s", m.View())
	}
}

func TestApp_SessionViewShowsCountdown(t *testing.T) {
	sess := loggedInSession()
	m := tui.NewAppModel(domain.CredentialRequest{})
	m.Now = func() time.Time { return sess.IssuedAt.Add(time.Second) }

	m, cmd := update(t, m, tui.LoginResultMsg{Session: sess})
	if cmd == nil {
		t.Error("expected countdown tick to start")
	}
	view := m.View()
	if !strings.Contains(view, "Expires in:  2s") {
		t.Errorf("expected remaining time in view, got:\n%s", view)
	}
	if !strings.Contains(view, "session 0f3c9a12") {
		t.Errorf("expected short session ID in header, got:\n%s", view)
	}
}

func TestApp_ReloginKeepsASingleTickChain(t *testing.T) {
	m := tui.NewAppModel(domain.CredentialRequest{})
	m.TickInterval = time.Millisecond
	m.OnLogout = func(context.Context) error { return nil }

	m, first := update(t, m, tui.LoginResultMsg{Session: loggedInSession()})
	m, _ = update(t, m, tui.LogoutResultMsg{})
	m, second := update(t, m, tui.LoginResultMsg{Session: loggedInSession()})
	if first == nil || second == nil {
		t.Fatal("expected each login to start a countdown tick")
	}

	if _, cmd := update(t, m, first()); cmd != nil {
		t.Error("expected the tick from the earlier login to stop")
	}
	if _, cmd := update(t, m, second()); cmd == nil {
		t.Error("expected the current login's tick to continue")
	}
}

func TestApp_RefreshedEventUpdatesSession(t *testing.T) {
	m := tui.NewAppModel(domain.CredentialRequest{})
	m, _ = update(t, m, tui.LoginResultMsg{Session: loggedInSession()})

	refreshed := loggedInSession()
	refreshed.Refreshes = 1
	m, _ = update(t, m, tui.SessionEventMsg{Event: session.Event{Type: session.EventRefreshed, Session: refreshed}})

	if !strings.Contains(m.View(), "Refreshes:   1") {
		t.Errorf("expected refresh count in view, got:\n%s", m.View())
	}
}

func TestApp_ExpiredEventReturnsToLogin(t *testing.T) {
	m := tui.NewAppModel(domain.NewClientCredentials("a", "b", "c"))
	m, _ = update(t, m, tui.LoginResultMsg{Session: loggedInSession()})

	schedErr := &domain.SchedulerError{SessionID: "s1", Err: errors.New("endpoint down")}
	m, _ = update(t, m, tui.SessionEventMsg{Event: session.Event{Type: session.EventExpired, Err: schedErr}})

	if m.LoggedIn() {
		t.Fatal("expected login form after expiry")
	}
	if !strings.Contains(m.View(), "re-authentication required") {
		t.Errorf("expected expiry reason in view, got:\n%s", m.View())
	}
}

func TestApp_LogoutKeyCallsLogout(t *testing.T) {
	called := false
	m := tui.NewAppModel(domain.CredentialRequest{})
	m.OnLogout = func(context.Context) error {
		called = true
		return nil
	}
	m, _ = update(t, m, tui.LoginResultMsg{Session: loggedInSession()})

	m, cmd := update(t, m, runes("l"))
	if cmd == nil {
		t.Fatal("expected logout command")
	}
	m, _ = update(t, m, cmd())
	if !called {
		t.Error("expected OnLogout to be called")
	}
	if m.LoggedIn() {
		t.Error("expected login form after logout")
	}
}

func TestApp_IgnoresUnknownAndQuitsOnCtrlC(t *testing.T) {
	m := tui.NewAppModel(domain.CredentialRequest{})
	if _, cmd := m.Update(tea.Msg(struct{}{})); cmd != nil {
		t.Error("expected unknown messages to be ignored")
	}
	if _, cmd := update(t, m, key(tea.KeyCtrlC)); cmd == nil {
		t.Error("expected ctrl+c to quit")
	}
}
