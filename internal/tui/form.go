package tui

import (
	"fmt"
	"strings"

	"github.com/waabox/catalogauth/internal/domain"
)

type formField struct {
	name   string
	label  string
	value  string
	secret bool
}

// FormModel is an immutable model for the credential login form.
type FormModel struct {
	fields []formField
	cursor int
	errors map[string]string
}

// NewFormModel creates a form prefilled from req.
func NewFormModel(req domain.CredentialRequest) FormModel {
	grant := string(req.GrantType)
	if grant == "" {
		grant = string(domain.GrantClientCredentials)
	}
	return FormModel{
		fields: []formField{
			{name: domain.FieldGrantType, label: "Grant type", value: grant},
			{name: domain.FieldClientID, label: "Client ID", value: req.ClientID},
			{name: domain.FieldClientSecret, label: "Client secret", value: req.ClientSecret, secret: true},
			{name: domain.FieldScope, label: "Scope", value: req.Scope},
		},
	}
}

// MoveDown returns a new model focused on the next field, wrapping around.
func (m FormModel) MoveDown() FormModel {
	m.cursor = (m.cursor + 1) % len(m.fields)
	return m
}

// MoveUp returns a new model focused on the previous field, wrapping around.
func (m FormModel) MoveUp() FormModel {
	m.cursor = (m.cursor - 1 + len(m.fields)) % len(m.fields)
	return m
}

// Cursor returns the focused field index.
func (m FormModel) Cursor() int {
	return m.cursor
}

// Focused returns the name of the focused field.
func (m FormModel) Focused() string {
	return m.fields[m.cursor].name
}

// Insert returns a new model with s appended to the focused field.
// The focused field's error is cleared.
func (m FormModel) Insert(s string) FormModel {
	m.fields = m.copyFields()
	m.fields[m.cursor].value += s
	m.errors = m.withoutError(m.fields[m.cursor].name)
	return m
}

// Backspace returns a new model with the last rune of the focused field removed.
func (m FormModel) Backspace() FormModel {
	m.fields = m.copyFields()
	r := []rune(m.fields[m.cursor].value)
	if len(r) > 0 {
		m.fields[m.cursor].value = string(r[:len(r)-1])
	}
	return m
}

// WithErrors returns a new model showing errs next to their fields.
func (m FormModel) WithErrors(errs []domain.FieldError) FormModel {
	m.errors = make(map[string]string, len(errs))
	for _, fe := range errs {
		m.errors[fe.Field] = fe.Message
	}
	return m
}

// Error returns the message shown for the named field.
func (m FormModel) Error(name string) string {
	return m.errors[name]
}

// Request builds the credential request from the current values.
func (m FormModel) Request() domain.CredentialRequest {
	values := make(map[string]string, len(m.fields))
	for _, f := range m.fields {
		values[f.name] = f.value
	}
	return domain.CredentialRequest{
		GrantType:    domain.GrantType(values[domain.FieldGrantType]),
		ClientID:     values[domain.FieldClientID],
		ClientSecret: values[domain.FieldClientSecret],
		Scope:        values[domain.FieldScope],
	}
}

// View renders the form with a cursor on the focused field.
func (m FormModel) View() string {
	var sb strings.Builder
	for i, f := range m.fields {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		value := f.value
		if f.secret {
			value = strings.Repeat("*", len([]rune(value)))
		}
		sb.WriteString(fmt.Sprintf("%s%-14s %s\n", prefix, f.label+":", value))
		if msg := m.errors[f.name]; msg != "" {
			sb.WriteString(fmt.Sprintf("  %-14s ! %s %s\n", "", f.name, msg))
		}
	}
	return sb.String()
}

func (m FormModel) copyFields() []formField {
	out := make([]formField, len(m.fields))
	copy(out, m.fields)
	return out
}

func (m FormModel) withoutError(name string) map[string]string {
	if len(m.errors) == 0 {
		return m.errors
	}
	out := make(map[string]string, len(m.errors))
	for k, v := range m.errors {
		if k != name {
			out[k] = v
		}
	}
	return out
}
