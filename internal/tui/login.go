package tui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/statusdash/internal/auth"
)

// Gate is the part of the identity gate the TUI drives.
type Gate interface {
	LoginURL() string
	Authorized() bool
	State() auth.State
	Identity() auth.Identity
	Logout()
}

// accountModel shows the login prompt, or who is logged in.
type accountModel struct {
	gate   Gate
	width  int
	height int

	loginURL string
	note     string
}

func newAccountModel(g Gate) accountModel {
	return accountModel{gate: g, loginURL: g.LoginURL()}
}

func (m *accountModel) setSize(w, h int) {
	m.width = w
	m.height = h
}

// newLink issues a fresh login URL, invalidating the previous state.
func (m *accountModel) newLink() {
	m.loginURL = m.gate.LoginURL()
}

func (m *accountModel) handleResult(r auth.Result) {
	switch {
	case r.Err == nil:
		m.note = ""
	case errors.Is(r.Err, auth.ErrDenied):
		m.note = fmt.Sprintf("Account %s is not allowed to view this dashboard. Log in with a different account.", r.Identity.ID)
		m.newLink()
	case errors.Is(r.Err, auth.ErrStateMismatch):
		m.note = "That login link has expired. Use the link below."
	default:
		m.note = "Login failed: " + r.Err.Error()
		m.newLink()
	}
}

func (m *accountModel) loggedOut() {
	m.note = "Logged out."
	m.newLink()
}

func (m accountModel) view() string {
	w := m.width - 4
	title := titleStyle.Render("Account")

	if m.gate.Authorized() {
		id := m.gate.Identity()
		rows := []string{
			title,
			"",
			fmt.Sprintf("Logged in as %s %s", highlightStyle.Render(id.Username), mutedStyle.Render("("+id.ID+")")),
			"",
			mutedStyle.Render("Press L to log out."),
		}
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	rows := []string{title, ""}
	if m.note != "" {
		rows = append(rows, warningStyle.Render(m.note), "")
	}
	rows = append(rows,
		"Open this link in your browser to log in:",
		"",
		accentStyle.Render(m.loginURL),
		"",
		mutedStyle.Render("Waiting for the login callback…  o: new link  q: quit"),
	)
	return activePanelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
