package tui

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/statusdash/internal/auth"
	"github.com/sadopc/statusdash/internal/export"
	"github.com/sadopc/statusdash/internal/report"
	"github.com/sadopc/statusdash/internal/source"
	"github.com/sadopc/statusdash/internal/store"
)

type Options struct {
	Dashboard *report.Dashboard
	Gate      Gate
	// AuthResults delivers login callbacks, usually from auth.CallbackServer.
	AuthResults <-chan auth.Result
	Store       *store.Store
	// Date is the initially selected day. Zero means today.
	Date     time.Time
	Grouping source.Grouping
	Now      func() time.Time
}

// App is the root Bubble Tea model.
type App struct {
	dash        *report.Dashboard
	gate        Gate
	authResults <-chan auth.Result
	now         func() time.Time
	width       int
	height      int

	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int

	dashboard dashboardModel
	account   accountModel
	settings  settingsModel

	help   help.Model
	status string
}

func NewApp(opts Options) App {
	h := help.New()
	h.ShowAll = false

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	date := opts.Date
	if date.IsZero() {
		date = now()
	}
	g := opts.Grouping
	if g == "" {
		g = source.GroupProjects
	}

	active := viewDashboard
	if !opts.Gate.Authorized() {
		active = viewAccount
	}

	return App{
		dash:        opts.Dashboard,
		gate:        opts.Gate,
		authResults: opts.AuthResults,
		now:         now,
		activeView:  active,
		dashboard:   newDashboardModel(opts.Dashboard, date, g),
		account:     newAccountModel(opts.Gate),
		settings:    newSettingsModel(opts.Store),
		help:        h,
	}
}

func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(), a.settings.refresh(), a.waitForAuth()}
	if a.gate.Authorized() {
		cmds = append(cmds, a.dashboard.loadData())
	}
	return tea.Batch(cmds...)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a App) waitForAuth() tea.Cmd {
	ch := a.authResults
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return nil
		}
		return authResultMsg{result: r}
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.dashboard.setSize(a.width, contentHeight)
		a.account.setSize(a.width, contentHeight)
		a.settings.setSize(a.width, contentHeight)
		return a, nil

	case tea.KeyMsg:
		// Export picker
		if a.exportPicking {
			return a.updateExportPicker(msg)
		}

		// If a child view is capturing input (e.g. form), delegate first.
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		}

		// Nothing but the login prompt is reachable before authentication.
		if !a.gate.Authorized() {
			a.activeView = viewAccount
			if key.Matches(msg, keys.Login) {
				a.account.newLink()
				a.status = "New login link issued"
			}
			return a, nil
		}

		switch {
		case key.Matches(msg, keys.Export):
			if a.dashboard.snap == nil {
				a.status = "Nothing to export yet"
				return a, nil
			}
			a.exportPicking = true
			a.exportCursor = 0
			return a, nil
		case key.Matches(msg, keys.Logout):
			cmd := a.logout()
			return a, cmd
		case key.Matches(msg, keys.Tab1):
			a.activeView = viewDashboard
			return a, nil
		case key.Matches(msg, keys.Tab2):
			a.activeView = viewAccount
			return a, nil
		case key.Matches(msg, keys.Tab3):
			a.activeView = viewSettings
			return a, a.settings.refresh()
		case key.Matches(msg, keys.Tab):
			a.activeView = (a.activeView + 1) % viewState(len(viewNames))
			return a, a.refreshCurrentView()
		}

	case tickMsg:
		return a, tickCmd()

	case authResultMsg:
		return a.handleAuth(msg.result)

	case loggedOutMsg:
		a.status = "Logged out"
		return a, nil

	case snapshotMsg:
		// Responses that land after a logout are dropped.
		if !a.gate.Authorized() {
			return a, nil
		}
		var cmd tea.Cmd
		a.dashboard, cmd = a.dashboard.update(msg)
		return a, cmd

	case settingsSavedMsg:
		a.dash.SetTTL(msg.ttl)
		a.status = "Settings saved"
		// The list reloads only once the write has landed.
		var cmd tea.Cmd
		a.dashboard, cmd = a.dashboard.setGrouping(msg.grouping)
		return a, tea.Batch(cmd, a.settings.refresh())

	case settingsDataMsg:
		var cmd tea.Cmd
		a.settings, cmd = a.settings.update(msg)
		return a, cmd

	case statusMsg:
		a.status = msg.text
		return a, nil

	case exportDoneMsg:
		a.status = "Exported to " + msg.path
		a.exportPicking = false
		return a, nil
	}

	return a.updateActiveView(msg)
}

func (a App) handleAuth(r auth.Result) (tea.Model, tea.Cmd) {
	a.account.handleResult(r)
	next := a.waitForAuth()

	switch {
	case r.Err == nil && a.gate.Authorized():
		a.status = "Logged in as " + r.Identity.Username
		a.activeView = viewDashboard
		a.dashboard.loading = true
		return a, tea.Batch(next, a.dashboard.loadData())
	case errors.Is(r.Err, auth.ErrDenied):
		a.status = "Access denied"
	case r.Err != nil:
		a.status = "Login failed"
	}
	a.activeView = viewAccount
	return a, next
}

func (a *App) logout() tea.Cmd {
	a.gate.Logout()
	a.dashboard.clear()
	a.account.loggedOut()
	a.activeView = viewAccount
	a.exportPicking = false
	return func() tea.Msg { return loggedOutMsg{} }
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewDashboard:
		a.dashboard, cmd = a.dashboard.update(msg)
	case viewSettings:
		a.settings, cmd = a.settings.update(msg)
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	switch a.activeView {
	case viewDashboard:
		return a.dashboard.formActive
	case viewSettings:
		return a.settings.formActive
	}
	return false
}

func (a App) refreshCurrentView() tea.Cmd {
	switch a.activeView {
	case viewSettings:
		return a.settings.refresh()
	}
	return nil
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch {
	case !a.gate.Authorized():
		content = a.account.view()
	case a.activeView == viewDashboard:
		content = a.dashboard.view()
	case a.activeView == viewAccount:
		content = a.account.view()
	case a.activeView == viewSettings:
		content = a.settings.view()
	}

	// Calculate available height for content
	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := a.height - headerHeight - footerHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	// Show export picker overlay
	if a.exportPicking {
		content = a.renderExportPicker()
	}

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		MaxHeight(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	var tabs []string
	for i, name := range viewNames {
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}

	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("statusdash")
	gap := a.width - lipgloss.Width(title) - lipgloss.Width(tabRow) - 4
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, title, spacer, tabRow),
	)
}

func (a App) renderFooter() string {
	helpView := a.help.View(keys)

	status := ""
	if a.status != "" {
		status = mutedStyle.Render(" " + a.status)
	}

	cacheInfo := ""
	if a.gate.Authorized() && a.dash != nil {
		st := a.dash.Cache().Stats()
		cacheInfo = mutedStyle.Render(fmt.Sprintf(" cache %d hit · %d miss", st.Hits, st.Misses))
		if a.dashboard.snap != nil {
			cacheInfo += mutedStyle.Render(" · " + fetchedAgo(a.dashboard.fetchedAt, a.now()))
		}
	}

	left := footerStyle.Render(helpView)
	right := cacheInfo + status

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, right)
}

var exportFormats = []string{"csv", "json"}

func (a App) renderExportPicker() string {
	title := titleStyle.Render("Export Format")
	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")
	for i, f := range exportFormats {
		cursor := "  "
		style := normalItemStyle
		if i == a.exportCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+f))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  enter: export  esc: cancel"))

	w := a.width - 4
	return activePanelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.exportCursor > 0 {
			a.exportCursor--
		}
	case key.Matches(msg, keys.Down):
		if a.exportCursor < len(exportFormats)-1 {
			a.exportCursor++
		}
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		return a, a.doExport(exportFormats[a.exportCursor])
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

func (a App) doExport(format string) tea.Cmd {
	if a.dashboard.snap == nil {
		return nil
	}
	snap := *a.dashboard.snap
	return func() tea.Msg {
		path, err := export.DefaultPath(snap.Date, format)
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Export error: %v", err), isError: true}
		}
		if err := export.Write(snap, format, path); err != nil {
			return statusMsg{text: fmt.Sprintf("Export error: %v", err), isError: true}
		}
		return exportDoneMsg{path: path}
	}
}
