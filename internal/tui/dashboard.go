package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/statusdash/internal/report"
	"github.com/sadopc/statusdash/internal/source"
)

const journalHeight = 8

type dashboardModel struct {
	dash   *report.Dashboard
	width  int
	height int

	date     time.Time
	grouping source.Grouping

	snap      *report.Snapshot
	loading   bool
	fetchedAt time.Time

	journal viewport.Model
	gauge   progress.Model
	chart   timeChart

	// Go-to-date form
	formActive bool
	form       *huh.Form
	dateInput  *string
}

func newDashboardModel(dash *report.Dashboard, date time.Time, g source.Grouping) dashboardModel {
	in := ""
	return dashboardModel{
		dash:      dash,
		date:      source.Date(date),
		grouping:  g,
		journal:   viewport.New(60, journalHeight),
		gauge:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		chart:     newTimeChart(),
		dateInput: &in,
	}
}

func (d *dashboardModel) setSize(w, h int) {
	d.width = w
	d.height = h
	inner := max(20, w-10)
	d.journal.Width = inner
	d.gauge.Width = min(inner-10, 60)
	d.chart.setSize(w, h)
	d.renderJournal()
}

func (d dashboardModel) loadData() tea.Cmd {
	return d.load(false)
}

func (d dashboardModel) hardRefresh() tea.Cmd {
	return d.load(true)
}

func (d dashboardModel) load(invalidate bool) tea.Cmd {
	dash, date, g := d.dash, d.date, d.grouping
	return func() tea.Msg {
		if invalidate {
			dash.Invalidate(date, g)
		}
		snap := dash.Load(context.Background(), date, g)
		at, _ := dash.FetchedAt(date, g)
		return snapshotMsg{snap: snap, fetchedAt: at}
	}
}

func (d *dashboardModel) clear() {
	d.snap = nil
	d.fetchedAt = time.Time{}
	d.chart.setRows(nil, d.grouping)
	d.journal.SetContent("")
}

func (d dashboardModel) update(msg tea.Msg) (dashboardModel, tea.Cmd) {
	if d.formActive && d.form != nil {
		return d.updateForm(msg)
	}

	switch msg := msg.(type) {
	case snapshotMsg:
		// A slower response for a date or grouping that is no longer selected.
		if !msg.snap.Date.Equal(d.date) || msg.snap.Grouping != d.grouping {
			return d, nil
		}
		snap := msg.snap
		d.snap = &snap
		d.loading = false
		d.fetchedAt = msg.fetchedAt
		d.chart.setRows(snap.Rows(), snap.Grouping)
		d.renderJournal()
		return d, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.PrevDay):
			return d.setDate(d.date.AddDate(0, 0, -1))
		case key.Matches(msg, keys.NextDay):
			return d.setDate(d.date.AddDate(0, 0, 1))
		case key.Matches(msg, keys.GoTo):
			return d.showForm()
		case key.Matches(msg, keys.Group):
			d.grouping = d.grouping.Toggle()
			d.loading = true
			return d, d.loadData()
		case key.Matches(msg, keys.Reload):
			d.loading = true
			return d, d.loadData()
		case key.Matches(msg, keys.Refresh):
			d.loading = true
			return d, d.hardRefresh()
		case key.Matches(msg, keys.Up), key.Matches(msg, keys.Down):
			var cmd tea.Cmd
			d.journal, cmd = d.journal.Update(msg)
			return d, cmd
		}
	}
	return d, nil
}

func (d dashboardModel) setDate(date time.Time) (dashboardModel, tea.Cmd) {
	d.date = source.Date(date)
	d.loading = true
	return d, d.loadData()
}

// setGrouping applies a grouping chosen elsewhere, e.g. in settings.
func (d dashboardModel) setGrouping(g source.Grouping) (dashboardModel, tea.Cmd) {
	if g == d.grouping {
		return d, nil
	}
	d.grouping = g
	d.loading = true
	return d, d.loadData()
}

func (d dashboardModel) showForm() (dashboardModel, tea.Cmd) {
	*d.dateInput = source.FormatDate(d.date)
	d.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Go to date").
				Placeholder("YYYY-MM-DD").
				Validate(func(s string) error {
					_, err := source.ParseDate(s)
					return err
				}).
				Value(d.dateInput),
		),
	).WithShowHelp(true).WithShowErrors(true)

	d.formActive = true
	return d, d.form.Init()
}

func (d dashboardModel) updateForm(msg tea.Msg) (dashboardModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			d.formActive = false
			d.form = nil
			return d, nil
		}
	}

	form, cmd := d.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		d.form = f
	}

	if d.form.State == huh.StateCompleted {
		d.formActive = false
		d.form = nil
		date, err := source.ParseDate(*d.dateInput)
		if err != nil {
			return d, func() tea.Msg { return statusMsg{text: err.Error(), isError: true} }
		}
		return d.setDate(date)
	}

	return d, cmd
}

func (d *dashboardModel) renderJournal() {
	if d.snap == nil || d.snap.Journal.Status != report.StatusOK {
		d.journal.SetContent("")
		return
	}
	d.journal.SetContent(renderMarkdown(d.snap.Journal.Value.Text, d.journal.Width))
	d.journal.GotoTop()
}

func renderMarkdown(text string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(20, width-2)),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

func (d dashboardModel) view() string {
	if d.width < 20 {
		return "Terminal too small"
	}

	if d.formActive && d.form != nil {
		return activePanelStyle.Width(d.width - 4).Render(d.form.View())
	}

	contentWidth := d.width - 4
	return lipgloss.JoinVertical(lipgloss.Left,
		d.renderDateBar(),
		d.renderJournalPanel(contentWidth),
		d.renderSleepPanel(contentWidth),
		d.renderTimePanel(contentWidth),
	)
}

func (d dashboardModel) renderDateBar() string {
	date := dateStyle.Render(d.date.Format("Mon, 02 Jan 2006"))
	bar := fmt.Sprintf(" %s %s %s   %s",
		mutedStyle.Render("◀"), date, mutedStyle.Render("▶"),
		mutedStyle.Render("grouped by "+strings.ToLower(d.grouping.Label())),
	)
	if d.loading {
		bar += "  " + warningStyle.Render("loading…")
	}
	return bar
}

func (d dashboardModel) renderJournalPanel(w int) string {
	title := titleStyle.Render("Journal")
	if d.snap != nil {
		title += mutedStyle.Render("  " + source.FormatDate(d.snap.JournalDate))
	}
	if d.snap == nil {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, title, mutedStyle.Render("Loading…")))
	}
	sec := d.snap.Journal
	if sec.Status != report.StatusOK {
		return panelStyle.Width(w).Render(placeholder(title, "No journal data found :(", sec.Err))
	}
	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, title, d.journal.View()))
}

func (d dashboardModel) renderSleepPanel(w int) string {
	title := titleStyle.Render("Sleep")
	if d.snap == nil {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, title, mutedStyle.Render("Loading…")))
	}
	sec := d.snap.Sleep
	if sec.Status != report.StatusOK {
		return panelStyle.Width(w).Render(placeholder(title, "No sleep data found :(", sec.Err))
	}
	score := sec.Value.Score
	line := fmt.Sprintf("%s  %s", d.gauge.ViewAs(float64(score)/100), gaugeStyle.Render(fmt.Sprintf("%d/100", score)))
	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
		title+mutedStyle.Render("  "+sec.Value.Day), line))
}

func (d dashboardModel) renderTimePanel(w int) string {
	title := titleStyle.Render("Time tracking") + mutedStyle.Render("  by "+strings.ToLower(d.grouping.Label()))
	if d.snap == nil {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, title, mutedStyle.Render("Loading…")))
	}
	sec := d.snap.Time
	if sec.Status != report.StatusOK {
		return panelStyle.Width(w).Render(placeholder(title, "No time tracking data found :(", sec.Err))
	}
	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", d.chart.view()))
}

// placeholder renders the "no data" body. Failures also show the error.
func placeholder(title, text string, err error) string {
	rows := []string{title, subtitleStyle.Render(text)}
	if err != nil && !errors.Is(err, report.ErrUnauthorized) {
		rows = append(rows, mutedStyle.Render(truncate(err.Error(), 200)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
