package tui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/statusdash/internal/source"
	"github.com/sadopc/statusdash/internal/store"
)

type settingsModel struct {
	store  *store.Store
	width  int
	height int

	settings   []store.Setting
	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	grouping *string
	cacheTTL *string
}

func newSettingsModel(s *store.Store) settingsModel {
	g, ttl := "", ""
	return settingsModel{
		store:    s,
		grouping: &g,
		cacheTTL: &ttl,
	}
}

func (s *settingsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type settingsDataMsg struct {
	settings []store.Setting
}

func (s settingsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		settings, _ := s.store.GetAllSettings()
		return settingsDataMsg{settings: settings}
	}
}

func (s settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	switch msg := msg.(type) {
	case settingsDataMsg:
		s.settings = msg.settings
		return s, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Enter) {
			return s.showForm()
		}
	}
	return s, nil
}

func (s settingsModel) showForm() (settingsModel, tea.Cmd) {
	// Load current values
	*s.grouping = s.getVal(store.SettingGrouping, string(source.GroupProjects))
	*s.cacheTTL = secsToMin(s.getVal(store.SettingCacheTTL, "3600"))

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().Title("Group time by").
				Options(
					huh.NewOption("Projects", string(source.GroupProjects)),
					huh.NewOption("Clients", string(source.GroupClients)),
				).Value(s.grouping),
			huh.NewInput().Title("Cache TTL (min)").
				Validate(validateMinutes).
				Value(s.cacheTTL),
		).Title("Dashboard"),
	).WithShowHelp(true).WithShowErrors(true)

	s.formActive = true
	return s, s.form.Init()
}

func (s settingsModel) updateForm(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			s.formActive = false
			s.form = nil
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	if s.form.State == huh.StateCompleted {
		s.formActive = false
		return s, s.saveSettings()
	}

	return s, cmd
}

func (s settingsModel) saveSettings() tea.Cmd {
	g, err := source.ParseGrouping(*s.grouping)
	if err != nil {
		g = source.GroupProjects
	}
	mins, _ := strconv.Atoi(*s.cacheTTL)
	ttl := time.Duration(mins) * time.Minute

	return func() tea.Msg {
		if err := s.store.SetSetting(store.SettingGrouping, string(g)); err != nil {
			return statusMsg{text: fmt.Sprintf("Settings error: %v", err), isError: true}
		}
		if err := s.store.SetCacheTTL(ttl); err != nil {
			return statusMsg{text: fmt.Sprintf("Settings error: %v", err), isError: true}
		}
		return settingsSavedMsg{grouping: g, ttl: ttl}
	}
}

func (s settingsModel) getVal(k, fallback string) string {
	v, err := s.store.GetSetting(k)
	if err != nil {
		return fallback
	}
	return v
}

func (s settingsModel) view() string {
	w := s.width - 4

	if s.formActive && s.form != nil {
		title := titleStyle.Render("Settings")
		formView := s.form.View()
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", formView),
		)
	}

	title := titleStyle.Render("Settings")
	hint := mutedStyle.Render("Press enter to edit settings")

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")

	for _, setting := range s.settings {
		label := lipgloss.NewStyle().Width(24).Render(setting.Key)
		value := highlightStyle.Render(formatSettingValue(setting.Key, setting.Value))
		rows = append(rows, fmt.Sprintf("  %s %s", label, value))
	}

	rows = append(rows, "")
	rows = append(rows, hint)

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func formatSettingValue(k, v string) string {
	switch k {
	case store.SettingCacheTTL:
		if secs, err := strconv.Atoi(v); err == nil {
			return fmt.Sprintf("%d min", secs/60)
		}
	case store.SettingGrouping:
		if g, err := source.ParseGrouping(v); err == nil {
			return g.Label() + "s"
		}
	}
	return v
}

func validateMinutes(s string) error {
	mins, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("enter a whole number of minutes")
	}
	if mins < 1 || mins > 24*60 {
		return fmt.Errorf("must be between 1 and 1440")
	}
	return nil
}

func secsToMin(s string) string {
	if secs, err := strconv.Atoi(s); err == nil {
		return strconv.Itoa(secs / 60)
	}
	return s
}
