package tui

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sadopc/statusdash/internal/auth"
	"github.com/sadopc/statusdash/internal/report"
	"github.com/sadopc/statusdash/internal/source"
)

// viewState represents the currently active view.
type viewState int

const (
	viewDashboard viewState = iota
	viewAccount
	viewSettings
)

var viewNames = []string{"Dashboard", "Account", "Settings"}

// --- Messages ---

type snapshotMsg struct {
	snap      report.Snapshot
	fetchedAt time.Time
}

type authResultMsg struct {
	result auth.Result
}

type loggedOutMsg struct{}

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

type exportDoneMsg struct {
	path string
}

type settingsSavedMsg struct {
	grouping source.Grouping
	ttl      time.Duration
}

// --- Helpers ---

// fetchedAgo renders "fetched 5 minutes ago" style labels.
func fetchedAgo(at, now time.Time) string {
	if at.IsZero() {
		return "not fetched"
	}
	if now.Sub(at) < time.Second {
		return "fetched just now"
	}
	return "fetched " + humanize.RelTime(at, now, "ago", "from now")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
