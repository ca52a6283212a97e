package source

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format every upstream speaks.
const DateLayout = "2006-01-02"

var ErrInvalidRange = errors.New("invalid date range")

// Date truncates t to its calendar day in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// PreviousDay is the only date the pipeline derives on its own.
func PreviousDay(t time.Time) time.Time {
	return Date(t).AddDate(0, 0, -1)
}

// DateRange is an inclusive range of calendar days. Start <= End always holds.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func NewDateRange(start, end time.Time) (DateRange, error) {
	start, end = Date(start), Date(end)
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("%w: %s after %s", ErrInvalidRange, FormatDate(start), FormatDate(end))
	}
	return DateRange{Start: start, End: end}, nil
}

// SingleDay returns the range covering just t.
func SingleDay(t time.Time) DateRange {
	d := Date(t)
	return DateRange{Start: d, End: d}
}

func (r DateRange) String() string {
	return FormatDate(r.Start) + ".." + FormatDate(r.End)
}

// Grouping is the dimension time entries are aggregated by.
type Grouping string

const (
	GroupProjects Grouping = "projects"
	GroupClients  Grouping = "clients"
)

func ParseGrouping(s string) (Grouping, error) {
	switch Grouping(strings.ToLower(strings.TrimSpace(s))) {
	case GroupProjects, "project":
		return GroupProjects, nil
	case GroupClients, "client":
		return GroupClients, nil
	}
	return "", fmt.Errorf("unknown grouping %q", s)
}

// Toggle flips between projects and clients.
func (g Grouping) Toggle() Grouping {
	if g == GroupClients {
		return GroupProjects
	}
	return GroupClients
}

// Label is the singular display name.
func (g Grouping) Label() string {
	if g == GroupClients {
		return "Client"
	}
	return "Project"
}

// JournalRecord is a read-only snapshot of one journal row.
type JournalRecord struct {
	Date string `json:"date"`
	Text string `json:"text"`
}

// SleepRecord is one day of sleep data.
type SleepRecord struct {
	Day   string `json:"day"`
	Score int    `json:"score"`
}

// SubGroup is one titled time entry bucket inside a TimeEntryGroup.
type SubGroup struct {
	Title   string `json:"title"`
	Seconds int64  `json:"seconds"`
}

// TimeEntryGroup is one project or client bucket from the summary report. A nil
// ID means no project (or client) was assigned.
type TimeEntryGroup struct {
	Kind      Grouping   `json:"kind"`
	ID        *int64     `json:"id"`
	Name      *string    `json:"name,omitempty"`
	SubGroups []SubGroup `json:"sub_groups"`
}

// NamedRef maps a project or client id to its readable name.
type NamedRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
