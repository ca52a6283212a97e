// Package report turns raw upstream payloads into display-ready rows and
// scalars, and runs one dashboard pass over the cached sources.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sadopc/statusdash/internal/source"
)

// DefaultUnresolved labels time that has no (or an unknown) project/client.
const DefaultUnresolved = "none"

// TimeRow is one category slice of the time breakdown.
type TimeRow struct {
	Category string  `json:"category"`
	Seconds  int64   `json:"seconds"`
	Hours    float64 `json:"hours"`
	Label    string  `json:"label"`
}

type NormalizeOptions struct {
	// Unresolved is the label for nil or unknown ids. Empty means DefaultUnresolved.
	Unresolved string
}

// NormalizeTime flattens groups into one row per category, summing repeated
// categories. Ids are resolved against names; an unknown id is labeled, never
// an error. Rows are ordered by hours, largest first.
func NormalizeTime(groups []source.TimeEntryGroup, names []source.NamedRef, opts NormalizeOptions) []TimeRow {
	unresolved := opts.Unresolved
	if unresolved == "" {
		unresolved = DefaultUnresolved
	}

	lookup := make(map[int64]string, len(names))
	for _, n := range names {
		lookup[n.ID] = n.Name
	}

	totals := make(map[string]int64)
	var order []string
	for _, g := range groups {
		category := resolveName(g, lookup, unresolved)
		for _, sub := range g.SubGroups {
			secs := sub.Seconds
			if secs < 0 {
				secs = 0
			}
			if _, seen := totals[category]; !seen {
				order = append(order, category)
			}
			totals[category] += secs
		}
	}

	rows := make([]TimeRow, 0, len(order))
	for _, category := range order {
		secs := totals[category]
		hours := float64(secs) / 3600
		rows = append(rows, TimeRow{
			Category: category,
			Seconds:  secs,
			Hours:    hours,
			Label:    FormatHours(hours),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Hours != rows[j].Hours {
			return rows[i].Hours > rows[j].Hours
		}
		return rows[i].Category < rows[j].Category
	})
	return rows
}

func resolveName(g source.TimeEntryGroup, lookup map[int64]string, unresolved string) string {
	if g.Name != nil && strings.TrimSpace(*g.Name) != "" {
		return *g.Name
	}
	if g.ID == nil {
		return unresolved
	}
	if name, ok := lookup[*g.ID]; ok && strings.TrimSpace(name) != "" {
		return name
	}
	return unresolved
}

// TotalHours sums the hours of rows.
func TotalHours(rows []TimeRow) float64 {
	var secs int64
	for _, r := range rows {
		secs += r.Seconds
	}
	return float64(secs) / 3600
}

// FormatHours renders hours as "{h}h {m}min" by floor and remainder.
func FormatHours(hours float64) string {
	if hours < 0 || math.IsNaN(hours) {
		hours = 0
	}
	whole := math.Floor(hours)
	// The epsilon absorbs float error such as 0.25*60 = 14.999...
	mins := math.Floor((hours-whole)*60 + 1e-9)
	if mins >= 60 {
		whole++
		mins -= 60
	}
	return fmt.Sprintf("%dh %dmin", int64(whole), int64(mins))
}

// Journal is a journal entry ready for display.
type Journal struct {
	Date string `json:"date"`
	Text string `json:"text"`
}

var markdownUnescaper = strings.NewReplacer(`\*`, `*`, `\_`, `_`)

// UnescapeMarkdown turns literal backslash-escaped emphasis markers back into
// markdown.
func UnescapeMarkdown(s string) string {
	return markdownUnescaper.Replace(s)
}

// JournalFor accepts rec only when it carries the requested date.
func JournalFor(rec *source.JournalRecord, date time.Time) (Journal, bool) {
	if rec == nil {
		return Journal{}, false
	}
	raw := strings.TrimSpace(rec.Date)
	if len(raw) > len(source.DateLayout) {
		raw = raw[:len(source.DateLayout)]
	}
	recDate, err := source.ParseDate(raw)
	if err != nil || !recDate.Equal(source.Date(date)) {
		return Journal{}, false
	}
	return Journal{Date: source.FormatDate(recDate), Text: UnescapeMarkdown(rec.Text)}, true
}

// Sleep is a sleep score ready for display.
type Sleep struct {
	Day   string `json:"day"`
	Score int    `json:"score"`
}

// FirstSleep picks the first record, clamping its score into [0,100].
func FirstSleep(recs []source.SleepRecord) (Sleep, bool) {
	if len(recs) == 0 {
		return Sleep{}, false
	}
	score := recs[0].Score
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return Sleep{Day: recs[0].Day, Score: score}, true
}
