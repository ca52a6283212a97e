package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sadopc/statusdash/internal/report"
	"github.com/sadopc/statusdash/internal/source"
)

type jsonExport struct {
	ExportedAt string            `json:"exported_at"`
	Date       string            `json:"date"`
	Grouping   string            `json:"grouping"`
	Status     map[string]string `json:"status"`
	Journal    *jsonJournal      `json:"journal,omitempty"`
	Sleep      *jsonSleep        `json:"sleep,omitempty"`
	TotalHours float64           `json:"total_hours"`
	Rows       []jsonRow         `json:"rows"`
}

type jsonJournal struct {
	Date string `json:"date"`
	Text string `json:"text"`
}

type jsonSleep struct {
	Day   string `json:"day"`
	Score int    `json:"score"`
}

type jsonRow struct {
	Category string  `json:"category"`
	Seconds  int64   `json:"seconds"`
	Hours    float64 `json:"hours"`
	Duration string  `json:"duration"`
}

func ToJSON(snap report.Snapshot, path string) error {
	export := jsonExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Date:       source.FormatDate(snap.Date),
		Grouping:   string(snap.Grouping),
		Status: map[string]string{
			"journal": snap.Journal.Status.String(),
			"sleep":   snap.Sleep.Status.String(),
			"time":    snap.Time.Status.String(),
		},
		Rows: []jsonRow{},
	}
	if snap.Journal.Status == report.StatusOK {
		export.Journal = &jsonJournal{Date: snap.Journal.Value.Date, Text: snap.Journal.Value.Text}
	}
	if snap.Sleep.Status == report.StatusOK {
		export.Sleep = &jsonSleep{Day: snap.Sleep.Value.Day, Score: snap.Sleep.Value.Score}
	}
	for _, r := range snap.Rows() {
		export.Rows = append(export.Rows, jsonRow{
			Category: r.Category,
			Seconds:  r.Seconds,
			Hours:    r.Hours,
			Duration: r.Label,
		})
	}
	export.TotalHours = report.TotalHours(snap.Rows())

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}

// DefaultPath is ~/statusdash-YYYY-MM-DD.<format>.
func DefaultPath(date time.Time, format string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, fmt.Sprintf("statusdash-%s.%s", source.FormatDate(date), format)), nil
}

// Write exports snap in format ("csv" or "json") to path.
func Write(snap report.Snapshot, format, path string) error {
	switch format {
	case "csv":
		return ToCSV(snap, path)
	case "json":
		return ToJSON(snap, path)
	}
	return fmt.Errorf("unknown export format %q", format)
}
