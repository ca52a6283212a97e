package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/sadopc/statusdash/internal/report"
	"github.com/sadopc/statusdash/internal/source"
)

func ToCSV(snap report.Snapshot, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	// Header
	if err := w.Write([]string{"Section", "Category", "Hours", "Duration", "Detail"}); err != nil {
		return err
	}

	rows := snap.Rows()
	for _, r := range rows {
		row := []string{
			"time",
			r.Category,
			strconv.FormatFloat(r.Hours, 'f', 2, 64),
			r.Label,
			string(snap.Grouping),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	if len(rows) > 0 {
		total := report.TotalHours(rows)
		if err := w.Write([]string{"time", "total", strconv.FormatFloat(total, 'f', 2, 64), report.FormatHours(total), string(snap.Grouping)}); err != nil {
			return err
		}
	}

	sleep := []string{"sleep", source.FormatDate(snap.SleepRange.Start), "", "", snap.Sleep.Status.String()}
	if snap.Sleep.Status == report.StatusOK {
		sleep[1] = snap.Sleep.Value.Day
		sleep[4] = fmt.Sprintf("%d/100", snap.Sleep.Value.Score)
	}
	if err := w.Write(sleep); err != nil {
		return err
	}

	journal := []string{"journal", source.FormatDate(snap.JournalDate), "", "", snap.Journal.Status.String()}
	if snap.Journal.Status == report.StatusOK {
		journal[4] = snap.Journal.Value.Text
	}
	if err := w.Write(journal); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}
