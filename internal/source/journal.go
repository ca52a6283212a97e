package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const ServiceJournal = "airtable"

type JournalConfig struct {
	BaseURL string
	APIKey  string
	BaseID  string
	Table   string
	View    string
}

// JournalClient reads daily journal rows from an Airtable table.
type JournalClient struct {
	cfg  JournalConfig
	http *http.Client
}

func NewJournalClient(cfg JournalConfig, httpClient *http.Client) *JournalClient {
	return &JournalClient{cfg: cfg, http: httpClient}
}

type airtableList struct {
	Records []struct {
		ID     string `json:"id"`
		Fields struct {
			Date    string `json:"Date"`
			Journal string `json:"Journal"`
		} `json:"fields"`
	} `json:"records"`
}

// Day returns the journal row for date, filtered server side by exact date.
// It returns nil when the table has no matching row.
func (c *JournalClient) Day(ctx context.Context, date time.Time) (*JournalRecord, error) {
	q := url.Values{}
	q.Set("maxRecords", "1")
	if c.cfg.View != "" {
		q.Set("view", c.cfg.View)
	}
	q.Set("filterByFormula", fmt.Sprintf(`DATESTR(Date) = "%s"`, FormatDate(date)))

	endpoint := joinURL(c.cfg.BaseURL, "/v0/"+url.PathEscape(c.cfg.BaseID)+"/"+url.PathEscape(c.cfg.Table)) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build journal request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	var list airtableList
	if err := do(c.http, ServiceJournal, req, &list); err != nil {
		return nil, err
	}
	if len(list.Records) == 0 {
		return nil, nil
	}
	f := list.Records[0].Fields
	return &JournalRecord{Date: f.Date, Text: f.Journal}, nil
}
