package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

const ServiceTime = "toggl"

type TimeConfig struct {
	BaseURL string
	APIKey  string
}

// TimeClient talks to the Toggl Track v9 API and the Reports v3 API.
type TimeClient struct {
	cfg  TimeConfig
	http *http.Client
}

func NewTimeClient(cfg TimeConfig, httpClient *http.Client) *TimeClient {
	return &TimeClient{cfg: cfg, http: httpClient}
}

func (c *TimeClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, joinURL(c.cfg.BaseURL, path), payload)
	if err != nil {
		return nil, fmt.Errorf("build toggl request: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIKey, "api_token")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Workspace returns the account's default workspace id.
func (c *TimeClient) Workspace(ctx context.Context) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v9/me", nil)
	if err != nil {
		return 0, err
	}
	var me struct {
		DefaultWorkspaceID int64 `json:"default_workspace_id"`
	}
	if err := do(c.http, ServiceTime, req, &me); err != nil {
		return 0, err
	}
	if me.DefaultWorkspaceID == 0 {
		return 0, &FetchError{Service: ServiceTime, StatusCode: http.StatusOK, Err: fmt.Errorf("response has no default_workspace_id")}
	}
	return me.DefaultWorkspaceID, nil
}

type summaryAudit struct {
	ShowEmptyGroups   bool           `json:"show_empty_groups"`
	ShowTrackedGroups bool           `json:"show_tracked_groups"`
	GroupFilter       map[string]any `json:"group_filter"`
}

type summaryRequest struct {
	Collapse            bool         `json:"collapse"`
	Grouping            string       `json:"grouping"`
	SubGrouping         string       `json:"sub_grouping"`
	StartDate           string       `json:"start_date"`
	EndDate             string       `json:"end_date"`
	Audit               summaryAudit `json:"audit"`
	IncludeTimeEntryIDs bool         `json:"include_time_entry_ids"`
}

type summaryResponse struct {
	Groups []struct {
		ID        *int64     `json:"id"`
		SubGroups []SubGroup `json:"sub_groups"`
	} `json:"groups"`
}

// Summary returns the time entries in r grouped by g.
func (c *TimeClient) Summary(ctx context.Context, workspaceID int64, r DateRange, g Grouping) ([]TimeEntryGroup, error) {
	body := summaryRequest{
		Collapse:    true,
		Grouping:    string(g),
		SubGrouping: "time_entries",
		StartDate:   FormatDate(r.Start),
		EndDate:     FormatDate(r.End),
		Audit: summaryAudit{
			ShowTrackedGroups: true,
			GroupFilter:       map[string]any{},
		},
		IncludeTimeEntryIDs: true,
	}
	path := "/reports/api/v3/workspace/" + strconv.FormatInt(workspaceID, 10) + "/summary/time_entries"
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}

	var resp summaryResponse
	if err := do(c.http, ServiceTime, req, &resp); err != nil {
		return nil, err
	}

	groups := make([]TimeEntryGroup, 0, len(resp.Groups))
	for _, grp := range resp.Groups {
		groups = append(groups, TimeEntryGroup{
			Kind:      g,
			ID:        grp.ID,
			SubGroups: grp.SubGroups,
		})
	}
	return groups, nil
}

// Names returns the readable names for the ids used by grouping g.
func (c *TimeClient) Names(ctx context.Context, g Grouping) ([]NamedRef, error) {
	path := "/api/v9/me/projects"
	if g == GroupClients {
		path = "/api/v9/me/clients"
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var refs []NamedRef
	if err := do(c.http, ServiceTime, req, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}
