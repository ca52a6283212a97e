package source

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

// ============================================================
// Dates and groupings
// ============================================================

func TestNewDateRange(t *testing.T) {
	a := mustDate(t, "2024-03-01")
	b := mustDate(t, "2024-03-02")

	r, err := NewDateRange(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if r.String() != "2024-03-01..2024-03-02" {
		t.Fatalf("String() = %q", r.String())
	}

	if _, err := NewDateRange(b, a); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}

	if _, err := NewDateRange(a, a); err != nil {
		t.Fatalf("single day range should be valid: %v", err)
	}
}

func TestPreviousDay(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2024-03-02", "2024-03-01"},
		{"2024-03-01", "2024-02-29"},
		{"2024-01-01", "2023-12-31"},
	}
	for _, tt := range tests {
		got := FormatDate(PreviousDay(mustDate(t, tt.in)))
		if got != tt.want {
			t.Errorf("PreviousDay(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestDateTruncates(t *testing.T) {
	in := time.Date(2024, 5, 6, 23, 59, 0, 0, time.UTC)
	if got := Date(in); !got.Equal(time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Date() = %v", got)
	}
}

func TestParseGrouping(t *testing.T) {
	tests := []struct {
		in   string
		want Grouping
		ok   bool
	}{
		{"projects", GroupProjects, true},
		{"Project", GroupProjects, true},
		{" clients ", GroupClients, true},
		{"tags", "", false},
	}
	for _, tt := range tests {
		got, err := ParseGrouping(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseGrouping(%q) = %q, %v", tt.in, got, err)
		}
	}
	if GroupProjects.Toggle() != GroupClients || GroupClients.Toggle() != GroupProjects {
		t.Fatal("Toggle should flip the grouping")
	}
}

// ============================================================
// FetchError
// ============================================================

func TestFetchErrorMessages(t *testing.T) {
	e := &FetchError{Service: "oura", StatusCode: 503, Body: "down"}
	if e.Error() != "oura: status=503 body=down" {
		t.Fatalf("Error() = %q", e.Error())
	}

	netErr := &FetchError{Service: "toggl", Err: context.DeadlineExceeded}
	if !strings.Contains(netErr.Error(), "request failed") {
		t.Fatalf("Error() = %q", netErr.Error())
	}
	if !netErr.Timeout() {
		t.Fatal("deadline exceeded should be a timeout")
	}
	if !errors.Is(netErr, context.DeadlineExceeded) {
		t.Fatal("FetchError should unwrap to its cause")
	}
}

func TestTimeoutSurfacesAsFetchError(t *testing.T) {
	block := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-block
	})
	defer close(block)

	c := NewSleepClient(SleepConfig{BaseURL: srv.URL, APIKey: "k"}, &http.Client{Timeout: 50 * time.Millisecond})
	_, err := c.DailySleep(context.Background(), SingleDay(mustDate(t, "2024-03-01")))

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T %v", err, err)
	}
	if fe.StatusCode != 0 || fe.Service != ServiceSleep {
		t.Fatalf("unexpected FetchError: %+v", fe)
	}
	if !fe.Timeout() {
		t.Fatalf("expected timeout, got %v", fe.Err)
	}
}

// ============================================================
// Journal
// ============================================================

func TestJournalDayRequestShape(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/appBase/Daily" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer at-key" {
			t.Errorf("Authorization = %q", got)
		}
		q := r.URL.Query()
		if q.Get("maxRecords") != "1" || q.Get("view") != "Grid view" {
			t.Errorf("query = %v", q)
		}
		if q.Get("filterByFormula") != `DATESTR(Date) = "2024-03-01"` {
			t.Errorf("filterByFormula = %q", q.Get("filterByFormula"))
		}
		io.WriteString(w, `{"records":[{"id":"rec1","fields":{"Date":"2024-03-01","Journal":"Went \\*running\\*"}}]}`)
	})

	c := NewJournalClient(JournalConfig{BaseURL: srv.URL, APIKey: "at-key", BaseID: "appBase", Table: "Daily", View: "Grid view"}, srv.Client())
	rec, err := c.Day(context.Background(), mustDate(t, "2024-03-01"))
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Date != "2024-03-01" || rec.Text != `Went \*running\*` {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestJournalDayNoRecords(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"records":[]}`)
	})
	c := NewJournalClient(JournalConfig{BaseURL: srv.URL, BaseID: "b", Table: "Daily"}, srv.Client())
	rec, err := c.Day(context.Background(), mustDate(t, "2024-03-01"))
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestAdaptersFailOnNon2xx(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})
	ctx := context.Background()
	day := mustDate(t, "2024-03-01")

	journal := NewJournalClient(JournalConfig{BaseURL: srv.URL, BaseID: "b", Table: "Daily"}, srv.Client())
	sleep := NewSleepClient(SleepConfig{BaseURL: srv.URL}, srv.Client())
	timeClient := NewTimeClient(TimeConfig{BaseURL: srv.URL}, srv.Client())

	calls := []struct {
		service string
		call    func() error
	}{
		{ServiceJournal, func() error { _, err := journal.Day(ctx, day); return err }},
		{ServiceSleep, func() error { _, err := sleep.DailySleep(ctx, SingleDay(day)); return err }},
		{ServiceTime, func() error { _, err := timeClient.Workspace(ctx); return err }},
		{ServiceTime, func() error { _, err := timeClient.Summary(ctx, 1, SingleDay(day), GroupProjects); return err }},
		{ServiceTime, func() error { _, err := timeClient.Names(ctx, GroupClients); return err }},
	}
	for _, c := range calls {
		err := c.call()
		var fe *FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("%s: expected *FetchError, got %v", c.service, err)
		}
		if fe.StatusCode != http.StatusUnauthorized || fe.Service != c.service {
			t.Fatalf("%s: unexpected FetchError %+v", c.service, fe)
		}
		if fe.Body != "nope" {
			t.Fatalf("%s: body = %q", c.service, fe.Body)
		}
	}
}

func TestMalformedBodyIsFetchError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": [`)
	})
	c := NewSleepClient(SleepConfig{BaseURL: srv.URL}, srv.Client())
	_, err := c.DailySleep(context.Background(), SingleDay(mustDate(t, "2024-03-01")))
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Err == nil {
		t.Fatal("decode failure should carry the cause")
	}
}

// ============================================================
// Sleep
// ============================================================

func TestDailySleep(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/usercollection/daily_sleep" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer oura-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		q := r.URL.Query()
		if q.Get("start_date") != "2024-03-01" || q.Get("end_date") != "2024-03-02" {
			t.Errorf("query = %v", q)
		}
		io.WriteString(w, `{"data":[{"day":"2024-03-01","score":82},{"day":"2024-03-02","score":64}],"next_token":null}`)
	})

	r, _ := NewDateRange(mustDate(t, "2024-03-01"), mustDate(t, "2024-03-02"))
	c := NewSleepClient(SleepConfig{BaseURL: srv.URL, APIKey: "oura-key"}, srv.Client())
	recs, err := c.DailySleep(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Score != 82 || recs[0].Day != "2024-03-01" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestDailySleepEmpty(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":[]}`)
	})
	c := NewSleepClient(SleepConfig{BaseURL: srv.URL}, srv.Client())
	recs, err := c.DailySleep(context.Background(), SingleDay(mustDate(t, "2024-03-01")))
	if err != nil {
		t.Fatalf("empty data is not an error: %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", recs)
	}
}

// ============================================================
// Time tracking
// ============================================================

func TestWorkspace(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "toggl-key" || pass != "api_token" {
			t.Errorf("basic auth = %q %q %v", user, pass, ok)
		}
		if r.URL.Path != "/api/v9/me" {
			t.Errorf("path = %q", r.URL.Path)
		}
		io.WriteString(w, `{"id": 5, "default_workspace_id": 4242}`)
	})
	c := NewTimeClient(TimeConfig{BaseURL: srv.URL, APIKey: "toggl-key"}, srv.Client())
	id, err := c.Workspace(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id != 4242 {
		t.Fatalf("workspace = %d, want 4242", id)
	}
}

func TestWorkspaceMissingID(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id": 5}`)
	})
	c := NewTimeClient(TimeConfig{BaseURL: srv.URL}, srv.Client())
	if _, err := c.Workspace(context.Background()); err == nil {
		t.Fatal("expected error for missing workspace id")
	}
}

func TestSummaryRequestShape(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/reports/api/v3/workspace/4242/summary/time_entries" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if body["grouping"] != "clients" || body["sub_grouping"] != "time_entries" || body["collapse"] != true {
			t.Errorf("body = %v", body)
		}
		if body["start_date"] != "2024-03-02" || body["end_date"] != "2024-03-02" {
			t.Errorf("dates = %v %v", body["start_date"], body["end_date"])
		}
		io.WriteString(w, `{"groups":[
			{"id": 7, "sub_groups":[{"id":1,"title":"A","seconds":3600},{"id":2,"title":"B","seconds":1800}]},
			{"id": null, "sub_groups":[{"id":3,"title":"","seconds":900}]}
		]}`)
	})
	c := NewTimeClient(TimeConfig{BaseURL: srv.URL, APIKey: "k"}, srv.Client())
	groups, err := c.Summary(context.Background(), 4242, SingleDay(mustDate(t, "2024-03-02")), GroupClients)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if groups[0].ID == nil || *groups[0].ID != 7 || groups[0].Kind != GroupClients {
		t.Fatalf("unexpected first group: %+v", groups[0])
	}
	if len(groups[0].SubGroups) != 2 || groups[0].SubGroups[1].Seconds != 1800 {
		t.Fatalf("unexpected sub groups: %+v", groups[0].SubGroups)
	}
	if groups[1].ID != nil {
		t.Fatal("null id should decode to nil")
	}
}

func TestNamesPath(t *testing.T) {
	var paths []string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		io.WriteString(w, `[{"id": 7, "name": "Website", "active": true}]`)
	})
	c := NewTimeClient(TimeConfig{BaseURL: srv.URL}, srv.Client())

	for _, g := range []Grouping{GroupProjects, GroupClients} {
		refs, err := c.Names(context.Background(), g)
		if err != nil {
			t.Fatal(err)
		}
		if len(refs) != 1 || refs[0].ID != 7 || refs[0].Name != "Website" {
			t.Fatalf("unexpected refs: %+v", refs)
		}
	}
	if len(paths) != 2 || paths[0] != "/api/v9/me/projects" || paths[1] != "/api/v9/me/clients" {
		t.Fatalf("paths = %v", paths)
	}
}
