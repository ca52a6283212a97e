package report

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sadopc/statusdash/internal/cache"
	"github.com/sadopc/statusdash/internal/source"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeJournal struct {
	calls atomic.Int32
	rec   *source.JournalRecord
	err   error
	dates []string
	mu    sync.Mutex
}

func (f *fakeJournal) Day(_ context.Context, date time.Time) (*source.JournalRecord, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.dates = append(f.dates, source.FormatDate(date))
	f.mu.Unlock()
	return f.rec, f.err
}

type fakeSleep struct {
	calls  atomic.Int32
	recs   []source.SleepRecord
	err    error
	ranges []source.DateRange
	mu     sync.Mutex
}

func (f *fakeSleep) DailySleep(_ context.Context, r source.DateRange) ([]source.SleepRecord, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.ranges = append(f.ranges, r)
	f.mu.Unlock()
	return f.recs, f.err
}

type fakeTime struct {
	workspaceCalls atomic.Int32
	summaryCalls   atomic.Int32
	namesCalls     atomic.Int32

	groups []source.TimeEntryGroup
	names  []source.NamedRef
	err    error

	mu       sync.Mutex
	ranges   []source.DateRange
	grouping []source.Grouping
}

func (f *fakeTime) Workspace(context.Context) (int64, error) {
	f.workspaceCalls.Add(1)
	return 77, nil
}

func (f *fakeTime) Summary(_ context.Context, ws int64, r source.DateRange, g source.Grouping) ([]source.TimeEntryGroup, error) {
	f.summaryCalls.Add(1)
	f.mu.Lock()
	f.ranges = append(f.ranges, r)
	f.grouping = append(f.grouping, g)
	f.mu.Unlock()
	if ws != 77 {
		return nil, errors.New("wrong workspace")
	}
	return f.groups, f.err
}

func (f *fakeTime) Names(context.Context, source.Grouping) ([]source.NamedRef, error) {
	f.namesCalls.Add(1)
	return f.names, nil
}

type allowlistGate struct {
	identity  string
	allowlist []string
}

func (g allowlistGate) Authorized() bool {
	for _, id := range g.allowlist {
		if id == g.identity {
			return true
		}
	}
	return false
}

type fixture struct {
	clock   *clock
	journal *fakeJournal
	sleep   *fakeSleep
	time    *fakeTime
	dash    *Dashboard
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		clock: &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		journal: &fakeJournal{rec: &source.JournalRecord{Date: "2024-02-29", Text: `felt \*great\*`}},
		sleep:   &fakeSleep{recs: []source.SleepRecord{{Day: "2024-02-29", Score: 82}}},
		time: &fakeTime{
			groups: []source.TimeEntryGroup{
				{ID: id(1), SubGroups: []source.SubGroup{{Seconds: 3600}, {Seconds: 1800}}},
				{ID: nil, SubGroups: []source.SubGroup{{Seconds: 900}}},
			},
			names: []source.NamedRef{{ID: 1, Name: "Website"}},
		},
	}
	opts.Now = f.clock.Now
	f.dash = NewDashboard(cache.New(cache.WithClock(f.clock)), f.journal, f.sleep, f.time, opts)
	return f
}

var march1 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// ============================================================
// Load
// ============================================================

func TestLoadAllSections(t *testing.T) {
	f := newFixture(t, Options{})
	snap := f.dash.Load(context.Background(), march1, source.GroupProjects)

	if snap.Journal.Status != StatusOK || snap.Journal.Value.Text != "felt *great*" {
		t.Fatalf("journal = %+v", snap.Journal)
	}
	if snap.Sleep.Status != StatusOK || snap.Sleep.Value.Score != 82 {
		t.Fatalf("sleep = %+v", snap.Sleep)
	}
	if snap.Time.Status != StatusOK || len(snap.Time.Value) != 2 {
		t.Fatalf("time = %+v", snap.Time)
	}
	if snap.Time.Value[0].Label != "1h 30min" || snap.Time.Value[1].Label != "0h 15min" {
		t.Fatalf("labels = %+v", snap.Time.Value)
	}
	if len(snap.Rows()) != 2 {
		t.Fatalf("Rows = %+v", snap.Rows())
	}
	if !snap.LoadedAt.Equal(f.clock.Now()) {
		t.Fatalf("LoadedAt = %v", snap.LoadedAt)
	}
}

func TestLoadDateRanges(t *testing.T) {
	f := newFixture(t, Options{})
	f.dash.Load(context.Background(), march1.Add(15*time.Hour), source.GroupClients)

	if len(f.journal.dates) != 1 || f.journal.dates[0] != "2024-02-29" {
		t.Fatalf("journal dates = %v, want previous day", f.journal.dates)
	}
	if got := f.sleep.ranges[0].String(); got != "2024-02-29..2024-03-01" {
		t.Fatalf("sleep range = %s", got)
	}
	if got := f.time.ranges[0].String(); got != "2024-03-01..2024-03-01" {
		t.Fatalf("time range = %s", got)
	}
	if f.time.grouping[0] != source.GroupClients {
		t.Fatalf("grouping = %s", f.time.grouping[0])
	}
}

func TestLoadJournalDateMismatchIsEmpty(t *testing.T) {
	f := newFixture(t, Options{})
	f.journal.rec = &source.JournalRecord{Date: "2024-02-20", Text: "stale"}

	snap := f.dash.Load(context.Background(), march1, source.GroupProjects)
	if snap.Journal.Status != StatusEmpty {
		t.Fatalf("journal status = %s, want empty", snap.Journal.Status)
	}
}

func TestLoadEmptySections(t *testing.T) {
	f := newFixture(t, Options{})
	f.journal.rec = nil
	f.sleep.recs = []source.SleepRecord{}
	f.time.groups = nil

	snap := f.dash.Load(context.Background(), march1, source.GroupProjects)
	if snap.Journal.Status != StatusEmpty || snap.Sleep.Status != StatusEmpty || snap.Time.Status != StatusEmpty {
		t.Fatalf("statuses = %s %s %s", snap.Journal.Status, snap.Sleep.Status, snap.Time.Status)
	}
	if snap.Rows() != nil {
		t.Fatal("Rows should be nil for an empty section")
	}
}

func TestLoadSectionsFailIndependently(t *testing.T) {
	f := newFixture(t, Options{})
	f.sleep.err = &source.FetchError{Service: source.ServiceSleep, StatusCode: 401, Body: "unauthorized"}

	snap := f.dash.Load(context.Background(), march1, source.GroupProjects)
	if snap.Sleep.Status != StatusFailed {
		t.Fatalf("sleep status = %s", snap.Sleep.Status)
	}
	var fe *source.FetchError
	if !errors.As(snap.Sleep.Err, &fe) || fe.StatusCode != 401 {
		t.Fatalf("sleep err = %v", snap.Sleep.Err)
	}
	if snap.Journal.Status != StatusOK || snap.Time.Status != StatusOK {
		t.Fatalf("other sections should still load: %s %s", snap.Journal.Status, snap.Time.Status)
	}
}

func TestLoadFailureIsRetried(t *testing.T) {
	f := newFixture(t, Options{})
	f.time.err = errors.New("boom")

	snap := f.dash.Load(context.Background(), march1, source.GroupProjects)
	if snap.Time.Status != StatusFailed {
		t.Fatalf("time status = %s", snap.Time.Status)
	}

	f.time.err = nil
	snap = f.dash.Load(context.Background(), march1, source.GroupProjects)
	if snap.Time.Status != StatusOK {
		t.Fatalf("time should recover once the source does: %s", snap.Time.Status)
	}
	if got := f.time.summaryCalls.Load(); got != 2 {
		t.Fatalf("summary calls = %d, want 2", got)
	}
}

// ============================================================
// Caching
// ============================================================

func TestLoadServesFromCacheWithinTTL(t *testing.T) {
	f := newFixture(t, Options{TTL: time.Hour})
	ctx := context.Background()

	f.dash.Load(ctx, march1, source.GroupProjects)
	f.clock.Advance(30 * time.Minute)
	f.dash.Load(ctx, march1, source.GroupProjects)

	if f.journal.calls.Load() != 1 || f.sleep.calls.Load() != 1 || f.time.summaryCalls.Load() != 1 {
		t.Fatalf("calls = %d %d %d, want 1 each", f.journal.calls.Load(), f.sleep.calls.Load(), f.time.summaryCalls.Load())
	}

	f.clock.Advance(31 * time.Minute)
	f.dash.Load(ctx, march1, source.GroupProjects)
	if f.journal.calls.Load() != 2 || f.time.summaryCalls.Load() != 2 {
		t.Fatal("expired entries should be refetched")
	}
}

func TestWorkspaceResolvedOnce(t *testing.T) {
	f := newFixture(t, Options{TTL: time.Minute})
	ctx := context.Background()

	f.dash.Load(ctx, march1, source.GroupProjects)
	f.clock.Advance(48 * time.Hour)
	f.dash.Load(ctx, march1.AddDate(0, 0, 1), source.GroupClients)

	if got := f.time.workspaceCalls.Load(); got != 1 {
		t.Fatalf("workspace calls = %d, want 1", got)
	}
	if got := f.time.summaryCalls.Load(); got != 2 {
		t.Fatalf("summary calls = %d, want 2", got)
	}
}

func TestInvalidateKeepsWorkspace(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.dash.Load(ctx, march1, source.GroupProjects)
	f.dash.Invalidate(march1, source.GroupProjects)
	f.dash.Load(ctx, march1, source.GroupProjects)

	if f.journal.calls.Load() != 2 || f.sleep.calls.Load() != 2 || f.time.summaryCalls.Load() != 2 || f.time.namesCalls.Load() != 2 {
		t.Fatal("invalidate should force every date-scoped query")
	}
	if f.time.workspaceCalls.Load() != 1 {
		t.Fatal("invalidate should keep the workspace id")
	}
}

func TestSetTTL(t *testing.T) {
	f := newFixture(t, Options{})
	if f.dash.TTL() != time.Hour {
		t.Fatalf("default TTL = %v", f.dash.TTL())
	}
	f.dash.SetTTL(5 * time.Minute)
	if f.dash.TTL() != 5*time.Minute {
		t.Fatalf("TTL = %v", f.dash.TTL())
	}
	f.dash.SetTTL(0)
	if f.dash.TTL() != time.Hour {
		t.Fatalf("zero TTL should fall back to 1h, got %v", f.dash.TTL())
	}
}

func TestFetchedAtReportsOldest(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if _, found := f.dash.FetchedAt(march1, source.GroupProjects); found {
		t.Fatal("nothing fetched yet")
	}
	start := f.clock.Now()
	f.dash.Load(ctx, march1, source.GroupProjects)

	f.clock.Advance(10 * time.Minute)
	f.dash.Cache().Invalidate(journalKey(source.PreviousDay(march1)))
	f.dash.Load(ctx, march1, source.GroupProjects)

	at, found := f.dash.FetchedAt(march1, source.GroupProjects)
	if !found || !at.Equal(start) {
		t.Fatalf("FetchedAt = %v %v, want %v", at, found, start)
	}
}

// ============================================================
// Gate
// ============================================================

func TestLoadUnauthorizedFetchesNothing(t *testing.T) {
	f := newFixture(t, Options{Gate: allowlistGate{identity: "999", allowlist: []string{"111", "222"}}})

	snap := f.dash.Load(context.Background(), march1, source.GroupProjects)
	for name, err := range map[string]error{"journal": snap.Journal.Err, "sleep": snap.Sleep.Err, "time": snap.Time.Err} {
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("%s err = %v, want ErrUnauthorized", name, err)
		}
	}
	if f.journal.calls.Load()+f.sleep.calls.Load()+f.time.workspaceCalls.Load()+f.time.summaryCalls.Load() != 0 {
		t.Fatal("no source may be called without authorization")
	}
	if f.dash.Cache().Len() != 0 {
		t.Fatal("cache should stay empty")
	}
}

func TestLoadAuthorized(t *testing.T) {
	f := newFixture(t, Options{Gate: allowlistGate{identity: "222", allowlist: []string{"111", "222"}}})
	snap := f.dash.Load(context.Background(), march1, source.GroupProjects)
	if snap.Time.Status != StatusOK {
		t.Fatalf("time status = %s", snap.Time.Status)
	}
}

func TestStatusString(t *testing.T) {
	tests := map[Status]string{StatusOK: "ok", StatusEmpty: "empty", StatusFailed: "failed", Status(9): "unknown"}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
