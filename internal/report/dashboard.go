package report

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sadopc/statusdash/internal/cache"
	"github.com/sadopc/statusdash/internal/source"
)

// ErrUnauthorized is returned for every section when the caller has not
// passed the identity gate.
var ErrUnauthorized = errors.New("not authorized")

type Status int

const (
	StatusOK Status = iota
	StatusEmpty
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Section is one independently loaded part of the dashboard.
type Section[T any] struct {
	Status Status
	Value  T
	Err    error
}

func sectionOK[T any](v T) Section[T] {
	return Section[T]{Status: StatusOK, Value: v}
}

func sectionEmpty[T any]() Section[T] {
	return Section[T]{Status: StatusEmpty}
}

func sectionFailed[T any](err error) Section[T] {
	return Section[T]{Status: StatusFailed, Err: err}
}

// Snapshot is the result of one render pass.
type Snapshot struct {
	Date     time.Time
	Grouping source.Grouping

	JournalDate time.Time
	SleepRange  source.DateRange
	TimeRange   source.DateRange

	Journal Section[Journal]
	Sleep   Section[Sleep]
	Time    Section[[]TimeRow]

	LoadedAt time.Time
}

type JournalSource interface {
	Day(ctx context.Context, date time.Time) (*source.JournalRecord, error)
}

type SleepSource interface {
	DailySleep(ctx context.Context, r source.DateRange) ([]source.SleepRecord, error)
}

type TimeSource interface {
	Workspace(ctx context.Context) (int64, error)
	Summary(ctx context.Context, workspaceID int64, r source.DateRange, g source.Grouping) ([]source.TimeEntryGroup, error)
	Names(ctx context.Context, g source.Grouping) ([]source.NamedRef, error)
}

// Authorizer reports whether the pipeline may run.
type Authorizer interface {
	Authorized() bool
}

type Options struct {
	TTL        time.Duration
	Unresolved string
	// Gate, when set, must report Authorized before anything is fetched.
	Gate Authorizer
	Now  func() time.Time
}

// Dashboard runs the fetch, cache, normalize pipeline over the three sources.
type Dashboard struct {
	cache   *cache.Cache
	journal JournalSource
	sleep   SleepSource
	time    TimeSource

	ttl        atomic.Int64
	unresolved string
	gate       Authorizer
	now        func() time.Time
}

func NewDashboard(c *cache.Cache, j JournalSource, s SleepSource, t TimeSource, opts Options) *Dashboard {
	d := &Dashboard{
		cache:      c,
		journal:    j,
		sleep:      s,
		time:       t,
		unresolved: opts.Unresolved,
		gate:       opts.Gate,
		now:        opts.Now,
	}
	if d.now == nil {
		d.now = time.Now
	}
	d.SetTTL(opts.TTL)
	return d
}

// SetTTL changes the freshness window for date-scoped queries.
func (d *Dashboard) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	d.ttl.Store(int64(ttl))
}

func (d *Dashboard) TTL() time.Duration {
	return time.Duration(d.ttl.Load())
}

func (d *Dashboard) Cache() *cache.Cache { return d.cache }

// Ranges derives the per-source date ranges for the selected date.
func Ranges(date time.Time) (journal time.Time, sleep, timeRange source.DateRange) {
	day := source.Date(date)
	prev := source.PreviousDay(day)
	return prev, source.DateRange{Start: prev, End: day}, source.SingleDay(day)
}

func journalKey(date time.Time) cache.Key {
	return cache.NewKey("journal.day", source.FormatDate(date))
}

func sleepKey(r source.DateRange) cache.Key {
	return cache.NewKey("sleep.daily", source.FormatDate(r.Start), source.FormatDate(r.End))
}

var workspaceKey = cache.NewKey("time.workspace")

func summaryKey(ws int64, r source.DateRange, g source.Grouping) cache.Key {
	return cache.NewKey("time.summary", strconv.FormatInt(ws, 10), source.FormatDate(r.Start), source.FormatDate(r.End), string(g))
}

func namesKey(g source.Grouping) cache.Key {
	return cache.NewKey("time.names", string(g))
}

// Load runs one pass for date. Sections load concurrently and fail
// independently.
func (d *Dashboard) Load(ctx context.Context, date time.Time, g source.Grouping) Snapshot {
	journalDate, sleepRange, timeRange := Ranges(date)
	snap := Snapshot{
		Date:        source.Date(date),
		Grouping:    g,
		JournalDate: journalDate,
		SleepRange:  sleepRange,
		TimeRange:   timeRange,
	}

	if d.gate != nil && !d.gate.Authorized() {
		snap.Journal = sectionFailed[Journal](ErrUnauthorized)
		snap.Sleep = sectionFailed[Sleep](ErrUnauthorized)
		snap.Time = sectionFailed[[]TimeRow](ErrUnauthorized)
		snap.LoadedAt = d.now()
		return snap
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		snap.Journal = d.loadJournal(ctx, journalDate)
	}()
	go func() {
		defer wg.Done()
		snap.Sleep = d.loadSleep(ctx, sleepRange)
	}()
	go func() {
		defer wg.Done()
		snap.Time = d.loadTime(ctx, timeRange, g)
	}()
	wg.Wait()

	snap.LoadedAt = d.now()
	return snap
}

func (d *Dashboard) loadJournal(ctx context.Context, date time.Time) Section[Journal] {
	rec, err := cache.Fetch(ctx, d.cache, journalKey(date), d.TTL(), func(ctx context.Context) (*source.JournalRecord, error) {
		return d.journal.Day(ctx, date)
	})
	if err != nil {
		log.Printf("[statusdash] journal %s: %v", source.FormatDate(date), err)
		return sectionFailed[Journal](err)
	}
	j, found := JournalFor(rec, date)
	if !found {
		return sectionEmpty[Journal]()
	}
	return sectionOK(j)
}

func (d *Dashboard) loadSleep(ctx context.Context, r source.DateRange) Section[Sleep] {
	recs, err := cache.Fetch(ctx, d.cache, sleepKey(r), d.TTL(), func(ctx context.Context) ([]source.SleepRecord, error) {
		return d.sleep.DailySleep(ctx, r)
	})
	if err != nil {
		log.Printf("[statusdash] sleep %s: %v", r, err)
		return sectionFailed[Sleep](err)
	}
	s, found := FirstSleep(recs)
	if !found {
		return sectionEmpty[Sleep]()
	}
	return sectionOK(s)
}

func (d *Dashboard) loadTime(ctx context.Context, r source.DateRange, g source.Grouping) Section[[]TimeRow] {
	ws, err := cache.Fetch(ctx, d.cache, workspaceKey, cache.Forever, d.time.Workspace)
	if err != nil {
		log.Printf("[statusdash] time workspace: %v", err)
		return sectionFailed[[]TimeRow](err)
	}

	groups, err := cache.Fetch(ctx, d.cache, summaryKey(ws, r, g), d.TTL(), func(ctx context.Context) ([]source.TimeEntryGroup, error) {
		return d.time.Summary(ctx, ws, r, g)
	})
	if err != nil {
		log.Printf("[statusdash] time summary %s %s: %v", r, g, err)
		return sectionFailed[[]TimeRow](err)
	}

	names, err := cache.Fetch(ctx, d.cache, namesKey(g), d.TTL(), func(ctx context.Context) ([]source.NamedRef, error) {
		return d.time.Names(ctx, g)
	})
	if err != nil {
		log.Printf("[statusdash] time names %s: %v", g, err)
		return sectionFailed[[]TimeRow](err)
	}

	rows := NormalizeTime(groups, names, NormalizeOptions{Unresolved: d.unresolved})
	if len(rows) == 0 {
		return sectionEmpty[[]TimeRow]()
	}
	return sectionOK(rows)
}

// Invalidate drops every date-scoped entry behind a Load for date and g. The
// workspace id is kept.
func (d *Dashboard) Invalidate(date time.Time, g source.Grouping) {
	journalDate, sleepRange, timeRange := Ranges(date)
	d.cache.Invalidate(journalKey(journalDate))
	d.cache.Invalidate(sleepKey(sleepRange))
	d.cache.Invalidate(namesKey(g))
	if ws, found := d.workspaceID(); found {
		d.cache.Invalidate(summaryKey(ws, timeRange, g))
	}
}

func (d *Dashboard) workspaceID() (int64, bool) {
	return cache.Peek[int64](d.cache, workspaceKey)
}

// FetchedAt is the oldest fetch time behind the sections of a Load, for
// "fetched N ago" display.
func (d *Dashboard) FetchedAt(date time.Time, g source.Grouping) (time.Time, bool) {
	journalDate, sleepRange, timeRange := Ranges(date)
	keys := []cache.Key{journalKey(journalDate), sleepKey(sleepRange), namesKey(g)}
	if ws, found := d.workspaceID(); found {
		keys = append(keys, summaryKey(ws, timeRange, g))
	}
	var oldest time.Time
	found := false
	for _, k := range keys {
		at, cached := d.cache.FetchedAt(k)
		if !cached {
			continue
		}
		if !found || at.Before(oldest) {
			oldest = at
			found = true
		}
	}
	return oldest, found
}

// Rows returns the time rows, or nil unless the time section loaded.
func (s Snapshot) Rows() []TimeRow {
	if s.Time.Status != StatusOK {
		return nil
	}
	return s.Time.Value
}
