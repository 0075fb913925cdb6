package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	log15 "github.com/inconshreveable/log15/v3"

	"DailyPulse/db"
)

func testLogger() log15.Logger {
	l := log15.New()
	l.SetHandler(log15.DiscardHandler())
	return l
}

type fixture struct {
	store  *db.Memory
	col    *Collector
	group  db.Group
	alice  db.User
	bob    db.User
	window db.ReportWindow
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := db.NewMemory()

	group := db.Group{Name: "backend", AdminChatID: 900, State: db.GroupActive, CollectHour: 17, CollectMinute: 30, Timezone: "UTC"}
	if err := store.CreateGroup(ctx, &group); err != nil {
		t.Fatalf("create group: %v", err)
	}

	alice := db.User{ChatID: 101, Username: "alice", FullName: "Alice A", GroupID: &group.ID, State: db.UserActive}
	bob := db.User{ChatID: 102, Username: "bob", FullName: "Bob B", GroupID: &group.ID, State: db.UserActive}
	for _, u := range []*db.User{&alice, &bob} {
		if err := store.SaveUser(ctx, u); err != nil {
			t.Fatalf("save user: %v", err)
		}
	}

	now := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	window := db.ReportWindow{
		GroupID:  group.ID,
		Date:     "2026-03-02",
		State:    db.WindowCollecting,
		OpenedAt: now.Add(-30 * time.Minute),
		Deadline: now.Add(7 * time.Hour),
	}
	if _, err := store.OpenWindow(ctx, &window); err != nil {
		t.Fatalf("open window: %v", err)
	}

	return &fixture{
		store:  store,
		col:    New(store, testLogger()),
		group:  group,
		alice:  alice,
		bob:    bob,
		window: window,
		now:    now,
	}
}

func TestSubmit_RecordsReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	receipt, err := f.col.Submit(ctx, f.alice.ChatID, "shipped billing fix", f.now)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if receipt.AllReported {
		t.Fatal("one of two members reported, AllReported must be false")
	}

	reports, err := f.col.ReportsFor(ctx, f.window.Key())
	if err != nil {
		t.Fatalf("reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	want := db.Report{
		ID:          reports[0].ID,
		WindowID:    f.window.ID,
		UserID:      f.alice.ID,
		ChatID:      f.alice.ChatID,
		FullName:    "Alice A",
		Content:     "shipped billing fix",
		SubmittedAt: f.now,
	}
	if diff := cmp.Diff(want, reports[0]); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmit_OverwriteKeepsSingleRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.col.Submit(ctx, f.alice.ChatID, "first draft", f.now); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.col.Submit(ctx, f.alice.ChatID, "final version", f.now.Add(time.Minute)); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	reports, err := f.col.ReportsFor(ctx, f.window.Key())
	if err != nil {
		t.Fatalf("reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	if reports[0].Content != "final version" {
		t.Fatalf("content = %q, want last write", reports[0].Content)
	}
}

func TestSubmit_AllReported(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.col.Submit(ctx, f.alice.ChatID, "did things", f.now); err != nil {
		t.Fatalf("submit: %v", err)
	}
	receipt, err := f.col.Submit(ctx, f.bob.ChatID, "did other things", f.now)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !receipt.AllReported {
		t.Fatal("both members reported, AllReported must be true")
	}
}

func TestSubmit_UnknownUser(t *testing.T) {
	f := newFixture(t)
	if _, err := f.col.Submit(context.Background(), 999, "hi", f.now); !errors.Is(err, ErrUserNotActive) {
		t.Fatalf("want ErrUserNotActive, got %v", err)
	}
}

func TestSubmit_InactiveGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := db.Group{Name: "new team", AdminChatID: 901, State: db.GroupPending, Timezone: "UTC"}
	if err := f.store.CreateGroup(ctx, &pending); err != nil {
		t.Fatalf("create group: %v", err)
	}
	carol := db.User{ChatID: 103, FullName: "Carol C", GroupID: &pending.ID, State: db.UserActive}
	if err := f.store.SaveUser(ctx, &carol); err != nil {
		t.Fatalf("save user: %v", err)
	}

	if _, err := f.col.Submit(ctx, carol.ChatID, "hi", f.now); !errors.Is(err, ErrUserNotActive) {
		t.Fatalf("want ErrUserNotActive, got %v", err)
	}
}

func TestSubmit_NoWindowOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Finish today's window; no collecting window remains.
	for _, step := range [][2]db.WindowState{
		{db.WindowCollecting, db.WindowSummarizing},
		{db.WindowSummarizing, db.WindowCompleted},
	} {
		if _, err := f.store.TransitionWindow(ctx, f.window.ID, step[0], step[1]); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}
	if _, err := f.col.Submit(ctx, f.alice.ChatID, "hi", f.now); !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("want ErrWindowClosed, got %v", err)
	}
}

func TestSubmit_AcceptsAfterMidnightBeforeDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// With an evening collect time the deadline lands on the next
	// calendar day; the window keeps the date it was opened on.
	afterMidnight := time.Date(2026, 3, 3, 0, 30, 0, 0, time.UTC)
	if !afterMidnight.Before(f.window.Deadline) {
		t.Fatalf("fixture deadline %v not past midnight", f.window.Deadline)
	}

	receipt, err := f.col.Submit(ctx, f.alice.ChatID, "late but in time", afterMidnight)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if receipt.Window.Date != "2026-03-02" {
		t.Fatalf("report landed on window %s, want the opened day", receipt.Window.Date)
	}

	reports, err := f.col.ReportsFor(ctx, f.window.Key())
	if err != nil {
		t.Fatalf("reports: %v", err)
	}
	if len(reports) != 1 || reports[0].Content != "late but in time" {
		t.Fatalf("reports = %+v", reports)
	}
}

func TestSubmit_PastDeadline(t *testing.T) {
	f := newFixture(t)
	late := f.window.Deadline.Add(time.Minute)
	if _, err := f.col.Submit(context.Background(), f.alice.ChatID, "too late", late); !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("want ErrWindowClosed, got %v", err)
	}
}

func TestSubmit_WindowAlreadySummarizing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.store.TransitionWindow(ctx, f.window.ID, db.WindowCollecting, db.WindowSummarizing); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := f.col.Submit(ctx, f.alice.ChatID, "hi", f.now); !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("want ErrWindowClosed, got %v", err)
	}
}

func TestReportsFor_SnapshotIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.col.Submit(ctx, f.alice.ChatID, "before snapshot", f.now); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snapshot, err := f.col.ReportsFor(ctx, f.window.Key())
	if err != nil {
		t.Fatalf("reports: %v", err)
	}
	if _, err := f.col.Submit(ctx, f.bob.ChatID, "after snapshot", f.now.Add(time.Second)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if len(snapshot) != 1 {
		t.Fatalf("snapshot grew to %d reports, want 1", len(snapshot))
	}
}
