package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemory_ConsumeTokenSingleWinner(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	token := ActivationToken{Token: "tok", GroupID: 1, ExpiresAt: time.Now().Add(time.Hour)}
	if err := store.CreateToken(ctx, &token); err != nil {
		t.Fatalf("create: %v", err)
	}

	const racers = 16
	var wg sync.WaitGroup
	wins := make([]bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			won, err := store.ConsumeToken(ctx, "tok", int64(100+i), time.Now())
			if err != nil {
				t.Errorf("consume: %v", err)
			}
			wins[i] = won
		}(i)
	}
	wg.Wait()

	n := 0
	for _, w := range wins {
		if w {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("%d winners, want exactly 1", n)
	}
}

func TestMemory_TransitionWindowGuardsState(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	w := ReportWindow{GroupID: 1, Date: "2026-03-02", State: WindowCollecting, OpenedAt: time.Now(), Deadline: time.Now().Add(time.Hour)}
	if created, err := store.OpenWindow(ctx, &w); err != nil || !created {
		t.Fatalf("open: created=%v err=%v", created, err)
	}

	ok, err := store.TransitionWindow(ctx, w.ID, WindowCollecting, WindowSummarizing)
	if err != nil || !ok {
		t.Fatalf("first transition: ok=%v err=%v", ok, err)
	}
	// Same transition again loses: the window already left collecting.
	ok, err = store.TransitionWindow(ctx, w.ID, WindowCollecting, WindowSummarizing)
	if err != nil || ok {
		t.Fatalf("repeat transition: ok=%v err=%v", ok, err)
	}
	ok, err = store.TransitionWindow(ctx, w.ID, WindowSummarizing, WindowCompleted)
	if err != nil || !ok {
		t.Fatalf("finalize: ok=%v err=%v", ok, err)
	}

	got, err := store.WindowByID(ctx, w.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.State != WindowCompleted {
		t.Fatalf("state = %s", got.State)
	}
}

func TestMemory_OpenWindowEnforcesNaturalKey(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	first := ReportWindow{GroupID: 1, Date: "2026-03-02", State: WindowCollecting}
	if created, err := store.OpenWindow(ctx, &first); err != nil || !created {
		t.Fatalf("open: created=%v err=%v", created, err)
	}
	dup := ReportWindow{GroupID: 1, Date: "2026-03-02", State: WindowCollecting}
	if created, err := store.OpenWindow(ctx, &dup); err != nil || created {
		t.Fatalf("duplicate open: created=%v err=%v", created, err)
	}
	// A different day or group is a fresh window.
	other := ReportWindow{GroupID: 1, Date: "2026-03-03", State: WindowCollecting}
	if created, err := store.OpenWindow(ctx, &other); err != nil || !created {
		t.Fatalf("next day open: created=%v err=%v", created, err)
	}
}

func TestMemory_UpsertReportOverwrites(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	first := Report{WindowID: 1, UserID: 1, ChatID: 101, Content: "draft", SubmittedAt: time.Now()}
	if err := store.UpsertReport(ctx, &first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second := Report{WindowID: 1, UserID: 1, ChatID: 101, Content: "final", SubmittedAt: time.Now()}
	if err := store.UpsertReport(ctx, &second); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("overwrite changed identity: %d vs %d", second.ID, first.ID)
	}

	reports, err := store.ReportsForWindow(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reports) != 1 || reports[0].Content != "final" {
		t.Fatalf("reports = %+v", reports)
	}

	count, err := store.CountReports(ctx, 1)
	if err != nil || count != 1 {
		t.Fatalf("count = %d, err = %v", count, err)
	}
}

func TestMemory_SaveUserUpsertsByChatID(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	groupID := uint(7)
	u := User{ChatID: 101, Username: "alice", State: UserPending}
	if err := store.SaveUser(ctx, &u); err != nil {
		t.Fatalf("save: %v", err)
	}
	update := User{ChatID: 101, Username: "alice", FullName: "Alice A", GroupID: &groupID, State: UserActive}
	if err := store.SaveUser(ctx, &update); err != nil {
		t.Fatalf("resave: %v", err)
	}
	if update.ID != u.ID {
		t.Fatalf("resave changed identity: %d vs %d", update.ID, u.ID)
	}

	got, err := store.UserByChatID(ctx, 101)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.State != UserActive || got.GroupID == nil || *got.GroupID != groupID {
		t.Fatalf("user = %+v", got)
	}

	members, err := store.ActiveMembers(ctx, groupID)
	if err != nil || len(members) != 1 {
		t.Fatalf("members = %v, err = %v", members, err)
	}
}

func TestMemory_ListWindowsNewestFirst(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	for _, date := range []string{"2026-03-01", "2026-03-03", "2026-03-02"} {
		w := ReportWindow{GroupID: 1, Date: date, State: WindowCompleted}
		if _, err := store.OpenWindow(ctx, &w); err != nil {
			t.Fatalf("open: %v", err)
		}
	}

	windows, err := store.ListWindows(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"2026-03-03", "2026-03-02", "2026-03-01"}
	for i, w := range windows {
		if w.Date != want[i] {
			t.Fatalf("windows[%d].Date = %s, want %s", i, w.Date, want[i])
		}
	}
}

func TestMemory_CollectingWindow(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if _, err := store.CollectingWindow(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	done := ReportWindow{GroupID: 1, Date: "2026-03-01", State: WindowCompleted}
	open := ReportWindow{GroupID: 1, Date: "2026-03-02", State: WindowCollecting}
	other := ReportWindow{GroupID: 2, Date: "2026-03-02", State: WindowCollecting}
	for _, w := range []*ReportWindow{&done, &open, &other} {
		if _, err := store.OpenWindow(ctx, w); err != nil {
			t.Fatalf("open: %v", err)
		}
	}

	got, err := store.CollectingWindow(ctx, 1)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != open.ID {
		t.Fatalf("got window %d (%s), want %d", got.ID, got.Date, open.ID)
	}
}

func TestMemory_DueAndStaleWindows(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now()

	due := ReportWindow{GroupID: 1, Date: "2026-03-01", State: WindowCollecting, Deadline: now.Add(-time.Minute)}
	open := ReportWindow{GroupID: 2, Date: "2026-03-01", State: WindowCollecting, Deadline: now.Add(time.Hour)}
	for _, w := range []*ReportWindow{&due, &open} {
		if _, err := store.OpenWindow(ctx, w); err != nil {
			t.Fatalf("open: %v", err)
		}
	}

	got, err := store.DueWindows(ctx, now)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Fatalf("due windows = %+v", got)
	}

	if _, err := store.TransitionWindow(ctx, due.ID, WindowCollecting, WindowSummarizing); err != nil {
		t.Fatalf("transition: %v", err)
	}
	stale, err := store.StaleSummarizing(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != due.ID {
		t.Fatalf("stale windows = %+v", stale)
	}
	// A fresh cutoff in the past finds nothing.
	stale, err = store.StaleSummarizing(ctx, time.Now().Add(-time.Hour))
	if err != nil || len(stale) != 0 {
		t.Fatalf("stale windows = %+v, err = %v", stale, err)
	}
}
