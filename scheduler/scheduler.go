// Package scheduler drives the daily report cycle: it opens one window
// per active group per day at the group's local collect time, closes
// windows whose deadline passed, and feeds them through the summarizer.
// Groups are processed independently; a window's transitions are
// guarded by conditional updates so only one is ever in flight.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log15 "github.com/inconshreveable/log15/v3"
	"github.com/robfig/cron/v3"

	"DailyPulse/db"
	"DailyPulse/gateway"
)

const dailyQuestion = "Good evening! Which tasks did you get done today, " +
	"what is the plan for tomorrow, and did you hit any blockers?"

// Telegram rejects messages over 4096 characters; stay under it.
const maxMessageLen = 4000

// Sender delivers a text message to a chat. The bot transport
// implements it.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// Summarizer produces a window's summary outcome. Implemented by
// gateway.Gateway; tests substitute a fake. An error signals an
// interrupted run, not a failed summary.
type Summarizer interface {
	Summarize(ctx context.Context, group db.Group, window db.ReportWindow, reports []db.Report, absent []string) (gateway.Outcome, error)
}

type Scheduler struct {
	store  db.Store
	gw     Summarizer
	sender Sender
	log    log15.Logger

	collectFor time.Duration
	sweepEvery time.Duration
	lease      time.Duration

	cron *cron.Cron
	ctx  context.Context

	mu       sync.Mutex
	entries  map[uint]groupEntry
	inflight map[uint]bool
}

type groupEntry struct {
	id   cron.EntryID
	spec string
}

func New(store db.Store, gw Summarizer, sender Sender, log log15.Logger, collectFor, sweepEvery time.Duration) *Scheduler {
	return &Scheduler{
		store:      store,
		gw:         gw,
		sender:     sender,
		log:        log,
		collectFor: collectFor,
		sweepEvery: sweepEvery,
		lease:      10 * time.Minute,
		cron:       cron.New(),
		ctx:        context.Background(),
		entries:    make(map[uint]groupEntry),
		inflight:   make(map[uint]bool),
	}
}

// Start builds the cron entries and runs until ctx is canceled. The
// initial sweep resumes any window left mid-cycle by a previous run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx

	if err := s.Reload(ctx); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.sweepEvery), func() { s.sweep() }); err != nil {
		return fmt.Errorf("scheduler: sweep entry: %w", err)
	}

	s.cron.Start()
	s.log.Info("scheduler started", "sweep", s.sweepEvery, "collect_for", s.collectFor)

	go s.sweep()

	<-ctx.Done()
	s.log.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	return nil
}

// Reload reconciles the per-group cron entries with the current set of
// active groups and their collect times.
func (s *Scheduler) Reload(ctx context.Context) error {
	groups, err := s.store.ListActiveGroups(ctx)
	if err != nil {
		return err
	}

	want := make(map[uint]db.Group, len(groups))
	for _, g := range groups {
		want[g.ID] = g
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		g, ok := want[id]
		if ok && cronSpec(g) == e.spec {
			continue
		}
		s.cron.Remove(e.id)
		delete(s.entries, id)
		s.log.Info("removed group schedule", "group", id)
	}

	for id, g := range want {
		if _, ok := s.entries[id]; ok {
			continue
		}
		spec := cronSpec(g)
		groupID := id
		entryID, err := s.cron.AddFunc(spec, func() { s.openCycle(groupID) })
		if err != nil {
			s.log.Error("bad group schedule", "group", id, "spec", spec, "err", err)
			continue
		}
		s.entries[id] = groupEntry{id: entryID, spec: spec}
		s.log.Info("scheduled group", "group", id, "name", g.Name, "spec", spec)
	}
	return nil
}

func cronSpec(g db.Group) string {
	return fmt.Sprintf("CRON_TZ=%s %d %d * * *", g.Timezone, g.CollectMinute, g.CollectHour)
}

// openCycle fires at a group's daily collect time.
func (s *Scheduler) openCycle(groupID uint) {
	ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
	defer cancel()

	group, err := s.store.GroupByID(ctx, groupID)
	if err != nil {
		s.log.Error("open cycle: load group", "group", groupID, "err", err)
		return
	}
	if group.State != db.GroupActive {
		return
	}
	if _, err := s.OpenWindow(ctx, *group, time.Now()); err != nil {
		s.log.Error("open cycle failed", "group", groupID, "err", err)
	}
}

// OpenWindow starts today's collection for the group and broadcasts the
// daily question to its members. If the window already exists the call
// is a no-op and the existing window is returned.
func (s *Scheduler) OpenWindow(ctx context.Context, group db.Group, now time.Time) (*db.ReportWindow, error) {
	loc, err := time.LoadLocation(group.Timezone)
	if err != nil {
		loc = time.UTC
	}

	window := &db.ReportWindow{
		GroupID:  group.ID,
		Date:     now.In(loc).Format("2006-01-02"),
		State:    db.WindowCollecting,
		OpenedAt: now.UTC(),
		Deadline: now.Add(s.collectFor).UTC(),
	}

	created, err := s.store.OpenWindow(ctx, window)
	if err != nil {
		return nil, err
	}
	if !created {
		return s.store.WindowByKey(ctx, window.Key())
	}

	members, err := s.store.ActiveMembers(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	sent := 0
	for _, member := range members {
		if err := s.sender.SendMessage(member.ChatID, dailyQuestion); err != nil {
			s.log.Error("prompt delivery failed", "group", group.ID, "chat", member.ChatID, "err", err)
			continue
		}
		sent++
	}
	s.log.Info("window opened", "group", group.ID, "date", window.Date,
		"deadline", window.Deadline, "prompted", sent, "members", len(members))
	return window, nil
}

// sweep is the periodic pass: refresh group schedules, close due
// windows, and resume summarizing windows abandoned by a crash.
func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
	defer cancel()

	if err := s.Reload(ctx); err != nil {
		s.log.Error("sweep: reload groups", "err", err)
	}

	now := time.Now()

	due, err := s.store.DueWindows(ctx, now)
	if err != nil {
		s.log.Error("sweep: list due windows", "err", err)
		return
	}
	for _, w := range due {
		s.claimAndSummarize(w)
	}

	stale, err := s.store.StaleSummarizing(ctx, now.Add(-s.lease))
	if err != nil {
		s.log.Error("sweep: list stale windows", "err", err)
		return
	}
	for _, w := range stale {
		if s.markInflight(w.ID) {
			s.log.Warn("resuming interrupted summarization", "group", w.GroupID, "date", w.Date)
			go s.summarize(w)
		}
	}
}

// SummarizeEarly closes a collecting window ahead of its deadline,
// typically because every member has already reported. Reports whether
// this call claimed the window.
func (s *Scheduler) SummarizeEarly(ctx context.Context, key db.WindowKey) bool {
	window, err := s.store.WindowByKey(ctx, key)
	if err != nil {
		return false
	}
	return s.claimAndSummarize(*window)
}

// claimAndSummarize performs the collecting -> summarizing transition
// and, on winning it, runs the summarization in its own goroutine so
// one group's slow or failing summary never delays another group.
func (s *Scheduler) claimAndSummarize(w db.ReportWindow) bool {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	claimed, err := s.store.TransitionWindow(ctx, w.ID, db.WindowCollecting, db.WindowSummarizing)
	if err != nil {
		s.log.Error("claim window", "group", w.GroupID, "date", w.Date, "err", err)
		return false
	}
	if !claimed || !s.markInflight(w.ID) {
		return false
	}
	go s.summarize(w)
	return true
}

// summarize runs with the window already in the summarizing state and
// no store locks held across the gateway call.
func (s *Scheduler) summarize(w db.ReportWindow) {
	defer s.clearInflight(w.ID)

	ctx := s.ctx

	group, err := s.store.GroupByID(ctx, w.GroupID)
	if err != nil {
		s.log.Error("summarize: load group", "group", w.GroupID, "err", err)
		return
	}

	reports, err := s.store.ReportsForWindow(ctx, w.ID)
	if err != nil {
		s.log.Error("summarize: snapshot reports", "group", w.GroupID, "date", w.Date, "err", err)
		return
	}
	members, err := s.store.ActiveMembers(ctx, w.GroupID)
	if err != nil {
		s.log.Error("summarize: list members", "group", w.GroupID, "err", err)
		return
	}
	absent := missingNames(members, reports)

	outcome, err := s.gw.Summarize(ctx, *group, w, reports, absent)
	if err != nil {
		// Interrupted, typically by shutdown. The window stays in
		// summarizing so the next sweep resumes it.
		s.log.Warn("summarization interrupted", "group", w.GroupID, "date", w.Date, "err", err)
		return
	}

	if err := s.store.SaveSummary(ctx, &db.Summary{
		WindowID:    w.ID,
		Status:      outcome.Status,
		Content:     outcome.Content,
		Attempts:    outcome.Attempts,
		GeneratedAt: outcome.GeneratedAt,
	}); err != nil {
		s.log.Error("summarize: save summary", "group", w.GroupID, "date", w.Date, "err", err)
		return
	}

	final := db.WindowCompleted
	if outcome.Status == db.SummaryFailed {
		final = db.WindowFailed
	}
	if _, err := s.store.TransitionWindow(ctx, w.ID, db.WindowSummarizing, final); err != nil {
		s.log.Error("summarize: finalize window", "group", w.GroupID, "date", w.Date, "err", err)
		return
	}
	s.log.Info("window finished", "group", w.GroupID, "date", w.Date, "state", final, "attempts", outcome.Attempts)

	s.deliver(*group, w, outcome, len(members), len(reports))
}

func (s *Scheduler) deliver(group db.Group, w db.ReportWindow, outcome gateway.Outcome, members, reported int) {
	var b strings.Builder
	if outcome.Status == db.SummaryCompleted {
		fmt.Fprintf(&b, "Daily summary for '%s', %s\n", group.Name, w.Date)
	} else {
		fmt.Fprintf(&b, "Summary generation failed for '%s', %s (after %d attempts). Raw reports below.\n",
			group.Name, w.Date, outcome.Attempts)
	}
	fmt.Fprintf(&b, "Members: %d, reported: %d, missing: %d\n\n", members, reported, members-reported)
	b.WriteString(outcome.Content)

	for i, chunk := range splitMessage(b.String(), maxMessageLen) {
		text := chunk
		if i > 0 {
			text = fmt.Sprintf("(continued %d)\n%s", i+1, chunk)
		}
		if err := s.sender.SendMessage(group.AdminChatID, text); err != nil {
			s.log.Error("summary delivery failed", "group", group.ID, "admin", group.AdminChatID, "err", err)
			return
		}
	}
}

func missingNames(members []db.User, reports []db.Report) []string {
	reported := make(map[uint]bool, len(reports))
	for _, r := range reports {
		reported[r.UserID] = true
	}
	var absent []string
	for _, m := range members {
		if reported[m.ID] {
			continue
		}
		name := m.FullName
		if name == "" && m.Username != "" {
			name = "@" + m.Username
		}
		if name == "" {
			name = fmt.Sprintf("ID:%d", m.ChatID)
		}
		absent = append(absent, name)
	}
	return absent
}

// splitMessage splits on rune boundaries; a byte split could cut a
// multibyte character in half and produce chunks Telegram rejects.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		parts = append(parts, string(runes[:limit]))
		runes = runes[limit:]
	}
	return append(parts, string(runes))
}

func (s *Scheduler) markInflight(windowID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[windowID] {
		return false
	}
	s.inflight[windowID] = true
	return true
}

func (s *Scheduler) clearInflight(windowID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, windowID)
}
