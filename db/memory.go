package db

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is a mutex-guarded in-memory Store. It backs the tests and a
// zero-dependency local mode, and mirrors the conditional-update
// semantics of the Postgres implementation.
type Memory struct {
	mu        sync.Mutex
	users     map[uint]*User
	groups    map[uint]*Group
	tokens    map[string]*ActivationToken
	windows   map[uint]*ReportWindow
	reports   map[uint]*Report
	summaries map[uint]*Summary
	nextID    uint
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:     make(map[uint]*User),
		groups:    make(map[uint]*Group),
		tokens:    make(map[string]*ActivationToken),
		windows:   make(map[uint]*ReportWindow),
		reports:   make(map[uint]*Report),
		summaries: make(map[uint]*Summary),
	}
}

func (m *Memory) id() uint {
	m.nextID++
	return m.nextID
}

func (m *Memory) UserByChatID(_ context.Context, chatID int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ChatID == chatID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) SaveUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, existing := range m.users {
		if existing.ChatID == u.ChatID {
			existing.Username = u.Username
			existing.FullName = u.FullName
			existing.GroupID = u.GroupID
			existing.State = u.State
			existing.UpdatedAt = now
			u.ID = existing.ID
			u.CreatedAt = existing.CreatedAt
			return nil
		}
	}
	if u.ID == 0 {
		u.ID = m.id()
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *Memory) ActiveMembers(_ context.Context, groupID uint) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []User
	for _, u := range m.users {
		if u.GroupID != nil && *u.GroupID == groupID && u.State == UserActive {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *Memory) CreateGroup(_ context.Context, g *Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == 0 {
		g.ID = m.id()
	}
	if g.State == "" {
		g.State = GroupPending
	}
	g.CreatedAt = time.Now().UTC()
	g.UpdatedAt = g.CreatedAt
	cp := *g
	m.groups[g.ID] = &cp
	return nil
}

func (m *Memory) GroupByID(_ context.Context, id uint) (*Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *Memory) ListGroups(_ context.Context) ([]Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, *g)
	}
	return out, nil
}

func (m *Memory) ListActiveGroups(_ context.Context) ([]Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Group
	for _, g := range m.groups {
		if g.State == GroupActive {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *Memory) ActivateGroup(_ context.Context, id uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok || g.State != GroupPending {
		return false, nil
	}
	g.State = GroupActive
	g.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *Memory) CreateToken(_ context.Context, t *ActivationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		t.ID = m.id()
	}
	t.CreatedAt = time.Now().UTC()
	cp := *t
	m.tokens[t.Token] = &cp
	return nil
}

func (m *Memory) TokenByValue(_ context.Context, token string) (*ActivationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) ConsumeToken(_ context.Context, token string, chatID int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok || t.Consumed {
		return false, nil
	}
	t.Consumed = true
	t.ConsumedBy = chatID
	ts := at.UTC()
	t.ConsumedAt = &ts
	return true, nil
}

func (m *Memory) OpenWindow(_ context.Context, w *ReportWindow) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.windows {
		if existing.GroupID == w.GroupID && existing.Date == w.Date {
			return false, nil
		}
	}
	if w.ID == 0 {
		w.ID = m.id()
	}
	w.CreatedAt = time.Now().UTC()
	w.UpdatedAt = w.CreatedAt
	cp := *w
	m.windows[w.ID] = &cp
	return true, nil
}

func (m *Memory) WindowByKey(_ context.Context, key WindowKey) (*ReportWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.windows {
		if w.GroupID == key.GroupID && w.Date == key.Date {
			cp := *w
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CollectingWindow(_ context.Context, groupID uint) (*ReportWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *ReportWindow
	for _, w := range m.windows {
		if w.GroupID == groupID && w.State == WindowCollecting {
			if best == nil || w.Date > best.Date {
				best = w
			}
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *Memory) WindowByID(_ context.Context, id uint) (*ReportWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *Memory) ListWindows(_ context.Context, groupID uint) ([]ReportWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ReportWindow
	for _, w := range m.windows {
		if w.GroupID == groupID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

func (m *Memory) DueWindows(_ context.Context, now time.Time) ([]ReportWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ReportWindow
	for _, w := range m.windows {
		if w.State == WindowCollecting && !w.Deadline.After(now) {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *Memory) StaleSummarizing(_ context.Context, cutoff time.Time) ([]ReportWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ReportWindow
	for _, w := range m.windows {
		if w.State == WindowSummarizing && !w.UpdatedAt.After(cutoff) {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *Memory) TransitionWindow(_ context.Context, id uint, from, to WindowState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[id]
	if !ok || w.State != from {
		return false, nil
	}
	w.State = to
	w.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *Memory) UpsertReport(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reports {
		if existing.WindowID == r.WindowID && existing.UserID == r.UserID {
			existing.Content = r.Content
			existing.FullName = r.FullName
			existing.SubmittedAt = r.SubmittedAt
			r.ID = existing.ID
			return nil
		}
	}
	if r.ID == 0 {
		r.ID = m.id()
	}
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *Memory) ReportsForWindow(_ context.Context, windowID uint) ([]Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Report
	for _, r := range m.reports {
		if r.WindowID == windowID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *Memory) CountReports(_ context.Context, windowID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.reports {
		if r.WindowID == windowID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) SaveSummary(_ context.Context, s *Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, existing := range m.summaries {
		if existing.WindowID == s.WindowID {
			existing.Status = s.Status
			existing.Content = s.Content
			existing.Attempts = s.Attempts
			existing.GeneratedAt = s.GeneratedAt
			existing.UpdatedAt = now
			s.ID = existing.ID
			return nil
		}
	}
	if s.ID == 0 {
		s.ID = m.id()
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	cp := *s
	m.summaries[s.ID] = &cp
	return nil
}

func (m *Memory) SummaryForWindow(_ context.Context, windowID uint) (*Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.summaries {
		if s.WindowID == windowID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}
