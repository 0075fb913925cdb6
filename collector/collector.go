// Package collector accepts daily report submissions, one per user per
// open window. Resubmission overwrites; late or unauthorized
// submissions are rejected with typed errors.
package collector

import (
	"context"
	"errors"
	"time"

	log15 "github.com/inconshreveable/log15/v3"

	"DailyPulse/db"
)

var (
	ErrUserNotActive = errors.New("user is not an active group member")
	ErrWindowClosed  = errors.New("report window is closed")
)

type Collector struct {
	store db.Store
	log   log15.Logger
}

// Receipt confirms a stored submission. AllReported is true when every
// active member of the group has now reported for the window, which
// lets the caller trigger an early summary.
type Receipt struct {
	Window      db.ReportWindow
	AllReported bool
}

func New(store db.Store, log log15.Logger) *Collector {
	return &Collector{store: store, log: log}
}

// Submit records text as the user's report for today's window of their
// group. Within the open window, last write wins.
func (c *Collector) Submit(ctx context.Context, chatID int64, text string, now time.Time) (*Receipt, error) {
	user, err := c.store.UserByChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrUserNotActive
		}
		return nil, err
	}
	if user.State != db.UserActive || user.GroupID == nil {
		return nil, ErrUserNotActive
	}

	group, err := c.store.GroupByID(ctx, *user.GroupID)
	if err != nil {
		return nil, err
	}
	if group.State != db.GroupActive {
		return nil, ErrUserNotActive
	}

	// The open window can carry yesterday's date when collection runs
	// past midnight, so resolve it by state rather than by today's date.
	window, err := c.store.CollectingWindow(ctx, group.ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrWindowClosed
		}
		return nil, err
	}
	if now.After(window.Deadline) {
		return nil, ErrWindowClosed
	}

	report := &db.Report{
		WindowID:    window.ID,
		UserID:      user.ID,
		ChatID:      user.ChatID,
		FullName:    user.FullName,
		Content:     text,
		SubmittedAt: now.UTC(),
	}
	if err := c.store.UpsertReport(ctx, report); err != nil {
		return nil, err
	}
	c.log.Info("report recorded", "group", group.ID, "date", window.Date, "chat", chatID)

	members, err := c.store.ActiveMembers(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	count, err := c.store.CountReports(ctx, window.ID)
	if err != nil {
		return nil, err
	}

	return &Receipt{
		Window:      *window,
		AllReported: len(members) > 0 && count >= int64(len(members)),
	}, nil
}

// ReportsFor returns a snapshot of the reports recorded for a window.
// Submissions that land after the snapshot are not retroactively part
// of an in-flight summarization.
func (c *Collector) ReportsFor(ctx context.Context, key db.WindowKey) ([]db.Report, error) {
	window, err := c.store.WindowByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return c.store.ReportsForWindow(ctx, window.ID)
}
