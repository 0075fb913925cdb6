package db

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("db: not found")

// Store is the persistence boundary for the whole service. It is the
// sole writer of durable state; callers never cache rows across calls.
// Compare-and-set operations report whether this caller won the update
// so that concurrent attempts serialize to a single winner.
type Store interface {
	// Users
	UserByChatID(ctx context.Context, chatID int64) (*User, error)
	SaveUser(ctx context.Context, u *User) error
	ActiveMembers(ctx context.Context, groupID uint) ([]User, error)

	// Groups
	CreateGroup(ctx context.Context, g *Group) error
	GroupByID(ctx context.Context, id uint) (*Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	ListActiveGroups(ctx context.Context) ([]Group, error)
	// ActivateGroup flips pending to active; reports false if the
	// group was not pending.
	ActivateGroup(ctx context.Context, id uint) (bool, error)

	// Activation tokens
	CreateToken(ctx context.Context, t *ActivationToken) error
	TokenByValue(ctx context.Context, token string) (*ActivationToken, error)
	// ConsumeToken marks the token consumed by chatID if and only if
	// it is still unconsumed.
	ConsumeToken(ctx context.Context, token string, chatID int64, at time.Time) (bool, error)

	// Report windows
	// OpenWindow creates the window unless one already exists for its
	// (group, date) key; reports whether a row was created.
	OpenWindow(ctx context.Context, w *ReportWindow) (bool, error)
	WindowByKey(ctx context.Context, key WindowKey) (*ReportWindow, error)
	// CollectingWindow returns the group's current collecting window,
	// which may carry yesterday's date when collection runs past
	// midnight.
	CollectingWindow(ctx context.Context, groupID uint) (*ReportWindow, error)
	WindowByID(ctx context.Context, id uint) (*ReportWindow, error)
	ListWindows(ctx context.Context, groupID uint) ([]ReportWindow, error)
	// DueWindows returns collecting windows whose deadline has passed.
	DueWindows(ctx context.Context, now time.Time) ([]ReportWindow, error)
	// StaleSummarizing returns summarizing windows untouched since
	// cutoff, i.e. runs interrupted by a restart.
	StaleSummarizing(ctx context.Context, cutoff time.Time) ([]ReportWindow, error)
	// TransitionWindow moves a window from one state to another.
	TransitionWindow(ctx context.Context, id uint, from, to WindowState) (bool, error)

	// Reports
	UpsertReport(ctx context.Context, r *Report) error
	ReportsForWindow(ctx context.Context, windowID uint) ([]Report, error)
	CountReports(ctx context.Context, windowID uint) (int64, error)

	// Summaries
	SaveSummary(ctx context.Context, s *Summary) error
	SummaryForWindow(ctx context.Context, windowID uint) (*Summary, error)
}
