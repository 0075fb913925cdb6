package db

import "time"

// UserState tracks where a user is in the activation lifecycle.
type UserState string

const (
	UserUnregistered UserState = "unregistered"
	UserPending      UserState = "pending"
	UserActive       UserState = "active"
	UserRevoked      UserState = "revoked"
)

// GroupState tracks whether a group can collect reports.
type GroupState string

const (
	GroupPending  GroupState = "pending"
	GroupActive   GroupState = "active"
	GroupDisabled GroupState = "disabled"
)

// WindowState is the persisted state of one group's daily report cycle.
// A window that does not exist yet is implicitly not started.
type WindowState string

const (
	WindowCollecting  WindowState = "collecting"
	WindowSummarizing WindowState = "summarizing"
	WindowCompleted   WindowState = "completed"
	WindowFailed      WindowState = "failed"
)

// SummaryStatus is the outcome of a summarization run for a window.
type SummaryStatus string

const (
	SummaryPending   SummaryStatus = "pending"
	SummaryCompleted SummaryStatus = "completed"
	SummaryFailed    SummaryStatus = "failed"
)

type User struct {
	ID        uint      `gorm:"primaryKey"`
	ChatID    int64     `gorm:"uniqueIndex;not null"`
	Username  string    `gorm:"index"`
	FullName  string
	GroupID   *uint     `gorm:"index"`
	State     UserState `gorm:"not null;default:unregistered"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Group struct {
	ID            uint       `gorm:"primaryKey"`
	Name          string     `gorm:"not null"`
	Description   string
	AdminChatID   int64      `gorm:"not null"`
	State         GroupState `gorm:"not null;default:pending"`
	CollectHour   int        `gorm:"not null"`
	CollectMinute int        `gorm:"not null"`
	Timezone      string     `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ActivationToken struct {
	ID         uint      `gorm:"primaryKey"`
	Token      string    `gorm:"uniqueIndex;not null"`
	GroupID    uint      `gorm:"index;not null"`
	ExpiresAt  time.Time `gorm:"not null"`
	Consumed   bool      `gorm:"not null;default:false"`
	ConsumedBy int64
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// ReportWindow is one group's one calendar day of collection and
// summarization. Date is the day in the group's timezone, formatted
// 2006-01-02; (GroupID, Date) is unique.
type ReportWindow struct {
	ID        uint        `gorm:"primaryKey"`
	GroupID   uint        `gorm:"not null;uniqueIndex:idx_windows_group_date"`
	Date      string      `gorm:"not null;size:10;uniqueIndex:idx_windows_group_date"`
	State     WindowState `gorm:"not null"`
	OpenedAt  time.Time   `gorm:"not null"`
	Deadline  time.Time   `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Report is one user's submission for one window. Resubmission within
// the open window overwrites; (WindowID, UserID) is unique.
type Report struct {
	ID          uint      `gorm:"primaryKey"`
	WindowID    uint      `gorm:"not null;uniqueIndex:idx_reports_window_user"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_reports_window_user"`
	ChatID      int64     `gorm:"not null"`
	FullName    string
	Content     string    `gorm:"not null"`
	SubmittedAt time.Time `gorm:"not null"`
}

// Summary is the aggregate produced for a window. One row per window.
type Summary struct {
	ID          uint          `gorm:"primaryKey"`
	WindowID    uint          `gorm:"not null;uniqueIndex"`
	Status      SummaryStatus `gorm:"not null"`
	Content     string
	Attempts    int `gorm:"not null"`
	GeneratedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WindowKey addresses a window by its natural key.
type WindowKey struct {
	GroupID uint
	Date    string
}

// Key returns the window's natural key.
func (w ReportWindow) Key() WindowKey {
	return WindowKey{GroupID: w.GroupID, Date: w.Date}
}
