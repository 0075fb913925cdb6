package api

import (
	"time"

	"DailyPulse/db"
)

type createGroupRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	AdminChatID   int64  `json:"admin_chat_id"`
	CollectHour   *int   `json:"collect_hour"`
	CollectMinute *int   `json:"collect_minute"`
	Timezone      string `json:"timezone"`
}

type groupView struct {
	ID            uint      `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	AdminChatID   int64     `json:"admin_chat_id"`
	State         string    `json:"state"`
	CollectHour   int       `json:"collect_hour"`
	CollectMinute int       `json:"collect_minute"`
	Timezone      string    `json:"timezone"`
	CreatedAt     time.Time `json:"created_at"`
}

type activationLinkView struct {
	GroupID   uint      `json:"group_id"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
}

type windowView struct {
	GroupID  uint      `json:"group_id"`
	Date     string    `json:"date"`
	State    string    `json:"state"`
	OpenedAt time.Time `json:"opened_at"`
	Deadline time.Time `json:"deadline"`
}

type summaryView struct {
	Window      windowView `json:"window"`
	Status      string     `json:"status,omitempty"`
	Content     string     `json:"content,omitempty"`
	Attempts    int        `json:"attempts,omitempty"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}

func toGroupView(g db.Group) groupView {
	return groupView{
		ID:            g.ID,
		Name:          g.Name,
		Description:   g.Description,
		AdminChatID:   g.AdminChatID,
		State:         string(g.State),
		CollectHour:   g.CollectHour,
		CollectMinute: g.CollectMinute,
		Timezone:      g.Timezone,
		CreatedAt:     g.CreatedAt,
	}
}

func toWindowView(w db.ReportWindow) windowView {
	return windowView{
		GroupID:  w.GroupID,
		Date:     w.Date,
		State:    string(w.State),
		OpenedAt: w.OpenedAt,
		Deadline: w.Deadline,
	}
}
