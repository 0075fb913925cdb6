package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OpenWindow inserts the window unless one already exists for the same
// (group, date) key. Re-triggering a day's cycle is therefore a no-op.
func (g *Gorm) OpenWindow(ctx context.Context, w *ReportWindow) (bool, error) {
	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}, {Name: "date"}},
		DoNothing: true,
	}).Create(w)
	if res.Error != nil {
		return false, fmt.Errorf("OpenWindow group %d date %s: %w", w.GroupID, w.Date, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (g *Gorm) WindowByKey(ctx context.Context, key WindowKey) (*ReportWindow, error) {
	var w ReportWindow
	err := g.db.WithContext(ctx).
		Where("group_id = ? AND date = ?", key.GroupID, key.Date).
		First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("WindowByKey group %d date %s: %w", key.GroupID, key.Date, err)
	}
	return &w, nil
}

func (g *Gorm) CollectingWindow(ctx context.Context, groupID uint) (*ReportWindow, error) {
	var w ReportWindow
	err := g.db.WithContext(ctx).
		Where("group_id = ? AND state = ?", groupID, WindowCollecting).
		Order("date DESC").
		First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("CollectingWindow %d: %w", groupID, err)
	}
	return &w, nil
}

func (g *Gorm) WindowByID(ctx context.Context, id uint) (*ReportWindow, error) {
	var w ReportWindow
	err := g.db.WithContext(ctx).First(&w, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("WindowByID %d: %w", id, err)
	}
	return &w, nil
}

func (g *Gorm) ListWindows(ctx context.Context, groupID uint) ([]ReportWindow, error) {
	var windows []ReportWindow
	err := g.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("date DESC").
		Find(&windows).Error
	if err != nil {
		return nil, fmt.Errorf("ListWindows %d: %w", groupID, err)
	}
	return windows, nil
}

func (g *Gorm) DueWindows(ctx context.Context, now time.Time) ([]ReportWindow, error) {
	var windows []ReportWindow
	err := g.db.WithContext(ctx).
		Where("state = ? AND deadline <= ?", WindowCollecting, now.UTC()).
		Find(&windows).Error
	if err != nil {
		return nil, fmt.Errorf("DueWindows: %w", err)
	}
	return windows, nil
}

func (g *Gorm) StaleSummarizing(ctx context.Context, cutoff time.Time) ([]ReportWindow, error) {
	var windows []ReportWindow
	err := g.db.WithContext(ctx).
		Where("state = ? AND updated_at <= ?", WindowSummarizing, cutoff.UTC()).
		Find(&windows).Error
	if err != nil {
		return nil, fmt.Errorf("StaleSummarizing: %w", err)
	}
	return windows, nil
}

// TransitionWindow guards the per-window state machine with a
// conditional update, so only one transition per window is in flight.
func (g *Gorm) TransitionWindow(ctx context.Context, id uint, from, to WindowState) (bool, error) {
	res := g.db.WithContext(ctx).Model(&ReportWindow{}).
		Where("id = ? AND state = ?", id, from).
		Updates(map[string]any{"state": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("TransitionWindow %d %s->%s: %w", id, from, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}
