package db

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"
)

// UpsertReport stores a submission, overwriting any earlier one for the
// same (user, window) pair. Last write wins, never a duplicate row.
func (g *Gorm) UpsertReport(ctx context.Context, r *Report) error {
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "window_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"content", "full_name", "submitted_at",
		}),
	}).Create(r).Error
	if err != nil {
		return fmt.Errorf("UpsertReport window %d user %d: %w", r.WindowID, r.UserID, err)
	}
	return nil
}

func (g *Gorm) ReportsForWindow(ctx context.Context, windowID uint) ([]Report, error) {
	var reports []Report
	err := g.db.WithContext(ctx).
		Where("window_id = ?", windowID).
		Order("submitted_at").
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("ReportsForWindow %d: %w", windowID, err)
	}
	return reports, nil
}

func (g *Gorm) CountReports(ctx context.Context, windowID uint) (int64, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&Report{}).
		Where("window_id = ?", windowID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("CountReports %d: %w", windowID, err)
	}
	return n, nil
}
