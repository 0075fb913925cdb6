package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveSummary writes the window's summary, replacing an earlier attempt.
// The unique window index keeps at most one summary row per window.
func (g *Gorm) SaveSummary(ctx context.Context, s *Summary) error {
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "window_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "content", "attempts", "generated_at", "updated_at",
		}),
	}).Create(s).Error
	if err != nil {
		return fmt.Errorf("SaveSummary window %d: %w", s.WindowID, err)
	}
	return nil
}

func (g *Gorm) SummaryForWindow(ctx context.Context, windowID uint) (*Summary, error) {
	var s Summary
	err := g.db.WithContext(ctx).Where("window_id = ?", windowID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("SummaryForWindow %d: %w", windowID, err)
	}
	return &s, nil
}
