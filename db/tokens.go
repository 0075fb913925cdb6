package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

func (g *Gorm) CreateToken(ctx context.Context, t *ActivationToken) error {
	if err := g.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("CreateToken group %d: %w", t.GroupID, err)
	}
	return nil
}

func (g *Gorm) TokenByValue(ctx context.Context, token string) (*ActivationToken, error) {
	var t ActivationToken
	err := g.db.WithContext(ctx).Where("token = ?", token).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("TokenByValue: %w", err)
	}
	return &t, nil
}

// ConsumeToken is a single conditional UPDATE: concurrent redemptions of
// the same unconsumed token serialize to exactly one winner.
func (g *Gorm) ConsumeToken(ctx context.Context, token string, chatID int64, at time.Time) (bool, error) {
	res := g.db.WithContext(ctx).Model(&ActivationToken{}).
		Where("token = ? AND consumed = ?", token, false).
		Updates(map[string]any{
			"consumed":    true,
			"consumed_by": chatID,
			"consumed_at": at.UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("ConsumeToken: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
