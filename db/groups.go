package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

func (g *Gorm) CreateGroup(ctx context.Context, grp *Group) error {
	if grp.State == "" {
		grp.State = GroupPending
	}
	if err := g.db.WithContext(ctx).Create(grp).Error; err != nil {
		return fmt.Errorf("CreateGroup %q: %w", grp.Name, err)
	}
	return nil
}

func (g *Gorm) GroupByID(ctx context.Context, id uint) (*Group, error) {
	var grp Group
	err := g.db.WithContext(ctx).First(&grp, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GroupByID %d: %w", id, err)
	}
	return &grp, nil
}

func (g *Gorm) ListGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := g.db.WithContext(ctx).Order("id").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("ListGroups: %w", err)
	}
	return groups, nil
}

func (g *Gorm) ListActiveGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	err := g.db.WithContext(ctx).
		Where("state = ?", GroupActive).
		Order("id").
		Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("ListActiveGroups: %w", err)
	}
	return groups, nil
}

// ActivateGroup is a conditional update so that only the first
// successful redemption flips the group.
func (g *Gorm) ActivateGroup(ctx context.Context, id uint) (bool, error) {
	res := g.db.WithContext(ctx).Model(&Group{}).
		Where("id = ? AND state = ?", id, GroupPending).
		Update("state", GroupActive)
	if res.Error != nil {
		return false, fmt.Errorf("ActivateGroup %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}
