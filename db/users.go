package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (g *Gorm) UserByChatID(ctx context.Context, chatID int64) (*User, error) {
	var u User
	err := g.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("UserByChatID %d: %w", chatID, err)
	}
	return &u, nil
}

// SaveUser inserts the user or, if the chat id is already known,
// updates the mutable profile and membership fields.
func (g *Gorm) SaveUser(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	u.UpdatedAt = now
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}

	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "full_name", "group_id", "state", "updated_at",
		}),
	}).Create(u).Error
	if err != nil {
		return fmt.Errorf("SaveUser %d: %w", u.ChatID, err)
	}
	return nil
}

func (g *Gorm) ActiveMembers(ctx context.Context, groupID uint) ([]User, error) {
	var users []User
	err := g.db.WithContext(ctx).
		Where("group_id = ? AND state = ?", groupID, UserActive).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("ActiveMembers %d: %w", groupID, err)
	}
	return users, nil
}
