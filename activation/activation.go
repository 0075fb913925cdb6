// Package activation turns invite tokens into group and user
// activations. Redemption is idempotent per redeemer and serializes
// concurrent attempts on one token to a single winner.
package activation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	log15 "github.com/inconshreveable/log15/v3"

	"DailyPulse/db"
)

var (
	ErrTokenNotFound = errors.New("activation token not found")
	ErrTokenExpired  = errors.New("activation token expired")
	ErrTokenConsumed = errors.New("activation token already consumed")
	ErrAlreadyActive = errors.New("group already active")
)

// Manager issues and redeems activation tokens.
type Manager struct {
	store   db.Store
	log     log15.Logger
	ttl     time.Duration
	botName string
}

// Result describes a completed activation. Replayed redemptions by the
// same user return the same result again.
type Result struct {
	Group db.Group
	User  db.User
	// Replayed is true when this call re-delivered an earlier
	// activation instead of performing a new one.
	Replayed bool
}

func New(store db.Store, log log15.Logger, ttl time.Duration, botName string) *Manager {
	return &Manager{store: store, log: log, ttl: ttl, botName: botName}
}

// IssueToken creates a fresh single-use token for a pending group.
func (m *Manager) IssueToken(ctx context.Context, groupID uint) (*db.ActivationToken, error) {
	group, err := m.store.GroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.State == db.GroupActive {
		return nil, ErrAlreadyActive
	}

	t := &db.ActivationToken{
		Token:     newToken(),
		GroupID:   groupID,
		ExpiresAt: time.Now().UTC().Add(m.ttl),
	}
	if err := m.store.CreateToken(ctx, t); err != nil {
		return nil, err
	}

	m.log.Info("issued activation token", "group", groupID, "expires", t.ExpiresAt)
	return t, nil
}

// Link renders the token as a bot deep link ready to hand to a member.
func (m *Manager) Link(t *db.ActivationToken) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", m.botName, t.Token)
}

// Redeem consumes a token on behalf of a chat user: it links the user to
// the token's group and activates the group on its first redemption.
func (m *Manager) Redeem(ctx context.Context, token string, chatID int64, username, fullName string) (*Result, error) {
	t, err := m.store.TokenByValue(ctx, token)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	if t.Consumed {
		return m.replayOrReject(ctx, t, chatID)
	}
	if time.Now().After(t.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	won, err := m.store.ConsumeToken(ctx, token, chatID, time.Now())
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost the race; re-read to decide between replay and reject.
		t, err = m.store.TokenByValue(ctx, token)
		if err != nil {
			return nil, err
		}
		return m.replayOrReject(ctx, t, chatID)
	}

	group, err := m.store.GroupByID(ctx, t.GroupID)
	if err != nil {
		return nil, err
	}

	user, err := m.store.UserByChatID(ctx, chatID)
	if errors.Is(err, db.ErrNotFound) {
		user = &db.User{ChatID: chatID}
	} else if err != nil {
		return nil, err
	}
	user.Username = username
	user.FullName = fullName
	user.GroupID = &group.ID
	user.State = db.UserActive
	if err := m.store.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	activated, err := m.store.ActivateGroup(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	if activated {
		group.State = db.GroupActive
		m.log.Info("group activated", "group", group.ID, "name", group.Name, "by", chatID)
	}

	m.log.Info("token redeemed", "group", group.ID, "chat", chatID)
	return &Result{Group: *group, User: *user}, nil
}

// replayOrReject handles an already-consumed token: the original
// redeemer gets its prior result back, anyone else gets rejected. This
// tolerates duplicate delivery of the same bot callback.
func (m *Manager) replayOrReject(ctx context.Context, t *db.ActivationToken, chatID int64) (*Result, error) {
	if t.ConsumedBy != chatID {
		return nil, ErrTokenConsumed
	}
	group, err := m.store.GroupByID(ctx, t.GroupID)
	if err != nil {
		return nil, err
	}
	user, err := m.store.UserByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return &Result{Group: *group, User: *user, Replayed: true}, nil
}

func newToken() string {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		panic(fmt.Sprintf("activation: token entropy unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
