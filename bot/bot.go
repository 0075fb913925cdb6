// Package bot is the Telegram transport: it receives updates over long
// polling, routes them to the activation manager and report collector,
// and sends outbound messages for the scheduler.
package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log15 "github.com/inconshreveable/log15/v3"

	"DailyPulse/activation"
	"DailyPulse/collector"
	"DailyPulse/db"
)

// EarlyTrigger lets the bot hand a fully-reported window to the
// scheduler ahead of its deadline.
type EarlyTrigger interface {
	SummarizeEarly(ctx context.Context, key db.WindowKey) bool
}

type Bot struct {
	api   *tgbotapi.BotAPI
	log   log15.Logger
	store db.Store
	act   *activation.Manager
	col   *collector.Collector
	early EarlyTrigger
}

func New(api *tgbotapi.BotAPI, log log15.Logger, store db.Store, act *activation.Manager, col *collector.Collector) *Bot {
	return &Bot{api: api, log: log, store: store, act: act, col: col}
}

// SetEarlyTrigger wires the scheduler in after construction; the
// scheduler itself is built with this bot as its Sender.
func (b *Bot) SetEarlyTrigger(t EarlyTrigger) { b.early = t }

// Username is the bot's Telegram username, used in activation links.
func (b *Bot) Username() string { return b.api.Self.UserName }

// SendMessage satisfies scheduler.Sender.
func (b *Bot) SendMessage(chatID int64, text string) error {
	_, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// Run polls for updates until ctx is canceled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	b.log.Info("bot polling started", "username", b.Username())
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Info("bot polling stopped")
			return
		case upd := <-updates:
			b.handleUpdate(ctx, upd)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || !msg.Chat.IsPrivate() {
		return
	}

	hCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch {
	case msg.IsCommand() && msg.Command() == "start":
		if token := strings.TrimSpace(msg.CommandArguments()); token != "" {
			b.handleRedeem(hCtx, msg, token)
			return
		}
		b.handleStatus(hCtx, msg)
	case msg.IsCommand() && msg.Command() == "status":
		b.handleStatus(hCtx, msg)
	case msg.Text != "":
		b.handleReport(hCtx, msg)
	}
}

func (b *Bot) handleRedeem(ctx context.Context, msg *tgbotapi.Message, token string) {
	chatID := msg.Chat.ID
	res, err := b.act.Redeem(ctx, token, chatID, msg.From.UserName, fullName(msg.From))

	switch {
	case err == nil && res.Replayed:
		b.reply(chatID, textAlreadyActive(res.Group))
	case err == nil:
		b.reply(chatID, textWelcome(res.Group))
	case errors.Is(err, activation.ErrTokenNotFound):
		b.reply(chatID, textTokenNotFound)
	case errors.Is(err, activation.ErrTokenExpired):
		b.reply(chatID, textTokenExpired)
	case errors.Is(err, activation.ErrTokenConsumed):
		b.reply(chatID, textTokenConsumed)
	default:
		b.log.Error("redeem failed", "chat", chatID, "err", err)
		b.reply(chatID, textError)
	}
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	user, err := b.store.UserByChatID(ctx, chatID)
	if err != nil || user.State != db.UserActive || user.GroupID == nil {
		b.reply(chatID, textNotRegistered)
		return
	}
	group, err := b.store.GroupByID(ctx, *user.GroupID)
	if err != nil {
		b.log.Error("status: load group", "chat", chatID, "err", err)
		b.reply(chatID, textError)
		return
	}
	b.reply(chatID, textAlreadyActive(*group))
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	receipt, err := b.col.Submit(ctx, chatID, msg.Text, time.Now())

	switch {
	case err == nil:
		b.reply(chatID, textReportSaved)
		if receipt.AllReported && b.early != nil {
			if b.early.SummarizeEarly(ctx, receipt.Window.Key()) {
				b.log.Info("early summary triggered", "group", receipt.Window.GroupID, "date", receipt.Window.Date)
			}
		}
	case errors.Is(err, collector.ErrUserNotActive):
		b.reply(chatID, textNotRegistered)
	case errors.Is(err, collector.ErrWindowClosed):
		b.reply(chatID, textWindowClosed)
	default:
		b.log.Error("submit failed", "chat", chatID, "err", err)
		b.reply(chatID, textError)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.SendMessage(chatID, text); err != nil {
		b.log.Error("reply failed", "chat", chatID, "err", err)
	}
}

func fullName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}
