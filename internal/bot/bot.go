// Package bot connects Telegram updates to the inspection session engine.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"inspection-bot/internal/domain"
	"inspection-bot/internal/integrations/telegram"
	"inspection-bot/internal/logging"
	"inspection-bot/internal/session"
)

const msgNotAllowed = "This chat is not allowed to record inspections."

// Messenger is the part of the Telegram client the bot uses.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb *telegram.InlineKeyboardMarkup) (int64, error)
	EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, kb *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// TurnHandler processes one user event and returns the replies to send.
type TurnHandler interface {
	Handle(ctx context.Context, chatID int64, ev session.Event) []domain.Reply
	Snapshot(chatID int64) (session.State, int)
}

type Bot struct {
	msgr    Messenger
	turns   TurnHandler
	allowed map[int64]struct{}
}

// New builds a bot. An empty allow-list lets every chat through.
func New(msgr Messenger, turns TurnHandler, allowed map[int64]struct{}) (*Bot, error) {
	if msgr == nil {
		return nil, errors.New("bot: messenger must not be nil")
	}
	if turns == nil {
		return nil, errors.New("bot: turn handler must not be nil")
	}
	return &Bot{msgr: msgr, turns: turns, allowed: allowed}, nil
}

// HandleUpdate runs one update to completion: it maps the update to a
// session event, runs the turn and delivers every reply. Delivery errors are
// joined; a failed reply does not stop the following ones.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) error {
	chatID := u.ChatID()
	if chatID == 0 {
		return nil
	}
	ctx = logging.WithChat(ctx, chatID)
	log := logging.FromContext(ctx)

	if cq := u.CallbackQuery; cq != nil {
		if err := b.msgr.AnswerCallbackQuery(ctx, cq.ID, ""); err != nil {
			log.Warn("answer callback failed", "err", err)
		}
	}

	if !b.isAllowed(chatID) {
		log.Warn("update from chat outside allow-list")
		if _, err := b.msgr.SendMessage(ctx, chatID, msgNotAllowed, nil); err != nil {
			return fmt.Errorf("bot: reply to disallowed chat: %w", err)
		}
		return nil
	}

	ev, ok := b.toEvent(u)
	if !ok {
		log.Debug("ignoring unsupported update", "update_id", u.UpdateID)
		return nil
	}

	replies := b.turns.Handle(ctx, chatID, ev)

	var errs []error
	closed := false
	for _, r := range replies {
		if r.CloseKeyboard && !closed {
			closed = true
			if msg := pressedMessage(u); msg != nil {
				if err := b.msgr.EditMessageReplyMarkup(ctx, chatID, msg.MessageID, nil); err != nil {
					log.Warn("remove keyboard failed", "message_id", msg.MessageID, "err", err)
				}
			}
		}
		if r.Text == "" {
			continue
		}
		if _, err := b.msgr.SendMessage(ctx, chatID, r.Text, keyboard(r.Keyboard)); err != nil {
			errs = append(errs, err)
		}
	}
	if log.Enabled(ctx, slog.LevelDebug) {
		st, n := b.turns.Snapshot(chatID)
		log.Debug("update delivered", "state", st.String(), "entries", n, "replies", len(replies))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("bot: deliver replies: %w", err)
	}
	return nil
}

func (b *Bot) isAllowed(chatID int64) bool {
	if len(b.allowed) == 0 {
		return true
	}
	_, ok := b.allowed[chatID]
	return ok
}

func (b *Bot) toEvent(u telegram.Update) (session.Event, bool) {
	if cq := u.CallbackQuery; cq != nil {
		if cq.Data == "" {
			return nil, false
		}
		return session.ButtonPress{Token: cq.Data}, true
	}
	m := u.Message
	if m == nil {
		return nil, false
	}
	if size, ok := m.LargestPhoto(); ok {
		fileID := size.FileID
		return session.Photo{
			Caption: m.Caption,
			Fetch: func(ctx context.Context) ([]byte, error) {
				return b.msgr.DownloadFile(ctx, fileID)
			},
		}, true
	}
	if m.Text == "" {
		return nil, false
	}
	return session.Text{Body: m.Text}, true
}

func pressedMessage(u telegram.Update) *telegram.Message {
	if u.CallbackQuery == nil {
		return nil
	}
	return u.CallbackQuery.Message
}

func keyboard(rows [][]domain.Button) *telegram.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: make([][]telegram.InlineKeyboardButton, 0, len(rows))}
	for _, row := range rows {
		out := make([]telegram.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			out = append(out, telegram.InlineKeyboardButton{Text: btn.Label, CallbackData: btn.Token})
		}
		kb.InlineKeyboard = append(kb.InlineKeyboard, out)
	}
	return kb
}
