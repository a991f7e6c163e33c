package telegram

import (
	"strconv"

	"naira-wallet-bot-go/internal/engine"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// EventFromUpdate maps an update onto an engine event. Updates the engine
// has no use for (edits, channel posts, stickers) report false.
func EventFromUpdate(u tgbotapi.Update) (engine.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.From == nil || q.Message == nil || q.Message.Chat == nil {
			return nil, false
		}
		return engine.ButtonPress{
			UserId:     strconv.FormatInt(q.From.ID, 10),
			ChatId:     q.Message.Chat.ID,
			MessageId:  q.Message.MessageID,
			CallbackId: q.ID,
			Data:       q.Data,
		}, true

	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.Chat == nil || m.Text == "" {
			return nil, false
		}
		return engine.TextMessage{
			UserId: strconv.FormatInt(m.From.ID, 10),
			ChatId: m.Chat.ID,
			Text:   m.Text,
		}, true
	}
	return nil, false
}
