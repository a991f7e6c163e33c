package telegram

import (
	"fmt"

	"naira-wallet-bot-go/internal/engine"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Render turns one effect into a Bot API request.
func Render(effect engine.Effect) (tgbotapi.Chattable, error) {
	switch e := effect.(type) {
	case engine.SendText:
		msg := tgbotapi.NewMessage(e.ChatId, e.Text)
		if e.Markdown {
			msg.ParseMode = tgbotapi.ModeMarkdown
		}
		switch {
		case e.Inline != nil:
			msg.ReplyMarkup = inlineMarkup(e.Inline)
		case e.Reply != nil:
			msg.ReplyMarkup = replyMarkup(e.Reply)
		}
		return msg, nil

	case engine.EditMessage:
		edit := tgbotapi.NewEditMessageText(e.ChatId, e.MessageId, e.Text)
		if e.Markdown {
			edit.ParseMode = tgbotapi.ModeMarkdown
		}
		if e.Inline != nil {
			markup := inlineMarkup(e.Inline)
			edit.ReplyMarkup = &markup
		}
		return edit, nil

	case engine.AnswerCallback:
		if e.Alert {
			return tgbotapi.NewCallbackWithAlert(e.CallbackId, e.Text), nil
		}
		return tgbotapi.NewCallback(e.CallbackId, e.Text), nil

	case engine.DeleteMessage:
		return tgbotapi.NewDeleteMessage(e.ChatId, e.MessageId), nil

	default:
		return nil, fmt.Errorf("unsupported effect %T", effect)
	}
}

func inlineMarkup(kb *engine.InlineKeyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, r := range kb.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func replyMarkup(kb *engine.ReplyKeyboard) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
	for _, r := range kb.Rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(r))
		for _, label := range r {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.OneTimeKeyboard = kb.OneTime
	return markup
}
