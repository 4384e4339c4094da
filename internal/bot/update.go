package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feed_mirror/internal/dialogue"
)

// toEvent converts a Telegram message into a dialogue event. Commands carry
// their arguments as Text; a mention suffix such as /help@bot is dropped.
func toEvent(msg *tgbotapi.Message) dialogue.Event {
	ev := dialogue.Event{
		UserID:    msg.From.ID,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Text:      msg.Text,
	}
	if msg.IsCommand() {
		ev.Command = dialogue.ParseCommand(msg.Command())
		ev.Text = strings.TrimSpace(msg.CommandArguments())
	}
	if fc := msg.ForwardFromChat; fc != nil {
		ev.Forward = &dialogue.ForwardOrigin{
			ChatID:     fc.ID,
			Kind:       dialogue.ChatKind(fc.Type),
			Title:      fc.Title,
			Username:   fc.UserName,
			InviteLink: fc.InviteLink,
		}
	}
	return ev
}
