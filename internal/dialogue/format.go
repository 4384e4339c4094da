package dialogue

import (
	"fmt"
	"strings"

	"feed_mirror/internal/model"
)

const (
	msgCancelled         = "Cancelled. Back to the main menu."
	msgUnknownCommand    = "Unknown command. Use /help for a list of commands."
	msgBusy              = "Finish the current step first."
	msgIdleText          = "I only understand commands here. Use /help for a list of commands."
	msgTryLater          = "Something went wrong while talking to Telegram or the database. Try again later."
	msgGenericFailure    = "Sorry, that didn't work. Please start over."
	msgNoChannels        = "You have no linked channels where both you and this bot are administrators. Use /linkchannel to add one."
	msgForwardPrompt     = "Got it. Forward a message from the channel here.\nRemember that this bot needs to be an administrator in that channel first."
	msgNotForward        = "This message is not a forward."
	msgNotChannelForward = "This message is not forwarded from a channel."
	msgBotNotAdmin       = "This bot is not an administrator in this channel."
	msgUserNotAdmin      = "You are not an administrator in this channel."
	msgChannelIDInvalid  = "Please send the numeric ID of one of the listed channels."
	msgChannelNotFound   = "Couldn't find the channel. Please send the ID of an already linked channel."
	msgNotAdminPair      = "Both you and this bot must be administrators of that channel."
)

func helpText() string {
	var b strings.Builder
	b.WriteString("These commands are supported:\n")
	for _, c := range Commands {
		fmt.Fprintf(&b, "/%s — %s\n", c.Name, c.Description)
	}
	return b.String()
}

// withCancelHint appends the retry instructions used by every prompt that
// keeps the user in the current step.
func (e *Engine) withCancelHint(msg string) string {
	cancel := "/cancel"
	if e.cfg.BotUsername != "" {
		cancel += "@" + e.cfg.BotUsername
	}
	return fmt.Sprintf("%s Try again or use command %s", msg, cancel)
}

// FormatChannelList formats channels with their chat IDs for selection.
func FormatChannelList(channels []model.Channel) string {
	var b strings.Builder
	for _, ch := range channels {
		fmt.Fprintf(&b, "Channel name: %s\nChannel id: %d\n\n", ch.Title, ch.ChatID)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatFeedList formats feeds with their external IDs.
func FormatFeedList(feeds []model.Feed) string {
	var b strings.Builder
	for _, f := range feeds {
		fmt.Fprintf(&b, "%s (id: %s)\n", f.Name, f.ExternalID)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatChannelFeeds formats channels together with the feeds mirrored into
// them. feeds is keyed by channel row ID.
func FormatChannelFeeds(channels []model.Channel, feeds map[int64][]model.Feed) string {
	var b strings.Builder
	b.WriteString("Your channels:\n")
	for _, ch := range channels {
		fmt.Fprintf(&b, "\nChannel name: %s\nChannel id: %d\n", ch.Title, ch.ChatID)
		fs := feeds[ch.ID]
		if len(fs) == 0 {
			b.WriteString("   no feeds\n")
			continue
		}
		for _, f := range fs {
			status := ""
			if f.Disabled {
				status = " [disabled]"
			}
			fmt.Fprintf(&b, "   %s%s\n", f.Name, status)
		}
	}
	return b.String()
}
