package bot

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"feed_mirror/internal/config"
	"feed_mirror/internal/dialogue"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Handler turns a user event into a reply.
type Handler interface {
	Handle(ctx context.Context, ev dialogue.Event) (string, dialogue.State)
}

// Bot is the Telegram transport: it receives updates, hands them to the
// dialogue handler one user at a time and sends the replies back.
type Bot struct {
	api     telegramAPI
	handler Handler
	cfg     *config.Config
	log     *slog.Logger
	queues  *userQueues
}

// New creates a Bot on top of an authenticated Telegram API client.
func New(api *tgbotapi.BotAPI, handler Handler, cfg *config.Config, log *slog.Logger) *Bot {
	return newBot(api, handler, cfg, log)
}

func newBot(api telegramAPI, handler Handler, cfg *config.Config, log *slog.Logger) *Bot {
	return &Bot{
		api:     api,
		handler: handler,
		cfg:     cfg,
		log:     log,
		queues:  newUserQueues(),
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled or
// the update channel is closed. Events already queued are handled before Run
// returns.
func (b *Bot) Run(ctx context.Context) {
	b.registerCommands()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.queues.wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) registerCommands() {
	cmds := lo.Map(dialogue.Commands, func(c dialogue.CommandInfo, _ int) tgbotapi.BotCommand {
		return tgbotapi.BotCommand{Command: c.Name, Description: c.Description}
	})
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(cmds...)); err != nil {
		b.log.Warn("register commands", "error", err)
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	if !b.cfg.IsUserAllowed(msg.From.ID) {
		b.reply(msg.Chat.ID, msg.MessageID, "Access denied.")
		return
	}

	ev := toEvent(msg)
	b.log.Debug("event", "user_id", ev.UserID, "chat_id", ev.ChatID, "command", msg.Command(), "forward", ev.Forward != nil)

	// Handlers outlive a shutdown request so a started step is answered.
	hctx := context.WithoutCancel(ctx)
	b.queues.push(ev.UserID, func() {
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("handler panic", "user_id", ev.UserID, "panic", r)
			}
		}()
		reply, st := b.handler.Handle(hctx, ev)
		b.log.Debug("handled", "user_id", ev.UserID, "state", st)
		b.reply(ev.ChatID, ev.MessageID, reply)
	})
}

func (b *Bot) reply(chatID int64, replyTo int, text string) {
	if text == "" {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	msg.AllowSendingWithoutReply = true
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}
