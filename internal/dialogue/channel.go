package dialogue

import (
	"context"
	"fmt"

	"feed_mirror/internal/model"
)

func (e *Engine) onLinkChannel() (string, State, error) {
	return msgForwardPrompt, AwaitingForwardedChannel{}, nil
}

func (e *Engine) onForwardedChannel(ctx context.Context, ev Event) (string, State, error) {
	retry := AwaitingForwardedChannel{}

	fw := ev.Forward
	if fw == nil {
		return e.withCancelHint(msgNotForward), retry, nil
	}
	if fw.Kind != ChatChannel {
		return e.withCancelHint(msgNotChannelForward), retry, nil
	}

	ok, err := e.isAdmin(ctx, fw.ChatID, e.cfg.BotID)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return e.withCancelHint(msgBotNotAdmin), retry, nil
	}
	ok, err = e.isAdmin(ctx, fw.ChatID, ev.UserID)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return e.withCancelHint(msgUserNotAdmin), retry, nil
	}

	ch := &model.Channel{
		ChatID:     fw.ChatID,
		Title:      fw.Title,
		Username:   optional(fw.Username),
		InviteLink: optional(fw.InviteLink),
	}
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	if err := e.store.UpsertChannel(cctx, ch); err != nil {
		return "", nil, fmt.Errorf("save channel: %w", err)
	}

	e.log.Info("channel linked", "user_id", ev.UserID, "chat_id", ch.ChatID, "title", ch.Title)
	return fmt.Sprintf("Added the channel %s (id: %d). Now you can add feeds to this channel with /linkfeed.",
		ch.Title, ch.ChatID), MainMenu{}, nil
}

func (e *Engine) onListChannels(ctx context.Context, ev Event) (string, State, error) {
	channels, err := e.authorizedChannels(ctx, ev.UserID)
	if err != nil {
		return "", nil, err
	}
	if len(channels) == 0 {
		return msgNoChannels, MainMenu{}, nil
	}

	feeds := make(map[int64][]model.Feed, len(channels))
	for _, ch := range channels {
		cctx, cancel := e.callCtx(ctx)
		fs, err := e.store.FeedsForChannel(cctx, ch.ID)
		cancel()
		if err != nil {
			return "", nil, fmt.Errorf("list feeds of %d: %w", ch.ChatID, err)
		}
		feeds[ch.ID] = fs
	}
	return FormatChannelFeeds(channels, feeds), MainMenu{}, nil
}

func (e *Engine) onUnlinkChannel(ctx context.Context, ev Event) (string, State, error) {
	channels, err := e.authorizedChannels(ctx, ev.UserID)
	if err != nil {
		return "", nil, err
	}
	if len(channels) == 0 {
		return msgNoChannels, MainMenu{}, nil
	}
	return "Okay. Type the ID of the channel you want to unlink:\n\n" + FormatChannelList(channels),
		AwaitingUnlinkChannelID{}, nil
}

func (e *Engine) onUnlinkChannelID(ctx context.Context, ev Event) (string, State, error) {
	ch, reply, err := e.pickChannel(ctx, ev)
	if err != nil {
		return "", nil, err
	}
	if ch == nil {
		return reply, AwaitingUnlinkChannelID{}, nil
	}
	return fmt.Sprintf("Are you sure you want to remove channel \"%s\" (id: %d)? Type the channel title to remove it.",
		ch.Title, ch.ChatID), AwaitingUnlinkConfirmation{Channel: *ch}, nil
}

func (e *Engine) onUnlinkConfirmation(ctx context.Context, ev Event, s AwaitingUnlinkConfirmation) (string, State, error) {
	if ev.Text != s.Channel.Title {
		return "Cancelled unlinking channel.", MainMenu{}, nil
	}

	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	n, err := e.store.DeleteChannel(cctx, s.Channel.ChatID)
	if err != nil {
		return "", nil, fmt.Errorf("delete channel: %w", err)
	}
	if n == 0 {
		return "Sorry, I couldn't unlink the channel. Try again later.", MainMenu{}, nil
	}

	e.log.Info("channel unlinked", "user_id", ev.UserID, "chat_id", s.Channel.ChatID)
	return fmt.Sprintf("Successfully unlinked channel \"%s\".", s.Channel.Title), MainMenu{}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
