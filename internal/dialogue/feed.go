package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"feed_mirror/internal/model"
	"feed_mirror/internal/resolver"
	"feed_mirror/internal/storage"
)

func (e *Engine) onLinkFeed(ctx context.Context, ev Event) (string, State, error) {
	channels, err := e.authorizedChannels(ctx, ev.UserID)
	if err != nil {
		return "", nil, err
	}
	if len(channels) == 0 {
		return "You have no linked channels yet. Add one with /linkchannel first.", MainMenu{}, nil
	}
	return "Type the ID of the channel the feed should be mirrored into:\n\n" + FormatChannelList(channels),
		AwaitingFeedLinkChannelID{}, nil
}

func (e *Engine) onFeedLinkChannelID(ctx context.Context, ev Event) (string, State, error) {
	ch, reply, err := e.pickChannel(ctx, ev)
	if err != nil {
		return "", nil, err
	}
	if ch == nil {
		return reply, AwaitingFeedLinkChannelID{}, nil
	}
	return fmt.Sprintf("Now send the name of the feed to mirror into \"%s\".", ch.Title),
		AwaitingFeedName{Channel: *ch}, nil
}

func (e *Engine) onFeedName(ctx context.Context, ev Event, s AwaitingFeedName) (string, State, error) {
	name := strings.TrimSpace(ev.Text)
	if name == "" {
		return e.withCancelHint("Please send the feed name as text."), s, nil
	}

	rctx, cancel := e.callCtx(ctx)
	found, err := e.resolver.Resolve(rctx, name)
	cancel()
	if err != nil {
		e.log.Info("resolve feed", "user_id", ev.UserID, "name", name, "error", err)
		return e.withCancelHint(fmt.Sprintf("Couldn't find the feed %q: %s.", name, describeResolveErr(err))), s, nil
	}

	feed, err := e.getOrCreateFeed(ctx, found)
	if err != nil {
		return "", nil, err
	}

	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	linked, err := e.store.LinkExists(cctx, s.Channel.ID, feed.ID)
	if err != nil {
		return "", nil, fmt.Errorf("check link: %w", err)
	}
	if linked {
		return fmt.Sprintf("Feed %s is already mirrored into %s.", feed.Name, s.Channel.Title), MainMenu{}, nil
	}
	if err := e.store.InsertLink(cctx, &model.ChannelFeedLink{ChannelID: s.Channel.ID, FeedID: feed.ID}); err != nil {
		return "", nil, fmt.Errorf("link feed: %w", err)
	}

	e.log.Info("feed linked", "user_id", ev.UserID, "chat_id", s.Channel.ChatID, "feed", feed.ExternalID)
	return fmt.Sprintf("Done! Feed %s is now mirrored into %s.", feed.Name, s.Channel.Title), MainMenu{}, nil
}

func (e *Engine) getOrCreateFeed(ctx context.Context, found resolver.Feed) (*model.Feed, error) {
	cctx, cancel := e.callCtx(ctx)
	defer cancel()

	feed, err := e.store.FeedByExternalID(cctx, found.ExternalID)
	if err == nil {
		return feed, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get feed: %w", err)
	}

	feed = &model.Feed{
		ExternalID: found.ExternalID,
		Name:       found.Name,
		Policy:     model.DefaultPolicy(),
	}
	if err := e.store.InsertFeed(cctx, feed); err != nil {
		return nil, fmt.Errorf("save feed: %w", err)
	}
	return feed, nil
}

func (e *Engine) onUnlinkFeed(ctx context.Context, ev Event) (string, State, error) {
	channels, err := e.authorizedChannels(ctx, ev.UserID)
	if err != nil {
		return "", nil, err
	}
	if len(channels) == 0 {
		return msgNoChannels, MainMenu{}, nil
	}
	return "Type the ID of the channel to unlink a feed from:\n\n" + FormatChannelList(channels),
		AwaitingFeedUnlinkChannelID{}, nil
}

func (e *Engine) onFeedUnlinkChannelID(ctx context.Context, ev Event) (string, State, error) {
	ch, reply, err := e.pickChannel(ctx, ev)
	if err != nil {
		return "", nil, err
	}
	if ch == nil {
		return reply, AwaitingFeedUnlinkChannelID{}, nil
	}

	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	feeds, err := e.store.FeedsForChannel(cctx, ch.ID)
	if err != nil {
		return "", nil, fmt.Errorf("list feeds: %w", err)
	}
	if len(feeds) == 0 {
		return fmt.Sprintf("No feeds are mirrored into \"%s\".", ch.Title), MainMenu{}, nil
	}
	return fmt.Sprintf("Type the name or ID of the feed to unlink from \"%s\":\n\n%s", ch.Title, FormatFeedList(feeds)),
		AwaitingFeedUnlinkName{Channel: *ch}, nil
}

func (e *Engine) onFeedUnlinkName(ctx context.Context, ev Event, s AwaitingFeedUnlinkName) (string, State, error) {
	cctx, cancel := e.callCtx(ctx)
	defer cancel()

	feeds, err := e.store.FeedsForChannel(cctx, s.Channel.ID)
	if err != nil {
		return "", nil, fmt.Errorf("list feeds: %w", err)
	}
	feed, ok := matchFeed(feeds, ev.Text)
	if !ok {
		return e.withCancelHint(fmt.Sprintf("Feed %q is not mirrored into \"%s\".", strings.TrimSpace(ev.Text), s.Channel.Title)), s, nil
	}

	n, err := e.store.DeleteLink(cctx, s.Channel.ID, feed.ID)
	if err != nil {
		return "", nil, fmt.Errorf("unlink feed: %w", err)
	}
	if n == 0 {
		return "Sorry, I couldn't unlink the feed. Try again later.", MainMenu{}, nil
	}

	e.log.Info("feed unlinked", "user_id", ev.UserID, "chat_id", s.Channel.ChatID, "feed", feed.ExternalID)
	return fmt.Sprintf("Successfully unlinked feed %s from %s.", feed.Name, s.Channel.Title), MainMenu{}, nil
}

// matchFeed finds a feed by external ID, then exact name, then name ignoring
// case and an "r/" prefix.
func matchFeed(feeds []model.Feed, input string) (model.Feed, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return model.Feed{}, false
	}
	if f, ok := lo.Find(feeds, func(f model.Feed) bool { return f.ExternalID == input }); ok {
		return f, true
	}
	if f, ok := lo.Find(feeds, func(f model.Feed) bool { return f.Name == input }); ok {
		return f, true
	}
	name := resolver.NormalizeSubreddit(input)
	return lo.Find(feeds, func(f model.Feed) bool { return strings.EqualFold(f.Name, name) })
}

func describeResolveErr(err error) string {
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		return "it does not exist or is not public"
	case errors.Is(err, resolver.ErrRateLimited):
		return "the feed service is busy, wait a minute and send the name again"
	case errors.Is(err, resolver.ErrInvalidResponse):
		return "the feed service returned an incomplete answer"
	case errors.Is(err, context.DeadlineExceeded):
		return "the feed service did not answer in time"
	default:
		return err.Error()
	}
}
