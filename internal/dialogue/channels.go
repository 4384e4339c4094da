package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"feed_mirror/internal/model"
	"feed_mirror/internal/storage"
)

// authorizedChannels returns the linked channels administered by both the
// user and the bot. Administrator lookups run concurrently.
func (e *Engine) authorizedChannels(ctx context.Context, userID int64) ([]model.Channel, error) {
	cctx, cancel := e.callCtx(ctx)
	ids, err := e.store.ListChannelIDs(cctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list channel ids: %w", err)
	}

	allowed := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrentChecks)
	for i, chatID := range ids {
		g.Go(func() error {
			cctx, cancel := e.callCtx(gctx)
			defer cancel()
			ok, err := e.admins.IsAdminPair(cctx, chatID, userID, e.cfg.BotID)
			if errors.Is(err, ErrChatInaccessible) {
				e.log.Warn("skip inaccessible channel", "chat_id", chatID, "error", err)
				return nil
			}
			if err != nil {
				return fmt.Errorf("check administrators of %d: %w", chatID, err)
			}
			allowed[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	retained := lo.Filter(ids, func(_ int64, i int) bool { return allowed[i] })
	if len(retained) == 0 {
		return nil, nil
	}

	cctx, cancel = e.callCtx(ctx)
	defer cancel()
	channels, err := e.store.ChannelsByChatIDs(cctx, retained)
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}
	return channels, nil
}

// pickChannel resolves the channel ID typed by the user. A nil channel with a
// reply means the input was rejected and the user should try again.
func (e *Engine) pickChannel(ctx context.Context, ev Event) (*model.Channel, string, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(ev.Text), 10, 64)
	if err != nil {
		return nil, e.withCancelHint(msgChannelIDInvalid), nil
	}

	cctx, cancel := e.callCtx(ctx)
	ch, err := e.store.GetChannel(cctx, chatID)
	cancel()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, e.withCancelHint(msgChannelNotFound), nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("get channel: %w", err)
	}

	ok, err := e.isAdminPair(ctx, chatID, ev.UserID)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, e.withCancelHint(msgNotAdminPair), nil
	}
	return ch, "", nil
}

func (e *Engine) isAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	ok, err := e.admins.IsAdmin(cctx, chatID, userID)
	if errors.Is(err, ErrChatInaccessible) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check administrator %d of %d: %w", userID, chatID, err)
	}
	return ok, nil
}

func (e *Engine) isAdminPair(ctx context.Context, chatID, userID int64) (bool, error) {
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	ok, err := e.admins.IsAdminPair(cctx, chatID, userID, e.cfg.BotID)
	if errors.Is(err, ErrChatInaccessible) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check administrators of %d: %w", chatID, err)
	}
	return ok, nil
}
