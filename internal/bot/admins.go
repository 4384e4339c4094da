package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feed_mirror/internal/dialogue"
)

type adminsAPI interface {
	GetChatAdministrators(config tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error)
}

// Admins checks chat administrators through the Telegram API.
type Admins struct {
	api adminsAPI
}

// NewAdmins creates an administrator checker.
func NewAdmins(api *tgbotapi.BotAPI) *Admins {
	return &Admins{api: api}
}

// IsAdmin reports whether userID administers chatID.
func (a *Admins) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	ids, err := a.administrators(ctx, chatID)
	if err != nil {
		return false, err
	}
	_, ok := ids[userID]
	return ok, nil
}

// IsAdminPair reports whether both userID and botID administer chatID. The
// administrator list is fetched once for both.
func (a *Admins) IsAdminPair(ctx context.Context, chatID, userID, botID int64) (bool, error) {
	ids, err := a.administrators(ctx, chatID)
	if err != nil {
		return false, err
	}
	_, user := ids[userID]
	_, bot := ids[botID]
	return user && bot, nil
}

type adminsResult struct {
	members []tgbotapi.ChatMember
	err     error
}

func (a *Admins) administrators(ctx context.Context, chatID int64) (map[int64]struct{}, error) {
	// The client takes no context, so the call is raced against ctx.
	done := make(chan adminsResult, 1)
	go func() {
		members, err := a.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
			ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
		})
		done <- adminsResult{members: members, err: err}
	}()

	var res adminsResult
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get administrators of %d: %w", chatID, ctx.Err())
	case res = <-done:
	}

	if res.err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(res.err, &apiErr) && (apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %d: %s", dialogue.ErrChatInaccessible, chatID, apiErr.Message)
		}
		return nil, fmt.Errorf("get administrators of %d: %w", chatID, res.err)
	}

	ids := make(map[int64]struct{}, len(res.members))
	for _, m := range res.members {
		if m.User != nil {
			ids[m.User.ID] = struct{}{}
		}
	}
	return ids, nil
}
