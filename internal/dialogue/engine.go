// Package dialogue implements the per-user conversation that links channels
// and feeds. The Engine consumes transport-neutral events and produces one
// reply per event while moving the user through a closed set of states.
package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"feed_mirror/internal/resolver"
	"feed_mirror/internal/storage"
)

// ErrChatInaccessible is returned by an AdminChecker when the chat cannot be
// inspected at all, e.g. because the bot was removed from it.
var ErrChatInaccessible = errors.New("chat inaccessible")

// AdminChecker reports chat administrator membership.
type AdminChecker interface {
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
	// IsAdminPair reports whether both userID and botID administer chatID.
	IsAdminPair(ctx context.Context, chatID, userID, botID int64) (bool, error)
}

// Resolver resolves a user-typed feed name to the feed's canonical identity.
type Resolver interface {
	Resolve(ctx context.Context, name string) (resolver.Feed, error)
}

// Config holds the engine settings.
type Config struct {
	BotID       int64
	BotUsername string
	// CallTimeout bounds every store, authorization and resolver call.
	CallTimeout time.Duration
	// MaxConcurrentChecks bounds parallel administrator lookups.
	MaxConcurrentChecks int
}

// Engine drives the conversations of all users.
type Engine struct {
	store    storage.Storage
	admins   AdminChecker
	resolver Resolver
	states   StateStore
	cfg      Config
	log      *slog.Logger
	locks    *userLocks
}

// New creates an Engine.
func New(store storage.Storage, admins AdminChecker, res Resolver, states StateStore, cfg Config, log *slog.Logger) *Engine {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.MaxConcurrentChecks <= 0 {
		cfg.MaxConcurrentChecks = 8
	}
	return &Engine{
		store:    store,
		admins:   admins,
		resolver: res,
		states:   states,
		cfg:      cfg,
		log:      log,
		locks:    newUserLocks(),
	}
}

// Handle processes one event and returns the reply text and the user's new
// state, which is also stored. Events of the same user are handled one at a time.
func (e *Engine) Handle(ctx context.Context, ev Event) (string, State) {
	unlock := e.locks.lock(ev.UserID)
	defer unlock()

	cur := e.states.Get(ev.UserID)
	reply, next, err := e.dispatch(ctx, ev, cur)
	if err != nil {
		reply, next = e.failure(ev, cur, err)
	}
	e.states.Set(ev.UserID, next)
	return reply, next
}

func (e *Engine) failure(ev Event, cur State, err error) (string, State) {
	if errors.Is(err, storage.ErrConflict) {
		e.log.Error("conflicting write", "user_id", ev.UserID, "chat_id", ev.ChatID, "error", err)
		return msgGenericFailure, MainMenu{}
	}
	e.log.Error("handle event", "user_id", ev.UserID, "chat_id", ev.ChatID, "error", err)
	return msgTryLater, cur
}

func (e *Engine) dispatch(ctx context.Context, ev Event, cur State) (string, State, error) {
	switch ev.Command {
	case CommandNone:
		return e.dispatchText(ctx, ev, cur)
	case CommandCancel:
		return msgCancelled, MainMenu{}, nil
	case CommandHelp:
		return helpText(), cur, nil
	case CommandUnknown:
		return msgUnknownCommand, cur, nil
	}

	if _, idle := cur.(MainMenu); !idle {
		return e.withCancelHint(msgBusy), cur, nil
	}

	switch ev.Command {
	case CommandLinkChannel:
		return e.onLinkChannel()
	case CommandUnlinkChannel:
		return e.onUnlinkChannel(ctx, ev)
	case CommandListChannels:
		return e.onListChannels(ctx, ev)
	case CommandLinkFeed:
		return e.onLinkFeed(ctx, ev)
	case CommandUnlinkFeed:
		return e.onUnlinkFeed(ctx, ev)
	default:
		return msgUnknownCommand, cur, nil
	}
}

func (e *Engine) dispatchText(ctx context.Context, ev Event, cur State) (string, State, error) {
	switch s := cur.(type) {
	case MainMenu:
		return msgIdleText, s, nil
	case AwaitingForwardedChannel:
		return e.onForwardedChannel(ctx, ev)
	case AwaitingUnlinkChannelID:
		return e.onUnlinkChannelID(ctx, ev)
	case AwaitingUnlinkConfirmation:
		return e.onUnlinkConfirmation(ctx, ev, s)
	case AwaitingFeedLinkChannelID:
		return e.onFeedLinkChannelID(ctx, ev)
	case AwaitingFeedName:
		return e.onFeedName(ctx, ev, s)
	case AwaitingFeedUnlinkChannelID:
		return e.onFeedUnlinkChannelID(ctx, ev)
	case AwaitingFeedUnlinkName:
		return e.onFeedUnlinkName(ctx, ev, s)
	default:
		e.log.Warn("unhandled state", "user_id", ev.UserID, "state", s)
		return msgCancelled, MainMenu{}, nil
	}
}

func (e *Engine) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.CallTimeout)
}
