// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"feed_mirror/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// Storage is the interface for all persistence operations.
type Storage interface {
	GetChannel(ctx context.Context, chatID int64) (*model.Channel, error)
	// UpsertChannel inserts the channel or refreshes the stored one with the same chat ID.
	UpsertChannel(ctx context.Context, ch *model.Channel) error
	// DeleteChannel removes the channel and its links, returning the number of channels removed.
	DeleteChannel(ctx context.Context, chatID int64) (int64, error)
	ListChannelIDs(ctx context.Context) ([]int64, error)
	ChannelsByChatIDs(ctx context.Context, chatIDs []int64) ([]model.Channel, error)

	FeedByExternalID(ctx context.Context, externalID string) (*model.Feed, error)
	InsertFeed(ctx context.Context, feed *model.Feed) error
	FeedsForChannel(ctx context.Context, channelID int64) ([]model.Feed, error)

	LinkExists(ctx context.Context, channelID, feedID int64) (bool, error)
	InsertLink(ctx context.Context, link *model.ChannelFeedLink) error
	DeleteLink(ctx context.Context, channelID, feedID int64) (int64, error)

	Close() error
}
