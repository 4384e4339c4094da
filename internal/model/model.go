// Package model defines the domain types used across the application.
package model

import "time"

// Channel is a Telegram channel the bot mirrors feeds into.
type Channel struct {
	ID         int64
	ChatID     int64
	Title      string
	Username   *string
	InviteLink *string
	Disabled   bool
	CreatedAt  time.Time
}

// Sorting defines how posts of a feed are ordered when fetched.
type Sorting string

// Supported sortings.
const (
	SortHot    Sorting = "hot"
	SortNew    Sorting = "new"
	SortTop    Sorting = "top"
	SortRising Sorting = "rising"
)

// Policy is the delivery configuration attached to a feed.
type Policy struct {
	Sorting                    Sorting
	PostLimit                  *int
	RespectExternalContentFlag bool
	MinScore                   *int
	AllowNSFW                  bool
	ShowSpoilers               bool
	MediasOnly                 bool
	UsersBlacklist             []string
}

// DefaultPolicy returns the policy assigned to newly discovered feeds.
func DefaultPolicy() Policy {
	return Policy{Sorting: SortHot}
}

// Feed is an external content source, e.g. a subreddit.
type Feed struct {
	ID         int64
	ExternalID string
	Name       string
	Policy     Policy
	Disabled   bool
	CreatedAt  time.Time
}

// ChannelFeedLink records that a channel mirrors a feed.
type ChannelFeedLink struct {
	ID        int64
	ChannelID int64
	FeedID    int64
	CreatedAt time.Time
}
