package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"feed_mirror/internal/model"
)

var ignoreChannelTS = cmpopts.IgnoreFields(model.Channel{}, "ID", "CreatedAt")
var ignoreFeedTS = cmpopts.IgnoreFields(model.Feed{}, "ID", "CreatedAt")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func seedChannel(t *testing.T, s *SQLite, chatID int64, title string) *model.Channel {
	t.Helper()
	ch := &model.Channel{ChatID: chatID, Title: title}
	if err := s.UpsertChannel(context.Background(), ch); err != nil {
		t.Fatalf("seed channel: %v", err)
	}
	return ch
}

func seedFeed(t *testing.T, s *SQLite, externalID, name string) *model.Feed {
	t.Helper()
	f := &model.Feed{ExternalID: externalID, Name: name, Policy: model.DefaultPolicy()}
	if err := s.InsertFeed(context.Background(), f); err != nil {
		t.Fatalf("seed feed: %v", err)
	}
	return f
}

func TestChannelUpsert(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		channel model.Channel
	}{
		{
			name:    "title only",
			channel: model.Channel{ChatID: -1001, Title: "News"},
		},
		{
			name: "with username and invite link",
			channel: model.Channel{
				ChatID:     -1002,
				Title:      "Golang",
				Username:   ptr("golang_news"),
				InviteLink: ptr("https://t.me/+abc"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestDB(t)
			ch := tt.channel
			if err := s.UpsertChannel(ctx, &ch); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			if ch.ID == 0 {
				t.Fatal("expected non-zero ID")
			}

			got, err := s.GetChannel(ctx, tt.channel.ChatID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if diff := cmp.Diff(tt.channel, *got, ignoreChannelTS); diff != "" {
				t.Errorf("GetChannel mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestChannelUpsertKeepsChatIDUnique(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	first := seedChannel(t, s, -100, "Old title")
	second := &model.Channel{ChatID: -100, Title: "New title", Username: ptr("renamed")}
	if err := s.UpsertChannel(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if diff := cmp.Diff(first.ID, second.ID); diff != "" {
		t.Errorf("row id should be reused (-want +got):\n%s", diff)
	}

	ids, err := s.ListChannelIDs(ctx)
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if diff := cmp.Diff([]int64{-100}, ids); diff != "" {
		t.Errorf("channel ids (-want +got):\n%s", diff)
	}

	got, _ := s.GetChannel(ctx, -100)
	if diff := cmp.Diff("New title", got.Title); diff != "" {
		t.Errorf("title (-want +got):\n%s", diff)
	}
}

func TestGetChannelNotFound(t *testing.T) {
	s := newTestDB(t)
	_, err := s.GetChannel(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestChannelsByChatIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	seedChannel(t, s, 3, "Charlie")
	seedChannel(t, s, 1, "Alpha")
	seedChannel(t, s, 2, "Bravo")

	tests := []struct {
		name string
		ids  []int64
		want []string
	}{
		{name: "empty", ids: nil, want: nil},
		{name: "subset ordered by title", ids: []int64{3, 1}, want: []string{"Alpha", "Charlie"}},
		{name: "unknown ids ignored", ids: []int64{2, 99}, want: []string{"Bravo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			channels, err := s.ChannelsByChatIDs(ctx, tt.ids)
			if err != nil {
				t.Fatalf("channels: %v", err)
			}
			var titles []string
			for _, ch := range channels {
				titles = append(titles, ch.Title)
			}
			if diff := cmp.Diff(tt.want, titles); diff != "" {
				t.Errorf("titles (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFeedInsertAndLookup(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	want := model.Feed{
		ExternalID: "t5_2qh1q",
		Name:       "golang",
		Policy: model.Policy{
			Sorting:        model.SortTop,
			PostLimit:      ptr(10),
			MinScore:       ptr(50),
			AllowNSFW:      true,
			UsersBlacklist: []string{"spammer", "bot"},
		},
	}
	f := want
	if err := s.InsertFeed(ctx, &f); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if f.ID == 0 {
		t.Fatal("expected non-zero ID")
	}

	got, err := s.FeedByExternalID(ctx, "t5_2qh1q")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if diff := cmp.Diff(want, *got, ignoreFeedTS); diff != "" {
		t.Errorf("FeedByExternalID mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.FeedByExternalID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertFeedDuplicateExternalID(t *testing.T) {
	s := newTestDB(t)
	seedFeed(t, s, "r1", "golang")

	err := s.InsertFeed(context.Background(), &model.Feed{ExternalID: "r1", Name: "golang"})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	ch := seedChannel(t, s, 42, "News")
	golang := seedFeed(t, s, "r1", "golang")
	rust := seedFeed(t, s, "r2", "rust")

	exists, err := s.LinkExists(ctx, ch.ID, golang.ID)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatal("link should not exist yet")
	}

	for _, f := range []*model.Feed{golang, rust} {
		if err := s.InsertLink(ctx, &model.ChannelFeedLink{ChannelID: ch.ID, FeedID: f.ID}); err != nil {
			t.Fatalf("insert link: %v", err)
		}
	}

	exists, _ = s.LinkExists(ctx, ch.ID, golang.ID)
	if !exists {
		t.Error("link should exist")
	}

	err = s.InsertLink(ctx, &model.ChannelFeedLink{ChannelID: ch.ID, FeedID: golang.ID})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate link: expected ErrConflict, got %v", err)
	}

	feeds, err := s.FeedsForChannel(ctx, ch.ID)
	if err != nil {
		t.Fatalf("feeds for channel: %v", err)
	}
	if diff := cmp.Diff(2, len(feeds)); diff != "" {
		t.Errorf("feed count (-want +got):\n%s", diff)
	}

	n, err := s.DeleteLink(ctx, ch.ID, rust.ID)
	if err != nil {
		t.Fatalf("delete link: %v", err)
	}
	if diff := cmp.Diff(int64(1), n); diff != "" {
		t.Errorf("deleted rows (-want +got):\n%s", diff)
	}

	n, _ = s.DeleteLink(ctx, ch.ID, rust.ID)
	if diff := cmp.Diff(int64(0), n); diff != "" {
		t.Errorf("second delete rows (-want +got):\n%s", diff)
	}
}

func TestDeleteChannelRemovesLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	ch := seedChannel(t, s, 42, "News")
	f := seedFeed(t, s, "r1", "golang")
	if err := s.InsertLink(ctx, &model.ChannelFeedLink{ChannelID: ch.ID, FeedID: f.ID}); err != nil {
		t.Fatalf("insert link: %v", err)
	}

	n, err := s.DeleteChannel(ctx, 42)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if diff := cmp.Diff(int64(1), n); diff != "" {
		t.Errorf("deleted rows (-want +got):\n%s", diff)
	}

	exists, _ := s.LinkExists(ctx, ch.ID, f.ID)
	if exists {
		t.Error("link should be removed with its channel")
	}

	// The feed itself survives; other channels may still mirror it.
	if _, err := s.FeedByExternalID(ctx, "r1"); err != nil {
		t.Errorf("feed should survive: %v", err)
	}

	n, _ = s.DeleteChannel(ctx, 42)
	if diff := cmp.Diff(int64(0), n); diff != "" {
		t.Errorf("second delete rows (-want +got):\n%s", diff)
	}
}
