package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"feed_mirror/internal/model"
	"feed_mirror/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const (
	channelColumns = `id, chat_id, disabled, title, username, invite_link, created_at`
	feedColumns    = `id, external_id, disabled, name, sorting, post_limit, respect_external_content_flag,
		min_score, allow_nsfw, show_spoilers, medias_only, users_blacklist, created_at`
)

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sqlx.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection keeps :memory: databases alive and serializes writers;
	// it is only held for the duration of a single statement or transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrations.Run(db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type channelRow struct {
	ID         int64          `db:"id"`
	ChatID     int64          `db:"chat_id"`
	Disabled   bool           `db:"disabled"`
	Title      string         `db:"title"`
	Username   sql.NullString `db:"username"`
	InviteLink sql.NullString `db:"invite_link"`
	CreatedAt  string         `db:"created_at"`
}

func (r channelRow) toModel() model.Channel {
	ch := model.Channel{
		ID:       r.ID,
		ChatID:   r.ChatID,
		Disabled: r.Disabled,
		Title:    r.Title,
	}
	if r.Username.Valid {
		ch.Username = &r.Username.String
	}
	if r.InviteLink.Valid {
		ch.InviteLink = &r.InviteLink.String
	}
	ch.CreatedAt, _ = time.Parse(timeLayout, r.CreatedAt)
	return ch
}

type feedRow struct {
	ID                         int64          `db:"id"`
	ExternalID                 string         `db:"external_id"`
	Disabled                   bool           `db:"disabled"`
	Name                       string         `db:"name"`
	Sorting                    string         `db:"sorting"`
	PostLimit                  sql.NullInt64  `db:"post_limit"`
	RespectExternalContentFlag bool           `db:"respect_external_content_flag"`
	MinScore                   sql.NullInt64  `db:"min_score"`
	AllowNSFW                  bool           `db:"allow_nsfw"`
	ShowSpoilers               bool           `db:"show_spoilers"`
	MediasOnly                 bool           `db:"medias_only"`
	UsersBlacklist             sql.NullString `db:"users_blacklist"`
	CreatedAt                  string         `db:"created_at"`
}

func (r feedRow) toModel() model.Feed {
	f := model.Feed{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		Disabled:   r.Disabled,
		Name:       r.Name,
		Policy: model.Policy{
			Sorting:                    model.Sorting(r.Sorting),
			RespectExternalContentFlag: r.RespectExternalContentFlag,
			AllowNSFW:                  r.AllowNSFW,
			ShowSpoilers:               r.ShowSpoilers,
			MediasOnly:                 r.MediasOnly,
		},
	}
	if r.PostLimit.Valid {
		v := int(r.PostLimit.Int64)
		f.Policy.PostLimit = &v
	}
	if r.MinScore.Valid {
		v := int(r.MinScore.Int64)
		f.Policy.MinScore = &v
	}
	if r.UsersBlacklist.Valid {
		f.Policy.UsersBlacklist = lo.Compact(strings.Split(r.UsersBlacklist.String, ","))
	}
	f.CreatedAt, _ = time.Parse(timeLayout, r.CreatedAt)
	return f
}

// GetChannel returns the channel with the given Telegram chat ID.
func (s *SQLite) GetChannel(ctx context.Context, chatID int64) (*model.Channel, error) {
	var row channelRow
	err := s.db.GetContext(ctx, &row, `SELECT `+channelColumns+` FROM channel WHERE chat_id = ?`, chatID)
	if err != nil {
		return nil, fmt.Errorf("get channel %d: %w", chatID, mapErr(err))
	}
	ch := row.toModel()
	return &ch, nil
}

// UpsertChannel inserts a channel keyed by its chat ID, or refreshes the title,
// username and invite link of the existing row. ch is populated from the stored row.
func (s *SQLite) UpsertChannel(ctx context.Context, ch *model.Channel) error {
	now := time.Now().UTC().Format(timeLayout)
	var row channelRow
	err := s.db.GetContext(ctx, &row,
		`INSERT INTO channel (chat_id, disabled, title, username, invite_link, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (chat_id) DO UPDATE SET
		   title = excluded.title,
		   username = excluded.username,
		   invite_link = excluded.invite_link
		 RETURNING `+channelColumns,
		ch.ChatID, ch.Disabled, ch.Title, nullString(ch.Username), nullString(ch.InviteLink), now,
	)
	if err != nil {
		return fmt.Errorf("upsert channel %d: %w", ch.ChatID, mapErr(err))
	}
	*ch = row.toModel()
	return nil
}

// DeleteChannel removes a channel together with its feed links.
func (s *SQLite) DeleteChannel(ctx context.Context, chatID int64) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM channel_feed WHERE channel_id IN (SELECT id FROM channel WHERE chat_id = ?)`, chatID,
	); err != nil {
		return 0, fmt.Errorf("delete channel links: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM channel WHERE chat_id = ?`, chatID)
	if err != nil {
		return 0, fmt.Errorf("delete channel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// ListChannelIDs returns the distinct chat IDs of all linked channels.
func (s *SQLite) ListChannelIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT DISTINCT chat_id FROM channel ORDER BY chat_id`); err != nil {
		return nil, fmt.Errorf("query channel ids: %w", err)
	}
	return ids, nil
}

// ChannelsByChatIDs loads the channels with the given chat IDs, ordered by title.
func (s *SQLite) ChannelsByChatIDs(ctx context.Context, chatIDs []int64) ([]model.Channel, error) {
	if len(chatIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT `+channelColumns+` FROM channel WHERE chat_id IN (?) ORDER BY title, chat_id`, chatIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("build channels query: %w", err)
	}
	var rows []channelRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	return lo.Map(rows, func(r channelRow, _ int) model.Channel { return r.toModel() }), nil
}

// FeedByExternalID returns the feed with the given external service ID.
func (s *SQLite) FeedByExternalID(ctx context.Context, externalID string) (*model.Feed, error) {
	var row feedRow
	err := s.db.GetContext(ctx, &row, `SELECT `+feedColumns+` FROM feed WHERE external_id = ?`, externalID)
	if err != nil {
		return nil, fmt.Errorf("get feed %q: %w", externalID, mapErr(err))
	}
	f := row.toModel()
	return &f, nil
}

// InsertFeed inserts a new feed and populates its ID and CreatedAt.
func (s *SQLite) InsertFeed(ctx context.Context, feed *model.Feed) error {
	now := time.Now().UTC().Format(timeLayout)
	p := feed.Policy
	if p.Sorting == "" {
		p.Sorting = model.SortHot
	}
	var blacklist *string
	if len(p.UsersBlacklist) > 0 {
		v := strings.Join(p.UsersBlacklist, ",")
		blacklist = &v
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feed (external_id, disabled, name, sorting, post_limit, respect_external_content_flag,
		   min_score, allow_nsfw, show_spoilers, medias_only, users_blacklist, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		feed.ExternalID, feed.Disabled, feed.Name, string(p.Sorting), p.PostLimit, p.RespectExternalContentFlag,
		p.MinScore, p.AllowNSFW, p.ShowSpoilers, p.MediasOnly, blacklist, now,
	)
	if err != nil {
		return fmt.Errorf("insert feed %q: %w", feed.ExternalID, mapErr(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	feed.ID = id
	feed.Policy = p
	feed.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// FeedsForChannel returns the feeds linked to the channel with the given row ID.
func (s *SQLite) FeedsForChannel(ctx context.Context, channelID int64) ([]model.Feed, error) {
	var rows []feedRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT f.id, f.external_id, f.disabled, f.name, f.sorting, f.post_limit, f.respect_external_content_flag,
		        f.min_score, f.allow_nsfw, f.show_spoilers, f.medias_only, f.users_blacklist, f.created_at
		 FROM feed f
		 JOIN channel_feed cf ON cf.feed_id = f.id
		 WHERE cf.channel_id = ?
		 ORDER BY f.name, f.id`, channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("query channel feeds: %w", err)
	}
	return lo.Map(rows, func(r feedRow, _ int) model.Feed { return r.toModel() }), nil
}

// LinkExists reports whether the channel is already linked to the feed.
func (s *SQLite) LinkExists(ctx context.Context, channelID, feedID int64) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM channel_feed WHERE channel_id = ? AND feed_id = ?`, channelID, feedID,
	)
	if err != nil {
		return false, fmt.Errorf("check link: %w", err)
	}
	return count > 0, nil
}

// InsertLink links a channel to a feed and populates the link's ID and CreatedAt.
func (s *SQLite) InsertLink(ctx context.Context, link *model.ChannelFeedLink) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_feed (channel_id, feed_id, created_at) VALUES (?, ?, ?)`,
		link.ChannelID, link.FeedID, now,
	)
	if err != nil {
		return fmt.Errorf("insert link: %w", mapErr(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	link.ID = id
	link.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// DeleteLink removes the link between a channel and a feed.
func (s *SQLite) DeleteLink(ctx context.Context, channelID, feedID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_feed WHERE channel_id = ? AND feed_id = ?`, channelID, feedID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
