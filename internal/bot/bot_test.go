package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"feed_mirror/internal/config"
	"feed_mirror/internal/dialogue"
)

// --- mocks ---

type sentMsg struct {
	ChatID  int64
	ReplyTo int
	Text    string
}

type mockAPI struct {
	mu        sync.Mutex
	sent      []sentMsg
	requests  []tgbotapi.Chattable
	updates   chan tgbotapi.Update
	stopped   bool
	admins    map[int64][]int64
	adminsErr error
	block     chan struct{}
}

func newMockAPI() *mockAPI {
	return &mockAPI{updates: make(chan tgbotapi.Update, 16), admins: map[int64][]int64{}}
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, ReplyTo: msg.ReplyToMessageID, Text: msg.Text})
		m.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updates
}

func (m *mockAPI) StopReceivingUpdates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *mockAPI) GetChatAdministrators(cfg tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error) {
	if m.block != nil {
		<-m.block
	}
	if m.adminsErr != nil {
		return nil, m.adminsErr
	}
	var members []tgbotapi.ChatMember
	for _, id := range m.admins[cfg.ChatID] {
		members = append(members, tgbotapi.ChatMember{User: &tgbotapi.User{ID: id}, Status: "administrator"})
	}
	return members, nil
}

func (m *mockAPI) sentMessages() []sentMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMsg(nil), m.sent...)
}

func (m *mockAPI) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Text
}

// echoHandler replies with the event it received, optionally slowing down
// the first event of every user to expose ordering bugs.
type echoHandler struct {
	mu     sync.Mutex
	seen   map[int64]int
	events []dialogue.Event
}

func (h *echoHandler) Handle(_ context.Context, ev dialogue.Event) (string, dialogue.State) {
	h.mu.Lock()
	if h.seen == nil {
		h.seen = map[int64]int{}
	}
	h.seen[ev.UserID]++
	first := h.seen[ev.UserID] == 1
	h.events = append(h.events, ev)
	h.mu.Unlock()

	if first {
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Sprintf("%d:%s", ev.UserID, ev.Text), dialogue.MainMenu{}
}

// --- helpers ---

func newTestBot(t *testing.T, cfg *config.Config) (*Bot, *mockAPI, *echoHandler) {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	api := newMockAPI()
	h := &echoHandler{}
	b := newBot(api, h, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return b, api, h
}

func textMessage(userID int64, messageID int, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: messageID,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:      text,
	}
}

func commandMessage(userID int64, messageID int, cmd, args string) *tgbotapi.Message {
	text := "/" + cmd
	if args != "" {
		text += " " + args
	}
	msg := textMessage(userID, messageID, text)
	msg.Entities = []tgbotapi.MessageEntity{
		{Type: "bot_command", Offset: 0, Length: len("/" + cmd)},
	}
	return msg
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

// --- tests ---

func TestToEvent(t *testing.T) {
	forwarded := textMessage(1, 7, "hello from the channel")
	forwarded.ForwardFromChat = &tgbotapi.Chat{
		ID: -100123, Type: "channel", Title: "Gophers", UserName: "gophers", InviteLink: "https://t.me/+abc",
	}

	tests := []struct {
		name string
		msg  *tgbotapi.Message
		want dialogue.Event
	}{
		{
			name: "plain text",
			msg:  textMessage(1, 5, "42"),
			want: dialogue.Event{UserID: 1, ChatID: 1, MessageID: 5, Text: "42"},
		},
		{
			name: "command",
			msg:  commandMessage(1, 6, "linkfeed", ""),
			want: dialogue.Event{UserID: 1, ChatID: 1, MessageID: 6, Command: dialogue.CommandLinkFeed},
		},
		{
			name: "command with mention and args",
			msg:  commandMessage(1, 6, "cancel@mirror_bot", " now "),
			want: dialogue.Event{UserID: 1, ChatID: 1, MessageID: 6, Command: dialogue.CommandCancel, Text: "now"},
		},
		{
			name: "unknown command",
			msg:  commandMessage(1, 6, "frobnicate", ""),
			want: dialogue.Event{UserID: 1, ChatID: 1, MessageID: 6, Command: dialogue.CommandUnknown},
		},
		{
			name: "forward from channel",
			msg:  forwarded,
			want: dialogue.Event{
				UserID: 1, ChatID: 1, MessageID: 7, Text: "hello from the channel",
				Forward: &dialogue.ForwardOrigin{
					ChatID: -100123, Kind: dialogue.ChatChannel, Title: "Gophers",
					Username: "gophers", InviteLink: "https://t.me/+abc",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, toEvent(tt.msg)); diff != "" {
				t.Errorf("toEvent() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRun(t *testing.T) {
	b, api, _ := newTestBot(t, nil)

	api.updates <- tgbotapi.Update{Message: commandMessage(1, 10, "help", "")}
	api.updates <- tgbotapi.Update{Message: textMessage(1, 11, "second")}
	api.updates <- tgbotapi.Update{}
	close(api.updates)

	b.Run(context.Background())

	want := []sentMsg{
		{ChatID: 1, ReplyTo: 10, Text: "1:"},
		{ChatID: 1, ReplyTo: 11, Text: "1:second"},
	}
	if diff := cmp.Diff(want, api.sentMessages()); diff != "" {
		t.Errorf("sent messages (-want +got):\n%s", diff)
	}

	if len(api.requests) != 1 {
		t.Fatalf("expected one setMyCommands request, got %d", len(api.requests))
	}
	cmds, ok := api.requests[0].(tgbotapi.SetMyCommandsConfig)
	if !ok {
		t.Fatalf("unexpected request %T", api.requests[0])
	}
	if diff := cmp.Diff(len(dialogue.Commands), len(cmds.Commands)); diff != "" {
		t.Errorf("command count (-want +got):\n%s", diff)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	b, api, _ := newTestBot(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b.Run(ctx)

	if !api.stopped {
		t.Error("expected StopReceivingUpdates to be called")
	}
}

func TestPerUserOrder(t *testing.T) {
	b, api, _ := newTestBot(t, nil)

	for i := 1; i <= 5; i++ {
		for _, user := range []int64{1, 2} {
			b.handleUpdate(context.Background(), tgbotapi.Update{Message: textMessage(user, i, fmt.Sprint(i))})
		}
	}
	b.queues.wait()

	got := map[int64][]string{}
	for _, m := range api.sentMessages() {
		got[m.ChatID] = append(got[m.ChatID], m.Text)
	}
	want := map[int64][]string{
		1: {"1:1", "1:2", "1:3", "1:4", "1:5"},
		2: {"2:1", "2:2", "2:3", "2:4", "2:5"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("replies per user (-want +got):\n%s", diff)
	}
}

func TestAccessDenied(t *testing.T) {
	cfg := &config.Config{Telegram: config.Telegram{AllowedUsers: []int64{1}}}
	b, api, h := newTestBot(t, cfg)

	b.handleUpdate(context.Background(), tgbotapi.Update{Message: commandMessage(2, 3, "linkchannel", "")})
	b.queues.wait()

	requireContains(t, api.lastText(), "Access denied.")
	if len(h.events) != 0 {
		t.Errorf("handler should not see denied users, got %d events", len(h.events))
	}
}

func TestIgnoresMessagesWithoutSender(t *testing.T) {
	b, api, h := newTestBot(t, nil)
	msg := textMessage(1, 1, "hi")
	msg.From = nil

	b.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})
	b.queues.wait()

	if len(api.sentMessages()) != 0 || len(h.events) != 0 {
		t.Error("messages without sender should be ignored")
	}
}

func TestAdmins(t *testing.T) {
	ctx := context.Background()

	t.Run("membership", func(t *testing.T) {
		api := newMockAPI()
		api.admins[-1] = []int64{10, 99}
		a := &Admins{api: api}

		tests := []struct {
			name string
			fn   func() (bool, error)
			want bool
		}{
			{"user is admin", func() (bool, error) { return a.IsAdmin(ctx, -1, 10) }, true},
			{"user is not admin", func() (bool, error) { return a.IsAdmin(ctx, -1, 11) }, false},
			{"pair", func() (bool, error) { return a.IsAdminPair(ctx, -1, 10, 99) }, true},
			{"pair without bot", func() (bool, error) { return a.IsAdminPair(ctx, -1, 10, 98) }, false},
			{"unknown chat", func() (bool, error) { return a.IsAdmin(ctx, -2, 10) }, false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := tt.fn()
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if diff := cmp.Diff(tt.want, got); diff != "" {
					t.Errorf("mismatch (-want +got):\n%s", diff)
				}
			})
		}
	})

	t.Run("inaccessible chat", func(t *testing.T) {
		for _, code := range []int{400, 403} {
			api := newMockAPI()
			api.adminsErr = &tgbotapi.Error{Code: code, Message: "Bad Request: chat not found"}
			a := &Admins{api: api}

			_, err := a.IsAdmin(ctx, -1, 10)
			if !errors.Is(err, dialogue.ErrChatInaccessible) {
				t.Errorf("code %d: expected ErrChatInaccessible, got %v", code, err)
			}
		}
	})

	t.Run("transport error", func(t *testing.T) {
		api := newMockAPI()
		api.adminsErr = errors.New("connection reset by peer")
		a := &Admins{api: api}

		_, err := a.IsAdminPair(ctx, -1, 10, 99)
		if err == nil || errors.Is(err, dialogue.ErrChatInaccessible) {
			t.Errorf("expected transport error, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		api := newMockAPI()
		api.block = make(chan struct{})
		defer close(api.block)
		a := &Admins{api: api}

		tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := a.IsAdmin(tctx, -1, 10)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}
