package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feed_mirror/internal/bot"
	"feed_mirror/internal/config"
	"feed_mirror/internal/dialogue"
	"feed_mirror/internal/resolver"
	"feed_mirror/internal/storage"
)

func main() {
	configPath := flag.String("config", "feed-mirror.toml", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log.Level)

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.Database.Path)
	if err != nil {
		log.Error("open database", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Error("create bot api", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := dialogue.New(store, bot.NewAdmins(api), newResolver(ctx, cfg, log), dialogue.NewMemoryStates(),
		dialogue.Config{
			BotID:       api.Self.ID,
			BotUsername: api.Self.UserName,
			CallTimeout: cfg.CallTimeout,
		}, log)

	b := bot.New(api, engine, cfg, log)

	log.Info("starting bot", "username", api.Self.UserName, "resolver", cfg.Resolver.Kind)

	b.Run(ctx)

	log.Info("bot stopped")
}

func newResolver(ctx context.Context, cfg *config.Config, log *slog.Logger) dialogue.Resolver {
	client := &http.Client{Timeout: cfg.CallTimeout}

	if cfg.Resolver.Kind == "rss" {
		return resolver.NewRSS(client)
	}

	if cfg.Reddit.ClientID == "" {
		return resolver.NewReddit(client, cfg.Reddit.BaseURL, cfg.Reddit.UserAgent)
	}

	log.Info("using reddit app credentials")
	baseURL := cfg.Reddit.BaseURL
	if baseURL == "" {
		baseURL = resolver.RedditOAuthURL
	}
	oauthClient := resolver.NewRedditOAuthClient(ctx, cfg.Reddit.ClientID, cfg.Reddit.ClientSecret,
		cfg.Reddit.UserAgent, cfg.CallTimeout)
	return resolver.NewReddit(oauthClient, baseURL, cfg.Reddit.UserAgent)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
