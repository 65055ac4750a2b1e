package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crewsight/foreman/internal/api"
	"github.com/crewsight/foreman/internal/approval"
	"github.com/crewsight/foreman/internal/bus"
	"github.com/crewsight/foreman/internal/classifier"
	"github.com/crewsight/foreman/internal/config"
	"github.com/crewsight/foreman/internal/contacts"
	"github.com/crewsight/foreman/internal/digest"
	"github.com/crewsight/foreman/internal/drafter"
	"github.com/crewsight/foreman/internal/lexicon"
	"github.com/crewsight/foreman/internal/processor"
	"github.com/crewsight/foreman/internal/slack"
	"github.com/crewsight/foreman/internal/store"
	"github.com/crewsight/foreman/internal/strikes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	slog.Info("foreman starting", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected")

	// Lexicon
	lex := lexicon.Default()
	if cfg.LexiconPath != "" {
		lex, err = lexicon.Load(cfg.LexiconPath)
		if err != nil {
			slog.Error("failed to load lexicon", "path", cfg.LexiconPath, "error", err)
			os.Exit(1)
		}
		slog.Info("lexicon loaded", "path", cfg.LexiconPath)
	}

	// Timezone for the lateness boundary
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		slog.Error("invalid timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	// Pipeline state
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	tracker := strikes.NewTracker(db, retention, slog.Default())
	contactStore := contacts.NewStore(db, slog.Default())
	gate := approval.NewGate(db, slog.Default())

	cls, err := classifier.New(lex, tracker, cfg.LateThreshold, loc, slog.Default())
	if err != nil {
		slog.Error("failed to build classifier", "error", err)
		os.Exit(1)
	}

	// NATS
	busClient, err := bus.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer busClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Slack notifier (optional: without it foreman logs instead of posting)
	var notifier processor.Notifier
	var poster digest.Poster
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		n := slack.NewNotifier(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		notifier = n
		poster = n
		slog.Info("slack notifier ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured, running without review channel")
	}

	// Reply drafter: Anthropic when a key is present, template otherwise
	var draft processor.Drafter = drafter.Template{}
	if cfg.AnthropicAPIKey != "" {
		draft = drafter.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		slog.Info("anthropic drafter ready", "model", cfg.AnthropicModel)
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set, using template drafts")
	}

	proc := processor.New(cls, tracker, contactStore, gate, lex, busClient, notifier, draft, slog.Default())

	subscriptions := map[string]func(string, []byte){
		bus.SubjectChatMessage:   proc.HandleChatMessage,
		bus.SubjectClientMessage: proc.HandleClientMessage,
		bus.SubjectClientBooked:  proc.HandleBooked,
		bus.SubjectSlackReaction: proc.HandleReaction,
	}
	for subject, handler := range subscriptions {
		if err := busClient.Subscribe(subject, handler); err != nil {
			slog.Error("failed to subscribe", "subject", subject, "error", err)
			os.Exit(1)
		}
	}

	// Scheduled jobs
	sched := digest.NewScheduler(proc, db, poster, retention, slog.Default())
	if err := sched.Start(cfg.DigestSchedule, cfg.CompactionSchedule); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	srv := api.NewServer(cfg.Port, proc, db, cfg.APIToken, slog.Default())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})

	slog.Info("foreman ready", "port", cfg.Port)

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
	}
	slog.Info("foreman stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
