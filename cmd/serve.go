package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"flowbot/pkg/bot"
	"flowbot/pkg/config"
	"flowbot/pkg/conversation"
	"flowbot/pkg/driver"
	"flowbot/pkg/driver/telegram"
	"flowbot/pkg/logger"
	"flowbot/pkg/message"
	"flowbot/pkg/server"
	"flowbot/pkg/store"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	Long:  "Runs the webhook server for every configured channel, routing provider payloads through the story pipeline.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		contexts, closeStore, err := buildContextManager(cfg.Storage, log)
		if err != nil {
			log.Error("Failed to initialize context storage", "error", err)
			return
		}
		defer closeStore()

		stories := conversation.NewStoryManager(&greetingStory{})

		bots, err := buildBots(cfg, contexts, stories, log)
		if err != nil {
			log.Error("Server configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := server.New(cfg.Server, bots, log)
		if err != nil {
			log.Error("Failed to initialize webhook server", "error", err)
			return
		}

		log.Info("Serving configured channels", "channels", len(bots), "storage", storageDriverName(cfg.Storage))
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Webhook server runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func buildContextManager(cfg config.StorageConfig, log *slog.Logger) (conversation.Manager, func(), error) {
	switch storageDriverName(cfg) {
	case "memory":
		return store.NewMemory(), func() {}, nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "data/flowbot.db"
		}
		db, err := store.NewSQLite(path, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return db, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func storageDriverName(cfg config.StorageConfig) string {
	if cfg.Driver == "" {
		return "memory"
	}
	return cfg.Driver
}

func buildBots(cfg *config.Config, contexts conversation.Manager, stories *conversation.StoryManager, log *slog.Logger) (map[string]server.Bot, error) {
	bots := make(map[string]server.Bot, len(cfg.Channels))

	for name, channelCfg := range cfg.Channels {
		drv, err := buildDriver(channelCfg, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", name, err)
		}

		channel := driver.Channel{
			Name:   name,
			Params: map[string]string{"token": channelCfg.Token},
		}

		orchestrator, err := bot.New(channel, drv, contexts, stories, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", name, err)
		}
		bots[name] = orchestrator
	}

	if len(bots) == 0 {
		return nil, errors.New("no channels are configured")
	}

	return bots, nil
}

func buildDriver(cfg config.ChannelConfig, log *slog.Logger) (driver.Driver, error) {
	switch cfg.Driver {
	case "telegram":
		return telegram.New(telegram.Config{Token: cfg.Token, BaseURL: cfg.BaseURL}, log)
	default:
		return nil, fmt.Errorf("unknown channel driver %q", cfg.Driver)
	}
}

// greetingStory is the built-in demo story: it answers /start or a plain
// "hi" with a personalized greeting and a yes/no reply keyboard.
type greetingStory struct{}

func (s *greetingStory) Name() string { return "greeting" }

func (s *greetingStory) Activators() []conversation.Activator {
	return []conversation.Activator{
		conversation.Command("start"),
		conversation.Exact("hi"),
	}
}

func (s *greetingStory) Handle(ctx context.Context, conv conversation.Conversable) error {
	name := conv.Context().User().Name()
	if name == "" {
		name = "there"
	}

	conv.Context().Set("greeted", true)
	return conv.Reply(ctx, "Hello, "+name+"! Shall we begin?", message.NewKeyboard(
		message.Button{Label: "Yes"},
		message.Button{Label: "No"},
	))
}
