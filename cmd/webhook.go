package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"flowbot/pkg/config"
	"flowbot/pkg/logger"

	"github.com/spf13/cobra"
)

var webhookURL string

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage provider webhooks",
}

var webhookInstallCmd = &cobra.Command{
	Use:   "install <channel>",
	Short: "Register the webhook callback URL with a channel's provider",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]

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
		log := slog.Default().With("component", "cmd.webhook")

		channelCfg, ok := cfg.Channels[name]
		if !ok {
			log.Error("Channel is not configured", "channel", name)
			return
		}

		drv, err := buildDriver(channelCfg, log)
		if err != nil {
			log.Error("Failed to initialize channel driver", "channel", name, "error", err)
			return
		}

		callbackURL := webhookURL + "/webhook/" + name

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := drv.InstallWebhook(ctx, callbackURL); err != nil {
			log.Error("Failed to install webhook", "channel", name, "url", callbackURL, "error", err)
			return
		}

		log.Info("Webhook installed", "channel", name, "url", callbackURL)
	},
}

func init() {
	webhookInstallCmd.Flags().StringVar(&webhookURL, "url", "", "public base URL of this server (required)")
	_ = webhookInstallCmd.MarkFlagRequired("url")

	webhookCmd.AddCommand(webhookInstallCmd)
	rootCmd.AddCommand(webhookCmd)
}
