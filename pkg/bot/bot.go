// Package bot wires driver, context manager and story registry into the
// per-request processing pipeline.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"flowbot/pkg/conversation"
	"flowbot/pkg/driver"
	"flowbot/pkg/message"
)

// Bot orchestrates one channel: it turns a raw webhook payload into a
// handled conversation turn and back into a provider response body.
type Bot struct {
	channel  driver.Channel
	drv      driver.Driver
	contexts conversation.Manager
	stories  *conversation.StoryManager
	log      *slog.Logger
}

// New constructs the orchestrator for one channel.
func New(channel driver.Channel, drv driver.Driver, contexts conversation.Manager, stories *conversation.StoryManager, log *slog.Logger) (*Bot, error) {
	if channel.Name == "" {
		return nil, errors.New("channel name is required")
	}
	if drv == nil {
		return nil, errors.New("driver is required")
	}
	if contexts == nil {
		return nil, errors.New("context manager is required")
	}
	if stories == nil {
		return nil, errors.New("story manager is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Bot{
		channel:  channel,
		drv:      drv,
		contexts: contexts,
		stories:  stories,
		log:      log.With("component", "bot", "channel", channel.Name),
	}, nil
}

// Channel returns the channel this orchestrator serves.
func (b *Bot) Channel() driver.Channel { return b.channel }

// Driver returns the provider driver behind this orchestrator.
func (b *Bot) Driver() driver.Driver { return b.drv }

// Process runs one inbound request through the pipeline and returns the
// response body for the provider: a verification token for handshakes, the
// invalid-payload text for malformed traffic, and an empty string for every
// other successful turn.
//
// Exactly one context save happens per successfully processed turn; the
// verification and invalid-payload short-circuits touch neither the context
// manager nor the story registry.
func (b *Bot) Process(ctx context.Context, payload []byte, initialState map[string]any) (string, error) {
	if verifier, ok := b.drv.(driver.WebhookVerifier); ok && verifier.IsVerificationRequest(payload) {
		token, err := verifier.VerifyWebhook(payload)
		if err != nil {
			return "", fmt.Errorf("verify webhook: %w", err)
		}

		b.log.Info("Webhook verification handshake answered")
		return token, nil
	}

	if err := b.drv.VerifyRequest(payload); err != nil {
		if errors.Is(err, driver.ErrInvalidPayload) {
			// Expected error mode for malformed webhook traffic: the text
			// becomes the response body, the pipeline stops here.
			b.log.Debug("Rejected malformed webhook payload")
			return err.Error(), nil
		}
		return "", fmt.Errorf("verify request: %w", err)
	}

	conv, err := b.contexts.Resolve(ctx, b.channel.Name, b.drv, payload)
	if err != nil {
		return "", fmt.Errorf("resolve context: %w", err)
	}

	incoming, err := b.drv.GetMessage(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("extract message: %w", err)
	}

	story, ok := b.stories.Find(conv, incoming)
	if !ok {
		b.log.Info("No story matched incoming message", "chat_id", conv.Chat().ID)
		return "", nil
	}

	conv.SetStory(story.Name())
	conv.ClearInteraction()
	conv.SetValues(initialState)

	if err := story.Handle(ctx, &turn{bot: b, conv: conv}); err != nil {
		return "", fmt.Errorf("handle story %q: %w", story.Name(), err)
	}

	if err := b.contexts.Save(ctx, conv); err != nil {
		return "", fmt.Errorf("save context: %w", err)
	}

	b.log.Debug("Processed conversation turn", "story", story.Name(), "chat_id", conv.Chat().ID)
	return "", nil
}

// turn is the orchestrator surface handed to a story handler for the
// duration of one request.
type turn struct {
	bot  *Bot
	conv *conversation.Context
}

// Context returns the conversation state of the current turn.
func (t *turn) Context() *conversation.Context { return t.conv }

// Reply sends text back to the turn's user through the originating driver.
func (t *turn) Reply(ctx context.Context, text string, keyboard *message.Keyboard) error {
	return t.bot.drv.SendMessage(ctx, t.conv.User(), text, keyboard)
}
