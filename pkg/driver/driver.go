// Package driver defines the capability set every chat provider driver
// implements, plus the optional webhook-verification extension.
package driver

import (
	"context"
	"errors"

	"flowbot/pkg/message"
)

// ErrInvalidPayload reports a webhook body that failed structural validation
// (no message section, or no sender identity). Its text is the deterministic
// short string returned to the provider, so it is capitalized on purpose.
var ErrInvalidPayload = errors.New("Invalid payload")

// Channel is one configured bot endpoint for a provider. Name is the stable
// identifier used for context lookup; Params carry provider credentials.
type Channel struct {
	Name   string
	Params map[string]string
}

// Driver translates between one provider's wire format and the normalized
// message model.
//
// VerifyRequest, GetUser and GetChat are local and never perform network I/O.
// GetMessage may call the provider to resolve attachment metadata; a failure
// there propagates. SendMessage intentionally masks transport failures: the
// driver logs them and returns nil, so flow handlers keep running when the
// provider is briefly unreachable.
type Driver interface {
	Name() string
	VerifyRequest(payload []byte) error
	GetUser(payload []byte) (message.User, error)
	GetChat(payload []byte) (message.Chat, error)
	GetMessage(ctx context.Context, payload []byte) (*message.Incoming, error)
	SendMessage(ctx context.Context, recipient message.User, text string, keyboard *message.Keyboard) error
	InstallWebhook(ctx context.Context, url string) error
}

// WebhookVerifier is an optional driver extension for providers that probe a
// freshly installed webhook with a challenge/response handshake. The
// orchestrator checks for it with a type assertion before running the
// regular pipeline.
type WebhookVerifier interface {
	IsVerificationRequest(payload []byte) bool
	VerifyWebhook(payload []byte) (string, error)
}
