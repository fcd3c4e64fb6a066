package conversation

import (
	"strings"

	"flowbot/pkg/message"
)

// Activator decides whether an incoming message qualifies for a story.
type Activator interface {
	Matches(msg *message.Incoming) bool
}

// AttachmentActivator matches messages carrying an attachment. Without a
// configured type it matches any attachment; with one it matches only an
// attachment of exactly that type.
type AttachmentActivator struct {
	kind message.AttachmentType
}

// Attachment builds an activator matching any attachment. Narrow it with Of
// or one of the typed helpers.
func Attachment() *AttachmentActivator {
	return &AttachmentActivator{}
}

// Of restricts the activator to one attachment type.
func (a *AttachmentActivator) Of(kind message.AttachmentType) *AttachmentActivator {
	a.kind = kind
	return a
}

// File restricts the activator to file attachments.
func (a *AttachmentActivator) File() *AttachmentActivator { return a.Of(message.TypeFile) }

// Image restricts the activator to image attachments.
func (a *AttachmentActivator) Image() *AttachmentActivator { return a.Of(message.TypeImage) }

// Audio restricts the activator to audio attachments.
func (a *AttachmentActivator) Audio() *AttachmentActivator { return a.Of(message.TypeAudio) }

// Video restricts the activator to video attachments.
func (a *AttachmentActivator) Video() *AttachmentActivator { return a.Of(message.TypeVideo) }

// Matches reports whether the message carries a qualifying attachment.
// Comparison on the type is plain, case-sensitive equality.
func (a *AttachmentActivator) Matches(msg *message.Incoming) bool {
	if msg.Attachment == nil {
		return false
	}
	if a.kind == "" {
		return true
	}

	return msg.Attachment.Type == a.kind
}

// ExactActivator matches a message whose text equals a fixed string.
type ExactActivator struct {
	text string
}

// Exact builds an activator matching the given text verbatim.
func Exact(text string) *ExactActivator {
	return &ExactActivator{text: text}
}

// Matches reports whether the message text equals the configured string.
func (a *ExactActivator) Matches(msg *message.Incoming) bool {
	return msg.Text != "" && msg.Text == a.text
}

// CommandActivator matches slash commands, with or without arguments.
type CommandActivator struct {
	name string
}

// Command builds an activator for /name style commands. The leading slash in
// name is optional.
func Command(name string) *CommandActivator {
	return &CommandActivator{name: strings.TrimPrefix(name, "/")}
}

// Matches reports whether the message text invokes the configured command.
func (a *CommandActivator) Matches(msg *message.Incoming) bool {
	command := "/" + a.name
	return msg.Text == command || strings.HasPrefix(msg.Text, command+" ")
}
