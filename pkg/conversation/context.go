// Package conversation holds the per-conversation state, the match
// predicates that select a story, and the story registry itself.
package conversation

import (
	"context"
	"encoding/json"

	"flowbot/pkg/driver"
	"flowbot/pkg/message"
)

// Context is the mutable state of one conversation: identity (channel, chat,
// user), the selected story, the active interaction, and an open key/value
// scratch space. Item keys are a convention owned by story authors, not a
// closed schema.
//
// Exactly one Context exists per (channel, chat) pair at a time; the Manager
// is responsible for that. A Context is mutated by at most one in-flight
// request, so it carries no locking.
type Context struct {
	channel string
	chat    message.Chat
	user    message.User

	story       string
	interaction string
	items       map[string]any
}

// State is the serialized form of a Context. Identity fields are the storage
// key, not part of the payload, so only interaction and items appear here.
type State struct {
	Interaction *string        `json:"interaction"`
	Items       map[string]any `json:"items"`
}

// New builds a Context for the given identity, seeded with items. A nil
// items map starts the scratch space empty.
func New(channel string, chat message.Chat, user message.User, items map[string]any) *Context {
	if items == nil {
		items = make(map[string]any)
	}

	return &Context{
		channel: channel,
		chat:    chat,
		user:    user,
		items:   items,
	}
}

// FromState rebuilds a Context from its persisted state.
func FromState(channel string, chat message.Chat, user message.User, state State) *Context {
	restored := New(channel, chat, user, state.Items)
	if state.Interaction != nil {
		restored.interaction = *state.Interaction
	}

	return restored
}

// Channel returns the channel name this context belongs to.
func (c *Context) Channel() string { return c.channel }

// Chat returns the provider-side conversation thread.
func (c *Context) Chat() message.Chat { return c.chat }

// User returns the participant this context tracks.
func (c *Context) User() message.User { return c.user }

// Story returns the name of the selected story, or "" when none is set.
func (c *Context) Story() string { return c.story }

// SetStory records the story selected for this conversation.
func (c *Context) SetStory(name string) { c.story = name }

// Interaction returns the active interaction name, or "" when none is active.
func (c *Context) Interaction() string { return c.interaction }

// SetInteraction records the interaction the story is currently in.
func (c *Context) SetInteraction(name string) { c.interaction = name }

// ClearInteraction resets the active interaction.
func (c *Context) ClearInteraction() { c.interaction = "" }

// Get returns the stored value for key, or nil when the key is absent.
func (c *Context) Get(key string) any {
	return c.items[key]
}

// Set stores a value under key, replacing any previous value.
func (c *Context) Set(key string, value any) {
	c.items[key] = value
}

// SetValues merges the given values into the scratch space. Existing keys
// are overwritten; a nil map is a no-op.
func (c *Context) SetValues(values map[string]any) {
	for key, value := range values {
		c.items[key] = value
	}
}

// State returns the serializable portion of the context. Items are shared,
// not copied; callers persisting the state should marshal it immediately.
func (c *Context) State() State {
	state := State{Items: c.items}
	if c.interaction != "" {
		name := c.interaction
		state.Interaction = &name
	}

	return state
}

// MarshalJSON serializes the context as {"interaction": ..., "items": ...}.
func (c *Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.State())
}

// Manager is the persistence collaborator for contexts. Resolve returns the
// Context scoped to exactly the (channel, chat) pair addressed by the
// payload, creating a fresh one on first contact; Save makes the serialized
// state durably retrievable by a later Resolve for the same key.
//
// Cross-request mutual exclusion, if any, is the Manager's concern; the
// engine assumes at most one active request per context.
type Manager interface {
	Resolve(ctx context.Context, channelName string, drv driver.Driver, payload []byte) (*Context, error)
	Save(ctx context.Context, conversation *Context) error
}
