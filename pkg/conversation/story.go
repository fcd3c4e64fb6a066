package conversation

import (
	"context"

	"flowbot/pkg/message"
)

// Conversable is the surface a story handler drives: the conversation state
// plus the ability to send replies through the originating driver. The
// orchestrator implements it.
type Conversable interface {
	Context() *Context
	Reply(ctx context.Context, text string, keyboard *message.Keyboard) error
}

// Story is a reusable conversation script. It declares the activators that
// qualify a message for it and a handler that runs the turn.
type Story interface {
	Name() string
	Activators() []Activator
	Handle(ctx context.Context, conv Conversable) error
}

// StoryManager keeps the registered stories in registration order and finds
// the first one whose activators match an incoming message.
type StoryManager struct {
	stories []Story
}

// NewStoryManager builds a manager with the given stories registered in
// order.
func NewStoryManager(stories ...Story) *StoryManager {
	return &StoryManager{stories: stories}
}

// Add registers more stories after the ones already present.
func (m *StoryManager) Add(stories ...Story) {
	m.stories = append(m.stories, stories...)
}

// Find returns the first registered story with an activator matching the
// message. The scan order is strictly registration order; the boolean is
// false when no story matches, which the caller must handle as a normal
// outcome.
func (m *StoryManager) Find(_ *Context, msg *message.Incoming) (Story, bool) {
	for _, story := range m.stories {
		for _, activator := range story.Activators() {
			if activator.Matches(msg) {
				return story, true
			}
		}
	}

	return nil, false
}
