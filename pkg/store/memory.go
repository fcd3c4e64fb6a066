// Package store ships the reference implementations of the context
// persistence contract: an in-memory manager for tests and zero-config
// setups, and a SQLite-backed one for durable state.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"flowbot/pkg/conversation"
	"flowbot/pkg/driver"
	"flowbot/pkg/message"
)

// Memory keeps serialized context state in a map keyed by (channel, chat).
// State passes through JSON on save so resolved contexts never alias a
// previously saved items map.
type Memory struct {
	mu     sync.Mutex
	states map[string][]byte
}

// NewMemory builds an empty in-memory context manager.
func NewMemory() *Memory {
	return &Memory{states: make(map[string][]byte)}
}

func contextKey(channel string, chat message.Chat) string {
	return channel + "/" + chat.ID
}

// Resolve returns the context for the (channel, chat) pair addressed by the
// payload, creating a fresh one on first contact.
func (m *Memory) Resolve(_ context.Context, channelName string, drv driver.Driver, payload []byte) (*conversation.Context, error) {
	user, err := drv.GetUser(payload)
	if err != nil {
		return nil, fmt.Errorf("extract user: %w", err)
	}

	chat, err := drv.GetChat(payload)
	if err != nil {
		return nil, fmt.Errorf("extract chat: %w", err)
	}

	m.mu.Lock()
	raw, ok := m.states[contextKey(channelName, chat)]
	m.mu.Unlock()

	if !ok {
		return conversation.New(channelName, chat, user, nil), nil
	}

	var state conversation.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode context state: %w", err)
	}

	return conversation.FromState(channelName, chat, user, state), nil
}

// Save stores the context's serialized state under its identity key.
func (m *Memory) Save(_ context.Context, conv *conversation.Context) error {
	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode context state: %w", err)
	}

	m.mu.Lock()
	m.states[contextKey(conv.Channel(), conv.Chat())] = raw
	m.mu.Unlock()

	return nil
}
