package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"flowbot/pkg/conversation"
	"flowbot/pkg/driver"
	"flowbot/pkg/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	recipient message.User
	text      string
	keyboard  *message.Keyboard
}

// fakeDriver records pipeline calls into a shared event log.
type fakeDriver struct {
	events    *[]string
	verifyErr error
	incoming  *message.Incoming
	sent      []sent
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) VerifyRequest([]byte) error {
	*d.events = append(*d.events, "verify")
	return d.verifyErr
}

func (d *fakeDriver) GetUser([]byte) (message.User, error) {
	return message.User{ID: "7", FirstName: "Jane"}, nil
}

func (d *fakeDriver) GetChat([]byte) (message.Chat, error) {
	return message.Chat{ID: "100"}, nil
}

func (d *fakeDriver) GetMessage(context.Context, []byte) (*message.Incoming, error) {
	*d.events = append(*d.events, "extract")
	return d.incoming, nil
}

func (d *fakeDriver) SendMessage(_ context.Context, recipient message.User, text string, keyboard *message.Keyboard) error {
	d.sent = append(d.sent, sent{recipient: recipient, text: text, keyboard: keyboard})
	return nil
}

func (d *fakeDriver) InstallWebhook(context.Context, string) error { return nil }

// verifierDriver adds the optional webhook-verification capability.
type verifierDriver struct {
	fakeDriver
	token string
}

func (d *verifierDriver) IsVerificationRequest(payload []byte) bool {
	return string(payload) == "handshake"
}

func (d *verifierDriver) VerifyWebhook([]byte) (string, error) {
	*d.events = append(*d.events, "verify-webhook")
	return d.token, nil
}

// fakeManager hands out a prepared context and counts resolve/save calls.
type fakeManager struct {
	events   *[]string
	conv     *conversation.Context
	resolved int
	saved    []*conversation.Context
}

func (m *fakeManager) Resolve(_ context.Context, channelName string, _ driver.Driver, _ []byte) (*conversation.Context, error) {
	*m.events = append(*m.events, "resolve:"+channelName)
	m.resolved++
	return m.conv, nil
}

func (m *fakeManager) Save(_ context.Context, conv *conversation.Context) error {
	*m.events = append(*m.events, "save")
	m.saved = append(m.saved, conv)
	return nil
}

// scriptedStory records its handler invocations and optionally replies.
type scriptedStory struct {
	name       string
	activators []conversation.Activator
	events     *[]string
	handleErr  error
	reply      string
	onHandle   func(conv conversation.Conversable)
}

func (s *scriptedStory) Name() string                          { return s.name }
func (s *scriptedStory) Activators() []conversation.Activator { return s.activators }

func (s *scriptedStory) Handle(ctx context.Context, conv conversation.Conversable) error {
	*s.events = append(*s.events, "handle:"+s.name)
	if s.onHandle != nil {
		s.onHandle(conv)
	}
	if s.reply != "" {
		if err := conv.Reply(ctx, s.reply, nil); err != nil {
			return err
		}
	}
	return s.handleErr
}

type fixture struct {
	events  []string
	drv     *fakeDriver
	manager *fakeManager
	stories *conversation.StoryManager
	story   *scriptedStory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{}
	f.drv = &fakeDriver{
		events:   &f.events,
		incoming: &message.Incoming{Text: "hello"},
	}
	f.manager = &fakeManager{
		events: &f.events,
		conv: conversation.New("mybot", message.Chat{ID: "100"}, message.User{ID: "7", FirstName: "Jane"},
			map[string]any{"foo": "bar"}),
	}
	f.story = &scriptedStory{
		name:       "greeting",
		activators: []conversation.Activator{conversation.Exact("hello")},
		events:     &f.events,
	}
	f.stories = conversation.NewStoryManager(f.story)

	return f
}

func (f *fixture) bot(t *testing.T, drv driver.Driver) *Bot {
	t.Helper()

	b, err := New(driver.Channel{Name: "mybot"}, drv, f.manager, f.stories,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return b
}

func TestProcessSuccessfulTurn(t *testing.T) {
	f := newFixture(t)
	f.manager.conv.SetInteraction("pending")
	b := f.bot(t, f.drv)

	result, err := b.Process(context.Background(), []byte(`{"message":{}}`), map[string]any{"greeted": true})
	require.NoError(t, err)
	assert.Empty(t, result)

	assert.Equal(t, []string{"verify", "resolve:mybot", "extract", "handle:greeting", "save"}, f.events)

	require.Len(t, f.manager.saved, 1)
	assert.Same(t, f.manager.conv, f.manager.saved[0])

	conv := f.manager.conv
	assert.Equal(t, "greeting", conv.Story())
	assert.Empty(t, conv.Interaction(), "active interaction must be cleared")
	assert.Equal(t, "bar", conv.Get("foo"), "preexisting items survive the merge")
	assert.Equal(t, true, conv.Get("greeted"), "initial state is merged in")
}

func TestProcessInvalidPayloadShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.drv.verifyErr = driver.ErrInvalidPayload
	b := f.bot(t, f.drv)

	result, err := b.Process(context.Background(), []byte(`{}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "Invalid payload", result)

	assert.Equal(t, []string{"verify"}, f.events)
	assert.Zero(t, f.manager.resolved)
	assert.Empty(t, f.manager.saved)
}

func TestProcessUnexpectedVerifyErrorEscalates(t *testing.T) {
	f := newFixture(t)
	f.drv.verifyErr = errors.New("boom")
	b := f.bot(t, f.drv)

	_, err := b.Process(context.Background(), []byte(`{}`), nil)
	require.Error(t, err)
	assert.Zero(t, f.manager.resolved)
}

func TestProcessWebhookVerificationHandshake(t *testing.T) {
	f := newFixture(t)
	drv := &verifierDriver{token: "challenge-token"}
	drv.events = &f.events
	b := f.bot(t, drv)

	result, err := b.Process(context.Background(), []byte("handshake"), nil)
	require.NoError(t, err)
	assert.Equal(t, "challenge-token", result)

	// The handshake path never touches verification, contexts or stories.
	assert.Equal(t, []string{"verify-webhook"}, f.events)
	assert.Zero(t, f.manager.resolved)
	assert.Empty(t, f.manager.saved)
}

func TestProcessVerifierDriverRegularRequest(t *testing.T) {
	f := newFixture(t)
	drv := &verifierDriver{token: "challenge-token"}
	drv.events = &f.events
	drv.incoming = &message.Incoming{Text: "hello"}
	b := f.bot(t, drv)

	result, err := b.Process(context.Background(), []byte(`{"message":{}}`), nil)
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Equal(t, []string{"verify", "resolve:mybot", "extract", "handle:greeting", "save"}, f.events)
}

func TestProcessNoStoryMatched(t *testing.T) {
	f := newFixture(t)
	f.drv.incoming = &message.Incoming{Text: "unmatched"}
	b := f.bot(t, f.drv)

	result, err := b.Process(context.Background(), []byte(`{"message":{}}`), nil)
	require.NoError(t, err)
	assert.Empty(t, result)

	assert.Equal(t, []string{"verify", "resolve:mybot", "extract"}, f.events)
	assert.Empty(t, f.manager.saved, "unmatched turns are not persisted")
	assert.Empty(t, f.manager.conv.Story())
}

func TestProcessHandlerErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.story.handleErr = errors.New("handler failed")
	b := f.bot(t, f.drv)

	_, err := b.Process(context.Background(), []byte(`{"message":{}}`), nil)
	require.Error(t, err)
	assert.Empty(t, f.manager.saved, "failed turns are not persisted")
}

func TestProcessReplyGoesThroughDriver(t *testing.T) {
	f := newFixture(t)
	f.story.reply = "hi Jane"
	b := f.bot(t, f.drv)

	_, err := b.Process(context.Background(), []byte(`{"message":{}}`), nil)
	require.NoError(t, err)

	require.Len(t, f.drv.sent, 1)
	assert.Equal(t, "hi Jane", f.drv.sent[0].text)
	assert.Equal(t, "7", f.drv.sent[0].recipient.ID)
}

func TestProcessHandlerSeesMutatedContext(t *testing.T) {
	f := newFixture(t)
	f.story.onHandle = func(conv conversation.Conversable) {
		assert.Equal(t, "greeting", conv.Context().Story())
		conv.Context().Set("answered", true)
	}
	b := f.bot(t, f.drv)

	_, err := b.Process(context.Background(), []byte(`{"message":{}}`), nil)
	require.NoError(t, err)
	assert.Equal(t, true, f.manager.conv.Get("answered"))
}

func TestNewValidation(t *testing.T) {
	f := newFixture(t)

	_, err := New(driver.Channel{}, f.drv, f.manager, f.stories, nil)
	require.Error(t, err)

	_, err = New(driver.Channel{Name: "mybot"}, nil, f.manager, f.stories, nil)
	require.Error(t, err)

	_, err = New(driver.Channel{Name: "mybot"}, f.drv, nil, f.stories, nil)
	require.Error(t, err)

	_, err = New(driver.Channel{Name: "mybot"}, f.drv, f.manager, nil, nil)
	require.Error(t, err)
}
