// Package telegram is the reference driver: it translates Telegram webhook
// payloads into the normalized message model and normalized sends back into
// Telegram Bot API calls.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"flowbot/pkg/driver"
	"flowbot/pkg/message"

	"github.com/mymmrac/telego"
)

const (
	driverName     = "telegram"
	defaultBaseURL = "https://api.telegram.org"
)

// Config configures one Telegram driver instance. BaseURL and Client default
// to the public Bot API and http.DefaultClient; tests point them elsewhere.
type Config struct {
	Token   string
	BaseURL string
	Client  *http.Client
}

// Driver performs the wire-level translation for one Telegram bot token.
type Driver struct {
	token   string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// New validates the configuration and constructs a driver.
func New(cfg Config, log *slog.Logger) (*Driver, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram token is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}

	if log == nil {
		log = slog.Default()
	}

	return &Driver{
		token:   token,
		baseURL: baseURL,
		client:  client,
		log:     log.With("component", "driver.telegram"),
	}, nil
}

// Name returns the driver identifier used in config and logs.
func (d *Driver) Name() string {
	return driverName
}

// update is the slice of a Telegram update this engine consumes.
type update struct {
	Message *telego.Message `json:"message"`
}

// parse decodes the raw webhook body. Any body without a well-formed message
// section is an invalid payload.
func parse(payload []byte) (*telego.Message, error) {
	var u update
	if err := json.Unmarshal(payload, &u); err != nil {
		return nil, driver.ErrInvalidPayload
	}
	if u.Message == nil {
		return nil, driver.ErrInvalidPayload
	}

	return u.Message, nil
}

// VerifyRequest checks the payload structure: it must carry a message and
// the message must carry a sender. No network I/O happens here.
func (d *Driver) VerifyRequest(payload []byte) error {
	msg, err := parse(payload)
	if err != nil {
		return err
	}
	if msg.From == nil {
		return driver.ErrInvalidPayload
	}

	return nil
}

// GetUser extracts the sender identity from a verified payload.
func (d *Driver) GetUser(payload []byte) (message.User, error) {
	msg, err := parse(payload)
	if err != nil {
		return message.User{}, err
	}
	if msg.From == nil {
		return message.User{}, driver.ErrInvalidPayload
	}

	return message.User{
		ID:        strconv.FormatInt(msg.From.ID, 10),
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
		Username:  msg.From.Username,
	}, nil
}

// GetChat extracts the conversation thread identity from a verified payload.
func (d *Driver) GetChat(payload []byte) (message.Chat, error) {
	msg, err := parse(payload)
	if err != nil {
		return message.Chat{}, err
	}

	return message.Chat{ID: strconv.FormatInt(msg.Chat.ID, 10)}, nil
}

// GetMessage extracts the normalized incoming message. When the payload
// carries an attachment its remote path is resolved here through getFile;
// the binary contents stay lazy until Attachment.Contents is called.
func (d *Driver) GetMessage(ctx context.Context, payload []byte) (*message.Incoming, error) {
	msg, err := parse(payload)
	if err != nil {
		return nil, err
	}

	incoming := &message.Incoming{Text: msg.Text}

	if kind, fileID := attachmentRef(msg); fileID != "" {
		path, err := d.resolveFilePath(ctx, fileID)
		if err != nil {
			return nil, fmt.Errorf("resolve %s attachment: %w", kind, err)
		}
		incoming.Attachment = message.NewAttachment(kind, path, d.fileFetcher(path))
	}

	if msg.Contact != nil {
		incoming.Contact = normalizeContact(msg.Contact)
	}
	if msg.Location != nil {
		incoming.Location = &message.Location{
			Latitude:  msg.Location.Latitude,
			Longitude: msg.Location.Longitude,
		}
	}
	if msg.Venue != nil {
		incoming.Venue = normalizeVenue(msg.Venue)
	}

	return incoming, nil
}

// attachmentRef finds the single attachment field of the message and maps it
// to the normalized type. Telegram sends a photo as a list of resolutions;
// the last entry is the largest and wins.
func attachmentRef(msg *telego.Message) (message.AttachmentType, string) {
	switch {
	case msg.Audio != nil:
		return message.TypeAudio, msg.Audio.FileID
	case msg.Document != nil:
		return message.TypeFile, msg.Document.FileID
	case len(msg.Photo) > 0:
		return message.TypeImage, msg.Photo[len(msg.Photo)-1].FileID
	case msg.Sticker != nil:
		return message.TypeSticker, msg.Sticker.FileID
	case msg.Video != nil:
		return message.TypeVideo, msg.Video.FileID
	case msg.Voice != nil:
		return message.TypeVoice, msg.Voice.FileID
	default:
		return "", ""
	}
}

func normalizeContact(contact *telego.Contact) *message.Contact {
	normalized := &message.Contact{PhoneNumber: contact.PhoneNumber}
	if contact.FirstName != "" {
		normalized.FirstName = ptr(contact.FirstName)
	}
	if contact.LastName != "" {
		normalized.LastName = ptr(contact.LastName)
	}
	if contact.UserID != 0 {
		normalized.UserID = ptr(strconv.FormatInt(contact.UserID, 10))
	}

	return normalized
}

func normalizeVenue(venue *telego.Venue) *message.Venue {
	normalized := &message.Venue{
		Location: message.Location{
			Latitude:  venue.Location.Latitude,
			Longitude: venue.Location.Longitude,
		},
		Title:   venue.Title,
		Address: venue.Address,
	}
	if venue.FoursquareID != "" {
		normalized.FoursquareID = ptr(venue.FoursquareID)
	}

	return normalized
}

func ptr(value string) *string {
	return &value
}

// fileResponse is the getFile envelope.
type fileResponse struct {
	OK     bool        `json:"ok"`
	Result telego.File `json:"result"`
}

// resolveFilePath exchanges an opaque file id for a fully qualified download
// URL. Failures here propagate: the message cannot be normalized without the
// attachment path.
func (d *Driver) resolveFilePath(ctx context.Context, fileID string) (string, error) {
	resp, err := d.postForm(ctx, "getFile", url.Values{"file_id": {fileID}})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode getFile response: %w", err)
	}
	if !decoded.OK {
		return "", errors.New("getFile rejected by telegram")
	}

	return d.baseURL + "/file/bot" + d.token + "/" + decoded.Result.FilePath, nil
}

// fileFetcher returns the lazy contents fetcher for a resolved file URL.
func (d *Driver) fileFetcher(path string) message.FetchFunc {
	return func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch attachment contents: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch attachment contents: unexpected status %d", resp.StatusCode)
		}

		return io.ReadAll(resp.Body)
	}
}

// SendMessage posts a sendMessage form to the Bot API. A reply keyboard is
// serialized into Telegram's button grid with client-side resizing
// requested. Transport failures are masked by contract: they are logged and
// the caller's control flow continues.
func (d *Driver) SendMessage(ctx context.Context, recipient message.User, text string, keyboard *message.Keyboard) error {
	form := url.Values{
		"chat_id": {recipient.ID},
		"text":    {text},
	}

	if keyboard != nil {
		markup, err := replyMarkup(keyboard)
		if err != nil {
			return fmt.Errorf("serialize keyboard: %w", err)
		}
		form.Set("reply_markup", markup)
	}

	resp, err := d.postForm(ctx, "sendMessage", form)
	if err != nil {
		d.log.Warn("Failed to send telegram message", "chat_id", recipient.ID, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		d.log.Warn("Telegram rejected outgoing message", "chat_id", recipient.ID, "status", resp.StatusCode)
	}

	return nil
}

// replyMarkup serializes the normalized keyboard into Telegram's reply
// keyboard JSON, one row per logical row.
func replyMarkup(keyboard *message.Keyboard) (string, error) {
	rows := make([][]telego.KeyboardButton, 0, len(keyboard.Rows))
	for _, row := range keyboard.Rows {
		buttons := make([]telego.KeyboardButton, 0, len(row))
		for _, button := range row {
			buttons = append(buttons, telego.KeyboardButton{Text: button.Label})
		}
		rows = append(rows, buttons)
	}

	raw, err := json.Marshal(telego.ReplyKeyboardMarkup{
		Keyboard:       rows,
		ResizeKeyboard: true,
	})
	if err != nil {
		return "", err
	}

	return string(raw), nil
}

// InstallWebhook registers the callback URL with Telegram. One shot, no
// retries, no response validation beyond the HTTP call itself.
func (d *Driver) InstallWebhook(ctx context.Context, callbackURL string) error {
	resp, err := d.postForm(ctx, "setWebhook", url.Values{"url": {callbackURL}})
	if err != nil {
		return fmt.Errorf("install webhook: %w", err)
	}

	return resp.Body.Close()
}

func (d *Driver) postForm(ctx context.Context, method string, form url.Values) (*http.Response, error) {
	endpoint := d.baseURL + "/bot" + d.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return d.client.Do(req)
}
