package message

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestUserName(t *testing.T) {
	user := User{FirstName: "Jane", LastName: "Doe"}
	if got := user.Name(); got != "Jane Doe" {
		t.Fatalf("Name() = %q, want %q", got, "Jane Doe")
	}

	user = User{FirstName: "Jane"}
	if got := user.Name(); got != "Jane" {
		t.Fatalf("Name() without last name = %q, want %q", got, "Jane")
	}

	user = User{}
	if got := user.Name(); got != "" {
		t.Fatalf("Name() empty = %q, want empty", got)
	}
}

func TestAttachmentContentsLazy(t *testing.T) {
	calls := 0
	attachment := NewAttachment(TypeImage, "https://example.org/file.jpg", func(context.Context) ([]byte, error) {
		calls++
		return []byte("payload"), nil
	})

	if calls != 0 {
		t.Fatalf("fetch ran before Contents was requested")
	}

	contents, err := attachment.Contents(context.Background())
	if err != nil {
		t.Fatalf("Contents() error = %v", err)
	}
	if string(contents) != "payload" {
		t.Fatalf("Contents() = %q, want %q", contents, "payload")
	}

	if _, err := attachment.Contents(context.Background()); err != nil {
		t.Fatalf("second Contents() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", calls)
	}
}

func TestAttachmentContentsFetchError(t *testing.T) {
	fetchErr := errors.New("connection reset")
	attachment := NewAttachment(TypeFile, "https://example.org/doc.pdf", func(context.Context) ([]byte, error) {
		return nil, fetchErr
	})

	if _, err := attachment.Contents(context.Background()); !errors.Is(err, fetchErr) {
		t.Fatalf("Contents() error = %v, want %v", err, fetchErr)
	}
}

func TestAttachmentMarshalOmitsContents(t *testing.T) {
	attachment := NewAttachment(TypeVideo, "https://example.org/clip.mp4", nil)

	raw, err := json.Marshal(attachment)
	if err != nil {
		t.Fatalf("marshal attachment: %v", err)
	}
	if string(raw) != `{"type":"video","path":"https://example.org/clip.mp4"}` {
		t.Fatalf("marshal attachment = %s", raw)
	}
}

func TestContactMarshalKeepsNullFields(t *testing.T) {
	first := "Jane"
	contact := Contact{PhoneNumber: "+1234567", FirstName: &first}

	raw, err := json.Marshal(contact)
	if err != nil {
		t.Fatalf("marshal contact: %v", err)
	}
	if string(raw) != `{"phone_number":"+1234567","first_name":"Jane","last_name":null,"user_id":null}` {
		t.Fatalf("marshal contact = %s", raw)
	}
}

func TestNewKeyboardSingleRow(t *testing.T) {
	keyboard := NewKeyboard(Button{Label: "yes"}, Button{Label: "no"})
	if len(keyboard.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(keyboard.Rows))
	}
	if len(keyboard.Rows[0]) != 2 {
		t.Fatalf("buttons = %d, want 2", len(keyboard.Rows[0]))
	}
}
