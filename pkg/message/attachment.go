package message

import "context"

// AttachmentType enumerates the provider-independent media kinds. Matching on
// a type is exact and case-sensitive.
type AttachmentType string

const (
	TypeFile    AttachmentType = "file"
	TypeImage   AttachmentType = "image"
	TypeAudio   AttachmentType = "audio"
	TypeVideo   AttachmentType = "video"
	TypeVoice   AttachmentType = "voice"
	TypeSticker AttachmentType = "sticker"
)

// AttachmentTypes lists every enumerated attachment type.
func AttachmentTypes() []AttachmentType {
	return []AttachmentType{TypeFile, TypeImage, TypeAudio, TypeVideo, TypeVoice, TypeSticker}
}

// FetchFunc retrieves the binary contents of an attachment from its remote
// location. Drivers supply one; it runs only when contents are requested.
type FetchFunc func(context.Context) ([]byte, error)

// Attachment is a media reference attached to a message. The remote path is
// resolved by the driver when the message is extracted; binary contents are
// fetched lazily on the first Contents call and cached.
type Attachment struct {
	Type AttachmentType `json:"type"`
	Path string         `json:"path"`

	fetch    FetchFunc
	contents []byte
	fetched  bool
}

// NewAttachment builds an attachment with a lazy contents fetcher. fetch may
// be nil for attachments that carry no retrievable body.
func NewAttachment(kind AttachmentType, path string, fetch FetchFunc) *Attachment {
	return &Attachment{Type: kind, Path: path, fetch: fetch}
}

// Contents returns the attachment body, fetching it from the provider on the
// first call. A fetch failure is returned to the caller and not cached, so a
// retry is possible.
func (a *Attachment) Contents(ctx context.Context) ([]byte, error) {
	if a.fetched {
		return a.contents, nil
	}
	if a.fetch == nil {
		return nil, nil
	}

	contents, err := a.fetch(ctx)
	if err != nil {
		return nil, err
	}

	a.contents = contents
	a.fetched = true
	return a.contents, nil
}
