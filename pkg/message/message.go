// Package message holds the provider-agnostic message model shared by every
// driver: one normalized inbound turn plus the value types it can carry.
package message

import "strings"

// User identifies the human participant of a conversation.
//
// Only ID is guaranteed; display-name parts and username depend on what the
// provider sends.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Username  string
}

// Name assembles the display name from the first and last name parts.
func (u User) Name() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// Chat identifies the conversation thread on the provider side. The ID is
// provider-specific and opaque outside the driver.
type Chat struct {
	ID string
}

// Incoming is one normalized inbound turn. Fields the provider payload did
// not supply stay nil; Text stays empty.
type Incoming struct {
	Text       string
	Attachment *Attachment
	Location   *Location
	Venue      *Venue
	Contact    *Contact
}

// Location is a flat coordinate pair. Both values are required when a
// location is present at all.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Venue is a named place with a nested location. FoursquareID is nil when
// the provider omits the external place id.
type Venue struct {
	Location     Location `json:"location"`
	Title        string   `json:"title"`
	Address      string   `json:"address"`
	FoursquareID *string  `json:"foursquare_id"`
}

// Contact is a shared contact card. Optional fields serialize as explicit
// nulls rather than absent keys.
type Contact struct {
	PhoneNumber string  `json:"phone_number"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	UserID      *string `json:"user_id"`
}

// Keyboard is a grid of reply buttons, one slice per rendered row.
type Keyboard struct {
	Rows [][]Button
}

// Button is a single reply-keyboard cell.
type Button struct {
	Label string
}

// NewKeyboard builds a single-row keyboard from the given buttons.
func NewKeyboard(buttons ...Button) *Keyboard {
	return &Keyboard{Rows: [][]Button{buttons}}
}
