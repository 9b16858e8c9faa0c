package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const MaxMessageLength = 5000

type Message struct {
	ID        MessageID
	RoomID    RoomID
	From      UserID
	To        UserID
	Text      string
	Read      bool
	CreatedAt time.Time
	ReadAt    *time.Time
}

func NewMessage(roomID RoomID, from, to UserID, text string) (*Message, error) {
	if err := ValidateText(text); err != nil {
		return nil, err
	}
	return &Message{
		ID:        NewMessageID(),
		RoomID:    roomID,
		From:      from,
		To:        to,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return InvalidArgument("message text cannot be empty")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return InvalidArgument("message text too long")
	}
	return nil
}

// ResolvedMessage is a message with sender and recipient names filled in,
// the shape delivered to room members.
type ResolvedMessage struct {
	Message
	FromName string
	ToName   string
}

// LastMessage is the preview shown next to a contact.
type LastMessage struct {
	Text      string
	Timestamp time.Time
	From      string
	Read      bool
}

// ContactSummary is a contact with its latest activity in the shared room.
type ContactSummary struct {
	Profile
	LastMessage *LastMessage
	UnreadCount int
}

// HistoryQuery selects a page of room history.
type HistoryQuery struct {
	RoomID RoomID
	Limit  int
	Before *time.Time
}
