package domain

import (
	"encoding/json"
	"time"
)

type EventName string

// Inbound events.
const (
	EventAnnounce     EventName = "announce"
	EventSendMessage  EventName = "send-message"
	EventJoinRoom     EventName = "join-room"
	EventLeaveRoom    EventName = "leave-room"
	EventMarkRead     EventName = "mark-read"
	EventGetHistory   EventName = "get-chat-history"
	EventContactAdded EventName = "contact-added"
	EventCallUser     EventName = "call-user"
	EventAnswerCall   EventName = "answer-call"
	EventOffer        EventName = "offer"
	EventAnswer       EventName = "answer"
	EventICECandidate EventName = "ice-candidate"
	EventEndCall      EventName = "end-call"
)

var inbound = map[EventName]struct{}{
	EventAnnounce:     {},
	EventSendMessage:  {},
	EventJoinRoom:     {},
	EventLeaveRoom:    {},
	EventMarkRead:     {},
	EventGetHistory:   {},
	EventContactAdded: {},
	EventCallUser:     {},
	EventAnswerCall:   {},
	EventOffer:        {},
	EventAnswer:       {},
	EventICECandidate: {},
	EventEndCall:      {},
}

// Inbound reports whether clients may send e.
func (e EventName) Inbound() bool {
	_, ok := inbound[e]
	return ok
}

// Outbound events.
const (
	EventAnnounced        EventName = "announced"
	EventMessage          EventName = "message"
	EventNewMessageNotify EventName = "new-message-notification"
	EventUserOnline       EventName = "user-online"
	EventUserOffline      EventName = "user-offline"
	EventIncomingCall     EventName = "incoming-call"
	EventCallAccepted     EventName = "call-accepted"
	EventCallRejected     EventName = "call-rejected"
	EventCallEnded        EventName = "call-ended"
	EventChatHistory      EventName = "chat-history"
	EventLoginError       EventName = "login-error"
	EventMessageError     EventName = "message-error"
	EventCallFailed       EventName = "call-failed"
	EventHistoryError     EventName = "chat-history-error"
)

// Event is one frame pushed to a connection.
type Event struct {
	Name EventName
	Data any
}

type PresencePayload struct {
	UserID   UserID `json:"userId"`
	Username string `json:"username,omitempty"`
}

type MessagePayload struct {
	ID        MessageID  `json:"id"`
	RoomID    RoomID     `json:"roomId"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	FromID    UserID     `json:"fromId"`
	ToID      UserID     `json:"toId"`
	Text      string     `json:"text"`
	Read      bool       `json:"read"`
	Timestamp time.Time  `json:"timestamp"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}

func NewMessagePayload(m ResolvedMessage) MessagePayload {
	return MessagePayload{
		ID:        m.ID,
		RoomID:    m.RoomID,
		From:      m.FromName,
		To:        m.ToName,
		FromID:    m.Message.From,
		ToID:      m.Message.To,
		Text:      m.Text,
		Read:      m.Read,
		Timestamp: m.CreatedAt,
		ReadAt:    m.ReadAt,
	}
}

type NotificationPayload struct {
	From   string `json:"from"`
	FromID UserID `json:"fromId"`
	RoomID RoomID `json:"roomId"`
}

type IncomingCallPayload struct {
	From            UserID   `json:"from"`
	FromDisplayName string   `json:"fromDisplayName"`
	Kind            CallKind `json:"kind"`
}

type PeerPayload struct {
	From UserID `json:"from"`
}

type SignalPayload struct {
	From    UserID          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type HistoryPayload struct {
	RoomID   RoomID           `json:"roomId"`
	Messages []MessagePayload `json:"messages"`
}

// ErrorPayload carries a failure back to the originating connection. Error
// and Reason hold the same text; login/message errors read the former and
// call failures the latter.
type ErrorPayload struct {
	Code   ErrorKind `json:"code"`
	Error  string    `json:"error,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

func NewErrorEvent(name EventName, err error) Event {
	pub := Public(err)
	p := ErrorPayload{Code: pub.Kind}
	if name == EventCallFailed {
		p.Reason = pub.Reason
	} else {
		p.Error = pub.Reason
	}
	return Event{Name: name, Data: p}
}
