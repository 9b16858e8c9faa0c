package http

import (
	"encoding/json"
	"time"

	"github.com/Wyydra/yarelay/internal/core/domain"
)

// Socket requests.

type announceRequest struct {
	UserID domain.UserID `json:"userId"`
}

type sendMessageRequest struct {
	From   domain.UserID `json:"from"`
	To     domain.UserID `json:"to"`
	Text   string        `json:"text"`
	RoomID domain.RoomID `json:"roomId"`
}

type roomRequest struct {
	RoomID domain.RoomID `json:"roomId"`
}

type markReadRequest struct {
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
}

type historyRequest struct {
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
}

type contactAddedRequest struct {
	FriendID domain.UserID `json:"friendId"`
}

type callUserRequest struct {
	To   domain.UserID   `json:"to"`
	Kind domain.CallKind `json:"kind"`
}

type answerCallRequest struct {
	To       domain.UserID `json:"to"`
	Accepted bool          `json:"accepted"`
}

type signalRequest struct {
	To      domain.UserID   `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

type peerRequest struct {
	To domain.UserID `json:"to"`
}

// REST bodies.

type loginRequest struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type contactRequest struct {
	UserID   domain.UserID `json:"userId"`
	FriendID domain.UserID `json:"friendId"`
}

type userResponse struct {
	ID         domain.UserID   `json:"id"`
	Username   string          `json:"username"`
	Avatar     string          `json:"avatar"`
	InviteCode string          `json:"inviteCode,omitempty"`
	Contacts   []domain.UserID `json:"contacts,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func newUserResponse(u *domain.User) userResponse {
	contacts := u.Contacts
	if contacts == nil {
		contacts = []domain.UserID{}
	}
	return userResponse{
		ID:         u.ID,
		Username:   u.Username,
		Avatar:     u.Avatar,
		InviteCode: u.InviteCode,
		Contacts:   contacts,
		CreatedAt:  u.CreatedAt,
	}
}

type loginResponse struct {
	User    userResponse `json:"user"`
	Created bool         `json:"created"`
}

type profileResponse struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
	Avatar   string        `json:"avatar"`
}

func newProfileResponse(p domain.Profile) profileResponse {
	return profileResponse{ID: p.ID, Username: p.Username, Avatar: p.Avatar}
}

type lastMessageResponse struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	From      string    `json:"from"`
	Read      bool      `json:"read"`
}

type contactResponse struct {
	profileResponse
	LastMessage *lastMessageResponse `json:"lastMessage"`
	UnreadCount int                  `json:"unreadCount"`
}

func newContactResponse(c domain.ContactSummary) contactResponse {
	out := contactResponse{
		profileResponse: newProfileResponse(c.Profile),
		UnreadCount:     c.UnreadCount,
	}
	if c.LastMessage != nil {
		out.LastMessage = &lastMessageResponse{
			Text:      c.LastMessage.Text,
			Timestamp: c.LastMessage.Timestamp,
			From:      c.LastMessage.From,
			Read:      c.LastMessage.Read,
		}
	}
	return out
}

type addContactResponse struct {
	Contact      profileResponse `json:"contact"`
	AlreadyAdded bool            `json:"alreadyAdded"`
}

type markReadResponse struct {
	Updated int `json:"updated"`
}

type inviteResponse struct {
	ID         domain.UserID `json:"id"`
	Username   string        `json:"username"`
	Avatar     string        `json:"avatar"`
	InviteCode string        `json:"inviteCode"`
}

type errorResponse struct {
	Error string           `json:"error"`
	Code  domain.ErrorKind `json:"code"`
}
