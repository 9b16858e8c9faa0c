package service

import (
	"context"
	"time"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/Wyydra/yarelay/internal/core/port"
	"github.com/rs/zerolog/log"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
	// SessionHistoryLimit bounds get-chat-history over the socket.
	SessionHistoryLimit = 100
)

type SendMessageInput struct {
	From   domain.UserID
	To     domain.UserID
	Text   string
	RoomID domain.RoomID
}

type ChatService struct {
	users    port.UserRepository
	messages port.MessageRepository
	gateway  port.RealTimeGateway
}

func NewChatService(users port.UserRepository, messages port.MessageRepository, gateway port.RealTimeGateway) *ChatService {
	return &ChatService{
		users:    users,
		messages: messages,
		gateway:  gateway,
	}
}

// SendMessage persists a message between two contacts and delivers it to
// every connection joined to the room. Delivery happens after the write so
// sequential sends on one connection reach members in store order.
func (s *ChatService) SendMessage(ctx context.Context, sess *Session, in SendMessageInput) (*domain.ResolvedMessage, error) {
	if _, _, err := sess.requireSelf(in.From); err != nil {
		return nil, err
	}
	if err := domain.ValidateText(in.Text); err != nil {
		return nil, err
	}

	from, to, err := s.pair(ctx, in.From, in.To)
	if err != nil {
		return nil, err
	}
	if !domain.MutualContacts(from, to) {
		return nil, domain.Forbidden("users are not contacts")
	}

	// A caller-supplied room id is trusted as-is.
	roomID := in.RoomID
	if roomID == "" {
		roomID = domain.RoomIDFor(from.ID, to.ID)
	}

	msg, err := domain.NewMessage(roomID, from.ID, to.ID, in.Text)
	if err != nil {
		return nil, err
	}
	if err := s.messages.Save(ctx, msg); err != nil {
		return nil, err
	}

	resolved := domain.ResolvedMessage{Message: *msg, FromName: from.Username, ToName: to.Username}
	s.gateway.SendToRoom(roomID, domain.Event{
		Name: domain.EventMessage,
		Data: domain.NewMessagePayload(resolved),
	})

	// Fires whenever the recipient is online, including when the room is
	// already open on their side.
	s.gateway.SendToUser(to.ID, domain.Event{
		Name: domain.EventNewMessageNotify,
		Data: domain.NotificationPayload{From: from.Username, FromID: from.ID, RoomID: roomID},
	})

	log.Debug().Str("room_id", roomID.String()).Str("from", from.ID.String()).Str("to", to.ID.String()).Msg("Message delivered")
	return &resolved, nil
}

// MarkRead flags every unread message of the room addressed to userID.
// Senders are not told; they see it on their next history fetch.
func (s *ChatService) MarkRead(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (int, error) {
	if roomID == "" || userID == "" {
		return 0, domain.InvalidArgument("roomId and userId are required")
	}
	return s.messages.MarkRead(ctx, roomID, userID)
}

// MarkReadFor is MarkRead on behalf of an announced connection.
func (s *ChatService) MarkReadFor(ctx context.Context, sess *Session, roomID domain.RoomID, userID domain.UserID) (int, error) {
	if _, _, err := sess.requireSelf(userID); err != nil {
		return 0, err
	}
	return s.MarkRead(ctx, roomID, userID)
}

// History returns a page of the room oldest first. The store is queried
// newest first so Limit keeps the most recent messages.
func (s *ChatService) History(ctx context.Context, roomID domain.RoomID, limit int, before *time.Time) ([]domain.ResolvedMessage, error) {
	if roomID == "" {
		return nil, domain.InvalidArgument("roomId is required")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	msgs, err := s.messages.History(ctx, domain.HistoryQuery{RoomID: roomID, Limit: limit, Before: before})
	if err != nil {
		return nil, err
	}

	names := make(map[domain.UserID]string)
	out := make([]domain.ResolvedMessage, len(msgs))
	for i, m := range msgs {
		fromName, err := s.username(ctx, names, m.From)
		if err != nil {
			return nil, err
		}
		toName, err := s.username(ctx, names, m.To)
		if err != nil {
			return nil, err
		}
		// reverse into oldest-first
		out[len(msgs)-1-i] = domain.ResolvedMessage{Message: m, FromName: fromName, ToName: toName}
	}
	return out, nil
}

// SessionHistory answers get-chat-history for an announced connection.
func (s *ChatService) SessionHistory(ctx context.Context, sess *Session, roomID domain.RoomID, userID domain.UserID) ([]domain.ResolvedMessage, error) {
	if _, _, err := sess.requireSelf(userID); err != nil {
		return nil, err
	}
	return s.History(ctx, roomID, SessionHistoryLimit, nil)
}

// JoinRoom subscribes the connection to a room's live feed.
func (s *ChatService) JoinRoom(sess *Session, roomID domain.RoomID) error {
	if roomID == "" {
		return domain.InvalidArgument("roomId is required")
	}
	if sess.State() == StateClosed {
		return domain.Unauthorized("connection closed")
	}
	s.gateway.Join(roomID, sess.Conn())
	return nil
}

func (s *ChatService) LeaveRoom(sess *Session, roomID domain.RoomID) error {
	if roomID == "" {
		return domain.InvalidArgument("roomId is required")
	}
	s.gateway.Leave(roomID, sess.Conn())
	return nil
}

// ContactAdded joins the connection to the room it now shares with friendID.
func (s *ChatService) ContactAdded(sess *Session, friendID domain.UserID) error {
	self, _, err := sess.requireIdentity()
	if err != nil {
		return err
	}
	if friendID == "" {
		return domain.InvalidArgument("friendId is required")
	}
	s.gateway.Join(domain.RoomIDFor(self, friendID), sess.Conn())
	return nil
}

func (s *ChatService) pair(ctx context.Context, a, b domain.UserID) (*domain.User, *domain.User, error) {
	if a == "" || b == "" {
		return nil, nil, domain.InvalidArgument("from and to are required")
	}
	ua, err := s.users.GetByID(ctx, a)
	if err != nil {
		return nil, nil, err
	}
	ub, err := s.users.GetByID(ctx, b)
	if err != nil {
		return nil, nil, err
	}
	return ua, ub, nil
}

func (s *ChatService) username(ctx context.Context, cache map[domain.UserID]string, id domain.UserID) (string, error) {
	if name, ok := cache[id]; ok {
		return name, nil
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	cache[id] = u.Username
	return u.Username, nil
}
