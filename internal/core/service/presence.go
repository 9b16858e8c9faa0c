package service

import (
	"context"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/Wyydra/yarelay/internal/core/port"
	"github.com/rs/zerolog/log"
)

// PresenceService binds connections to identities and keeps the presence
// registry in step with connects and disconnects.
type PresenceService struct {
	users   port.UserRepository
	gateway port.RealTimeGateway
}

func NewPresenceService(users port.UserRepository, gateway port.RealTimeGateway) *PresenceService {
	return &PresenceService{
		users:   users,
		gateway: gateway,
	}
}

// Connect starts tracking conn and returns its unauthenticated session.
func (s *PresenceService) Connect(conn port.Conn) *Session {
	s.gateway.Attach(conn)
	return NewSession(conn)
}

// Announce binds the session to userID. The identity is taken on trust:
// there is no credential check.
func (s *PresenceService) Announce(ctx context.Context, sess *Session, userID domain.UserID) (*domain.User, error) {
	if userID == "" {
		return nil, domain.InvalidArgument("userId is required")
	}
	if err := sess.canBind(userID); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	// The store round trip may have raced a disconnect or another announce.
	if err := sess.bind(user); err != nil {
		return nil, err
	}

	conn := sess.Conn()
	s.gateway.Register(user.ID, conn)
	if sess.State() == StateClosed {
		s.gateway.Unregister(user.ID, conn)
		return nil, domain.Unauthorized("connection closed")
	}

	for _, contact := range user.Contacts {
		s.gateway.Join(domain.RoomIDFor(user.ID, contact), conn)
	}

	s.gateway.Broadcast(domain.Event{
		Name: domain.EventUserOnline,
		Data: domain.PresencePayload{UserID: user.ID, Username: user.Username},
	}, conn)

	if err := conn.Send(domain.Event{
		Name: domain.EventAnnounced,
		Data: domain.PresencePayload{UserID: user.ID, Username: user.Username},
	}); err != nil {
		log.Warn().Err(err).Str("conn_id", conn.ID()).Msg("Failed to acknowledge announce")
	}

	log.Info().Str("user_id", user.ID.String()).Str("username", user.Username).Str("conn_id", conn.ID()).Msg("User logged in")
	return user, nil
}

// Disconnect closes the session. The presence entry is dropped only while
// this connection is still the registered one, and only then is the user
// reported offline.
func (s *PresenceService) Disconnect(sess *Session) {
	userID, authenticated, wasOpen := sess.close()
	if !wasOpen {
		return
	}

	conn := sess.Conn()
	s.gateway.Detach(conn)
	if !authenticated {
		return
	}

	if !s.gateway.Unregister(userID, conn) {
		return
	}
	s.gateway.Broadcast(domain.Event{
		Name: domain.EventUserOffline,
		Data: domain.PresencePayload{UserID: userID},
	}, conn)
	log.Info().Str("user_id", userID.String()).Str("conn_id", conn.ID()).Msg("User disconnected")
}
