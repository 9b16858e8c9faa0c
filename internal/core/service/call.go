package service

import (
	"context"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/Wyydra/yarelay/internal/core/port"
	"github.com/rs/zerolog/log"
)

// CallService relays call control and WebRTC negotiation between two
// connections. It keeps no call state; ringing, active and idle live in the
// two clients.
type CallService struct {
	users   port.UserRepository
	gateway port.RealTimeGateway
}

func NewCallService(users port.UserRepository, gateway port.RealTimeGateway) *CallService {
	return &CallService{
		users:   users,
		gateway: gateway,
	}
}

// CallUser rings a contact. Unlike the other call events it reports when the
// callee is offline.
func (s *CallService) CallUser(ctx context.Context, sess *Session, to domain.UserID, kind domain.CallKind) error {
	from, fromName, err := sess.requireIdentity()
	if err != nil {
		return err
	}
	if to == "" {
		return domain.InvalidArgument("to is required")
	}
	if !kind.Valid() {
		return domain.InvalidArgument("kind must be voice or video")
	}

	caller, err := s.users.GetByID(ctx, from)
	if err != nil {
		return err
	}
	if !caller.HasContact(to) {
		return domain.Forbidden("user is not a contact")
	}
	callee, err := s.users.GetByID(ctx, to)
	if err != nil {
		return err
	}
	if !callee.HasContact(from) {
		return domain.Forbidden("user is not a contact")
	}

	delivered := s.gateway.SendToUser(to, domain.Event{
		Name: domain.EventIncomingCall,
		Data: domain.IncomingCallPayload{From: from, FromDisplayName: fromName, Kind: kind},
	})
	if !delivered {
		return domain.Unavailable("user not online")
	}

	log.Info().Str("from", from.String()).Str("to", to.String()).Str("kind", string(kind)).Msg("Calling user")
	return nil
}

// AnswerCall tells the caller whether the call was accepted. It is dropped
// when the caller has gone away.
func (s *CallService) AnswerCall(sess *Session, to domain.UserID, accepted bool) (bool, error) {
	from, _, err := sess.requireIdentity()
	if err != nil {
		return false, err
	}
	name := domain.EventCallRejected
	if accepted {
		name = domain.EventCallAccepted
	}
	delivered := s.gateway.SendToUser(to, domain.Event{Name: name, Data: domain.PeerPayload{From: from}})
	log.Debug().Str("from", from.String()).Str("to", to.String()).Bool("accepted", accepted).Bool("delivered", delivered).Msg("Call answered")
	return delivered, nil
}

// Relay forwards an offer, answer or ICE candidate untouched. Nothing is
// buffered: a payload for an absent recipient is dropped without telling the
// sender.
func (s *CallService) Relay(sess *Session, sig domain.Signal) (bool, error) {
	from, _, err := sess.requireIdentity()
	if err != nil {
		return false, err
	}
	if !sig.Type.Valid() {
		return false, domain.InvalidArgument("unknown signal type")
	}
	return s.gateway.SendToUser(sig.To, domain.Event{
		Name: domain.EventName(sig.Type),
		Data: domain.SignalPayload{From: from, Payload: sig.Payload},
	}), nil
}

// EndCall notifies `to` and echoes call-ended back to the caller so both UIs
// settle, even though only one recipient was named.
func (s *CallService) EndCall(sess *Session, to domain.UserID) (bool, error) {
	from, _, err := sess.requireIdentity()
	if err != nil {
		return false, err
	}
	delivered := s.gateway.SendToUser(to, domain.Event{
		Name: domain.EventCallEnded,
		Data: domain.PeerPayload{From: from},
	})

	conn := sess.Conn()
	if err := conn.Send(domain.Event{Name: domain.EventCallEnded, Data: domain.PeerPayload{From: to}}); err != nil {
		log.Warn().Err(err).Str("conn_id", conn.ID()).Msg("Failed to echo call-ended")
	}
	return delivered, nil
}
