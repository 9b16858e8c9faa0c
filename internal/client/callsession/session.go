// Package callsession drives one side of a two-party call over the relay.
// The relay forwards offers, answers and ICE candidates without keeping any
// call state, so ringing, negotiation and candidate buffering live here.
package callsession

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type State int

const (
	StateIdle State = iota
	StateRinging
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRinging:
		return "ringing"
	case StateActive:
		return "active"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrBusy         = errors.New("callsession: already in a call")
	ErrNotRinging   = errors.New("callsession: no incoming call to answer")
	ErrNoPeerSignal = errors.New("callsession: signal from unexpected peer")
)

// Signaler sends one event to the relay.
type Signaler interface {
	Send(event domain.EventName, data any) error
}

// Peer is the part of a WebRTC peer connection the session drives.
type Peer interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	Close() error
}

// PeerFactory opens a peer for a call. onCandidate receives local candidates
// as they are gathered.
type PeerFactory func(kind domain.CallKind, onCandidate func(webrtc.ICECandidateInit)) (Peer, error)

// Outbound request bodies, as read by the relay.
type callUserRequest struct {
	To   domain.UserID   `json:"to"`
	Kind domain.CallKind `json:"kind"`
}

type answerCallRequest struct {
	To       domain.UserID `json:"to"`
	Accepted bool          `json:"accepted"`
}

type signalRequest struct {
	To      domain.UserID `json:"to"`
	Payload any           `json:"payload"`
}

type peerRequest struct {
	To domain.UserID `json:"to"`
}

// Session is the call state of one client. It handles at most one call at a
// time; a second incoming call while busy is rejected.
type Session struct {
	signaler Signaler
	newPeer  PeerFactory

	mu        sync.Mutex
	state     State
	outgoing  bool
	remote    domain.UserID
	kind      domain.CallKind
	peer      Peer
	remoteSet bool
	// candidates received before the remote description was applied
	pending      []webrtc.ICECandidateInit
	pendingOffer *webrtc.SessionDescription
}

func New(signaler Signaler, newPeer PeerFactory) *Session {
	return &Session{signaler: signaler, newPeer: newPeer}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remote returns the other party of the current call.
func (s *Session) Remote() (domain.UserID, domain.CallKind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return "", "", false
	}
	return s.remote, s.kind, true
}

// Dial rings `to`. The call becomes active when call-accepted arrives.
func (s *Session) Dial(to domain.UserID, kind domain.CallKind) error {
	if !kind.Valid() {
		return fmt.Errorf("callsession: invalid call kind %q", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrBusy
	}
	if err := s.signaler.Send(domain.EventCallUser, callUserRequest{To: to, Kind: kind}); err != nil {
		return err
	}
	s.state = StateRinging
	s.outgoing = true
	s.remote = to
	s.kind = kind
	return nil
}

// Accept answers the ringing incoming call and opens the peer. An offer that
// arrived while ringing is applied right away.
func (s *Session) Accept() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRinging || s.outgoing {
		return ErrNotRinging
	}
	if err := s.signaler.Send(domain.EventAnswerCall, answerCallRequest{To: s.remote, Accepted: true}); err != nil {
		return err
	}
	if err := s.openPeerLocked(); err != nil {
		s.hangupLocked()
		return err
	}
	s.state = StateActive

	if offer := s.pendingOffer; offer != nil {
		s.pendingOffer = nil
		return s.answerLocked(*offer)
	}
	return nil
}

// Reject declines the ringing incoming call.
func (s *Session) Reject() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRinging || s.outgoing {
		return ErrNotRinging
	}
	err := s.signaler.Send(domain.EventAnswerCall, answerCallRequest{To: s.remote, Accepted: false})
	s.resetLocked()
	return err
}

// Hangup ends the current call, ringing or active.
func (s *Session) Hangup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return nil
	}
	return s.hangupLocked()
}

func (s *Session) hangupLocked() error {
	err := s.signaler.Send(domain.EventEndCall, peerRequest{To: s.remote})
	s.resetLocked()
	return err
}

// Handle applies one relay event. Events that have nothing to do with
// calls are ignored.
func (s *Session) Handle(event domain.EventName, data json.RawMessage) error {
	switch event {
	case domain.EventIncomingCall:
		var p domain.IncomingCallPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		return s.onIncoming(p.From, p.Kind)

	case domain.EventCallAccepted, domain.EventCallRejected, domain.EventCallEnded:
		var p domain.PeerPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if event == domain.EventCallAccepted {
			return s.onAccepted(p.From)
		}
		s.onClosedBy(p.From)
		return nil

	case domain.EventCallFailed:
		s.mu.Lock()
		if s.state == StateRinging && s.outgoing {
			s.resetLocked()
		}
		s.mu.Unlock()
		return nil

	case domain.EventOffer, domain.EventAnswer:
		var p struct {
			From    domain.UserID             `json:"from"`
			Payload webrtc.SessionDescription `json:"payload"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if event == domain.EventOffer {
			return s.onOffer(p.From, p.Payload)
		}
		return s.onAnswer(p.From, p.Payload)

	case domain.EventICECandidate:
		var p struct {
			From    domain.UserID           `json:"from"`
			Payload webrtc.ICECandidateInit `json:"payload"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		return s.onCandidate(p.From, p.Payload)
	}
	return nil
}

func (s *Session) onIncoming(from domain.UserID, kind domain.CallKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		if err := s.signaler.Send(domain.EventAnswerCall, answerCallRequest{To: from, Accepted: false}); err != nil {
			return err
		}
		return ErrBusy
	}
	s.state = StateRinging
	s.outgoing = false
	s.remote = from
	s.kind = kind
	return nil
}

// onAccepted opens the peer on the caller side and sends the offer.
func (s *Session) onAccepted(from domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRinging || !s.outgoing || from != s.remote {
		return nil
	}
	if err := s.openPeerLocked(); err != nil {
		s.hangupLocked()
		return err
	}
	s.state = StateActive

	offer, err := s.peer.CreateOffer()
	if err != nil {
		return err
	}
	if err := s.peer.SetLocalDescription(offer); err != nil {
		return err
	}
	return s.signaler.Send(domain.EventOffer, signalRequest{To: s.remote, Payload: offer})
}

func (s *Session) onClosedBy(from domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle || from != s.remote {
		return
	}
	s.resetLocked()
}

func (s *Session) onOffer(from domain.UserID, offer webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle || from != s.remote {
		return ErrNoPeerSignal
	}
	if s.peer == nil {
		s.pendingOffer = &offer
		return nil
	}
	return s.answerLocked(offer)
}

func (s *Session) answerLocked(offer webrtc.SessionDescription) error {
	if err := s.applyRemoteLocked(offer); err != nil {
		return err
	}
	answer, err := s.peer.CreateAnswer()
	if err != nil {
		return err
	}
	if err := s.peer.SetLocalDescription(answer); err != nil {
		return err
	}
	return s.signaler.Send(domain.EventAnswer, signalRequest{To: s.remote, Payload: answer})
}

func (s *Session) onAnswer(from domain.UserID, answer webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive || from != s.remote || s.peer == nil {
		return ErrNoPeerSignal
	}
	return s.applyRemoteLocked(answer)
}

func (s *Session) onCandidate(from domain.UserID, c webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle || from != s.remote {
		return ErrNoPeerSignal
	}
	if s.peer == nil || !s.remoteSet {
		s.pending = append(s.pending, c)
		return nil
	}
	return s.peer.AddICECandidate(c)
}

// applyRemoteLocked sets the remote description and flushes buffered
// candidates in arrival order.
func (s *Session) applyRemoteLocked(desc webrtc.SessionDescription) error {
	if err := s.peer.SetRemoteDescription(desc); err != nil {
		return err
	}
	s.remoteSet = true

	pending := s.pending
	s.pending = nil
	for _, c := range pending {
		if err := s.peer.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("remote", s.remote.String()).Msg("Dropping buffered ICE candidate")
		}
	}
	return nil
}

func (s *Session) openPeerLocked() error {
	remote := s.remote
	peer, err := s.newPeer(s.kind, func(c webrtc.ICECandidateInit) {
		s.sendCandidate(remote, c)
	})
	if err != nil {
		return err
	}
	s.peer = peer
	s.remoteSet = false
	return nil
}

// sendCandidate runs on the peer's gathering goroutine.
func (s *Session) sendCandidate(to domain.UserID, c webrtc.ICECandidateInit) {
	s.mu.Lock()
	current := s.state != StateIdle && s.remote == to
	s.mu.Unlock()
	if !current {
		return
	}
	if err := s.signaler.Send(domain.EventICECandidate, signalRequest{To: to, Payload: c}); err != nil {
		log.Warn().Err(err).Str("remote", to.String()).Msg("Failed to send ICE candidate")
	}
}

func (s *Session) resetLocked() {
	if s.peer != nil {
		if err := s.peer.Close(); err != nil {
			log.Debug().Err(err).Msg("Peer close failed")
		}
	}
	s.state = StateIdle
	s.outgoing = false
	s.remote = ""
	s.kind = ""
	s.peer = nil
	s.remoteSet = false
	s.pending = nil
	s.pendingOffer = nil
}
