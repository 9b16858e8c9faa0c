package domain

import "encoding/json"

type CallKind string

const (
	CallVoice CallKind = "voice"
	CallVideo CallKind = "video"
)

func (k CallKind) Valid() bool {
	return k == CallVoice || k == CallVideo
}

type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "ice-candidate"
)

func (t SignalType) Valid() bool {
	switch t {
	case SignalOffer, SignalAnswer, SignalCandidate:
		return true
	}
	return false
}

// Signal is a WebRTC negotiation payload. The relay never looks inside Payload.
type Signal struct {
	Type    SignalType
	From    UserID
	To      UserID
	Payload json.RawMessage
}
