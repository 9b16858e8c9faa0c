package callsession

import (
	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type pionPeer struct {
	pc *webrtc.PeerConnection
}

// NewPionFactory opens real pion peer connections. Each peer receives audio,
// and video too for video calls; local tracks are added by the caller of
// the returned Peer if it needs to send media.
func NewPionFactory(cfg webrtc.Configuration) PeerFactory {
	return func(kind domain.CallKind, onCandidate func(webrtc.ICECandidateInit)) (Peer, error) {
		pc, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, err
		}

		kinds := []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio}
		if kind == domain.CallVideo {
			kinds = append(kinds, webrtc.RTPCodecTypeVideo)
		}
		for _, k := range kinds {
			if _, err := pc.AddTransceiverFromKind(k, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				pc.Close()
				return nil, err
			}
		}

		pc.OnICECandidate(func(c *webrtc.ICECandidate) {
			// nil marks the end of gathering
			if c == nil || onCandidate == nil {
				return
			}
			onCandidate(c.ToJSON())
		})
		pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
			log.Debug().Str("state", state.String()).Msg("Peer connection state changed")
		})
		return &pionPeer{pc: pc}, nil
	}
}

func (p *pionPeer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *pionPeer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *pionPeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *pionPeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *pionPeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(c)
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}
