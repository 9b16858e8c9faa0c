package callsession

import (
	"strings"
	"testing"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPionFactoryCreatesOffer(t *testing.T) {
	factory := NewPionFactory(webrtc.Configuration{})

	peer, err := factory(domain.CallVideo, nil)
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	offer, err := peer.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.True(t, strings.Contains(offer.SDP, "m=audio"))
	assert.True(t, strings.Contains(offer.SDP, "m=video"))
}

func TestPionFactoryVoiceHasNoVideo(t *testing.T) {
	peer, err := NewPionFactory(webrtc.Configuration{})(domain.CallVoice, nil)
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	offer, err := peer.CreateOffer()
	require.NoError(t, err)
	assert.Contains(t, offer.SDP, "m=audio")
	assert.NotContains(t, offer.SDP, "m=video")
}
