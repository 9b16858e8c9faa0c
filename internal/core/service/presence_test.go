package service

import (
	"testing"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnounceUnknownUser(t *testing.T) {
	e := newEnv(t)
	sess, conn := e.connect(t, nil, "c1")

	ghost := domain.NewUserID()
	_, err := e.presence.Announce(e.ctx, sess, ghost)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, StateUnauthenticated, sess.State())
	_, online := e.hub.Lookup(ghost)
	assert.False(t, online)
	assert.Empty(t, conn.named(domain.EventAnnounced))
}

func TestAnnounceRegistersJoinsAndBroadcasts(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.user(t, "alice"), e.user(t, "bob")
	e.befriend(t, alice, bob)

	_, bobConn := e.connect(t, bob, "bob-1")
	sess, aliceConn := e.connect(t, alice, "alice-1")

	assert.Equal(t, StateAuthenticated, sess.State())
	got, ok := e.hub.Lookup(alice.ID)
	require.True(t, ok)
	assert.Same(t, aliceConn, got)

	online := bobConn.named(domain.EventUserOnline)
	require.Len(t, online, 1)
	assert.Equal(t, domain.PresencePayload{UserID: alice.ID, Username: "alice"}, online[0].Data)
	assert.Empty(t, aliceConn.named(domain.EventUserOnline))
	assert.Len(t, aliceConn.named(domain.EventAnnounced), 1)

	assert.Len(t, e.hub.Members(domain.RoomIDFor(alice.ID, bob.ID)), 2)
}

func TestAnnounceCannotRebindIdentity(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.user(t, "alice"), e.user(t, "bob")
	sess, _ := e.connect(t, alice, "c1")

	_, err := e.presence.Announce(e.ctx, sess, alice.ID)
	assert.NoError(t, err)

	_, err = e.presence.Announce(e.ctx, sess, bob.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	id, _, ok := sess.Identity()
	require.True(t, ok)
	assert.Equal(t, alice.ID, id)
	_, ok = e.hub.Lookup(bob.ID)
	assert.False(t, ok)
}

func TestSecondConnectionTakesOverPresence(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.user(t, "alice"), e.user(t, "bob")
	e.befriend(t, alice, bob)

	_, bobConn := e.connect(t, bob, "bob-1")
	first, _ := e.connect(t, alice, "alice-1")
	_, second := e.connect(t, alice, "alice-2")
	bobConn.reset()

	got, _ := e.hub.Lookup(alice.ID)
	assert.Same(t, second, got)

	// the stale connection closing leaves the newer one registered
	e.presence.Disconnect(first)
	got, ok := e.hub.Lookup(alice.ID)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Empty(t, bobConn.named(domain.EventUserOffline))
}

func TestDisconnectBroadcastsOffline(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.user(t, "alice"), e.user(t, "bob")
	e.befriend(t, alice, bob)
	_, bobConn := e.connect(t, bob, "bob-1")
	sess, aliceConn := e.connect(t, alice, "alice-1")

	e.presence.Disconnect(sess)
	e.presence.Disconnect(sess)

	assert.Equal(t, StateClosed, sess.State())
	_, ok := e.hub.Lookup(alice.ID)
	assert.False(t, ok)
	offline := bobConn.named(domain.EventUserOffline)
	require.Len(t, offline, 1)
	assert.Equal(t, domain.PresencePayload{UserID: alice.ID}, offline[0].Data)
	assert.Len(t, e.hub.Members(domain.RoomIDFor(alice.ID, bob.ID)), 1)

	// nothing reaches the closed connection afterwards
	aliceConn.reset()
	e.hub.Broadcast(domain.Event{Name: domain.EventUserOnline}, nil)
	assert.Empty(t, aliceConn.named(domain.EventUserOnline))

	_, err := e.presence.Announce(e.ctx, sess, alice.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestDisconnectUnauthenticated(t *testing.T) {
	e := newEnv(t)
	bob := e.user(t, "bob")
	_, bobConn := e.connect(t, bob, "bob-1")
	sess, _ := e.connect(t, nil, "anon")

	e.presence.Disconnect(sess)
	assert.Empty(t, bobConn.named(domain.EventUserOffline))
}
