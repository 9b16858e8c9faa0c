package service

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentReconnectsSettle(t *testing.T) {
	const n = 50
	e := newEnv(t)
	alice, bob := e.user(t, "alice"), e.user(t, "bob")
	e.befriend(t, alice, bob)
	room := domain.RoomIDFor(alice.ID, bob.ID)

	bobSess, bobConn := e.connect(t, bob, "bob")

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := e.presence.Connect(&fakeConn{id: fmt.Sprintf("alice-%d", i)})
			defer e.presence.Disconnect(sess)

			if _, err := e.presence.Announce(e.ctx, sess, alice.ID); !assert.NoError(t, err) {
				return
			}
			_, err := e.chat.SendMessage(e.ctx, sess, SendMessageInput{
				From: alice.ID,
				To:   bob.ID,
				Text: fmt.Sprintf("hi %d", i),
			})
			assert.NoError(t, err)
			assert.NoError(t, e.call.CallUser(e.ctx, sess, bob.ID, domain.CallVoice))
		}(i)
	}
	wg.Wait()

	_, online := e.hub.Lookup(alice.ID)
	assert.False(t, online)
	conn, online := e.hub.Lookup(bob.ID)
	require.True(t, online)
	assert.Same(t, bobConn, conn)

	assert.Len(t, bobConn.named(domain.EventMessage), n)
	assert.Len(t, bobConn.named(domain.EventIncomingCall), n)
	history, err := e.chat.History(e.ctx, room, n, nil)
	require.NoError(t, err)
	assert.Len(t, history, n)

	assert.Len(t, e.hub.Members(room), 1)
	e.presence.Disconnect(bobSess)
	assert.Empty(t, e.hub.Members(room))
	_, online = e.hub.Lookup(bob.ID)
	assert.False(t, online)
}
