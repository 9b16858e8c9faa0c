package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomIDForIsSymmetric(t *testing.T) {
	a, b := NewUserID(), NewUserID()
	assert.Equal(t, RoomIDFor(a, b), RoomIDFor(b, a))
	assert.NotEqual(t, RoomIDFor(a, b), RoomIDFor(a, NewUserID()))
}

func TestRoomIDForSortsMembers(t *testing.T) {
	assert.Equal(t, RoomID("alice_bob"), RoomIDFor("bob", "alice"))
	assert.Equal(t, RoomID("alice_bob"), RoomIDFor("alice", "bob"))
}

func TestNewInviteCode(t *testing.T) {
	a, b := NewInviteCode(), NewInviteCode()
	assert.Len(t, a, 10)
	assert.NotEqual(t, a, b)
}
