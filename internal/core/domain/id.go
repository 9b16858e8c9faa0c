package domain

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// RoomSeparator joins the two sorted user ids of a room.
const RoomSeparator = "_"

type UserID string
type RoomID string
type MessageID string

func NewUserID() UserID {
	return UserID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func (id UserID) String() string {
	return string(id)
}

func (id RoomID) String() string {
	return string(id)
}

func (id MessageID) String() string {
	return string(id)
}

// RoomIDFor returns the room shared by a and b. The result does not depend
// on argument order.
func RoomIDFor(a, b UserID) RoomID {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return RoomID(strings.Join(ids, RoomSeparator))
}

// NewInviteCode returns a short shareable code.
func NewInviteCode() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:10]
}
