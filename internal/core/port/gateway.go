package port

import (
	"github.com/Wyydra/yarelay/internal/core/domain"
)

// Conn is a live client connection handle.
type Conn interface {
	ID() string
	// Send queues ev for delivery. Frames queued on one Conn are written in
	// order.
	Send(ev domain.Event) error
	Close() error
}

// Presence maps user identities to their single active connection.
type Presence interface {
	Register(userID domain.UserID, conn Conn)
	Lookup(userID domain.UserID) (Conn, bool)
	// Unregister removes the entry only while conn is still the registered
	// handle and reports whether it did.
	Unregister(userID domain.UserID, conn Conn) bool
}

// RealTimeGateway is presence plus addressable room groups.
type RealTimeGateway interface {
	Presence
	// Attach tracks conn for broadcasts.
	Attach(conn Conn)
	// Detach forgets conn and removes it from every room group it joined.
	// Presence entries are left alone.
	Detach(conn Conn)
	Join(roomID domain.RoomID, conn Conn)
	Leave(roomID domain.RoomID, conn Conn)
	SendToRoom(roomID domain.RoomID, ev domain.Event)
	// SendToUser delivers to the user's registered connection and reports
	// whether one was present.
	SendToUser(userID domain.UserID, ev domain.Event) bool
	// Broadcast delivers to every connection except skip.
	Broadcast(ev domain.Event, skip Conn)
}
