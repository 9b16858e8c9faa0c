package ws

import (
	"sync"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/Wyydra/yarelay/internal/core/port"
	"github.com/Wyydra/yarelay/internal/metrics"
	"github.com/rs/zerolog/log"
)

type connSet map[port.Conn]struct{}

// Hub implements port.RealTimeGateway. It owns the presence registry, the
// set of open connections and the room groups.
type Hub struct {
	mu       sync.RWMutex
	clients  connSet
	presence map[domain.UserID]port.Conn
	rooms    map[domain.RoomID]connSet
	// joined is the reverse index of rooms, used to detach a connection.
	joined  map[port.Conn]map[domain.RoomID]struct{}
	metrics *metrics.Recorder
	stopped bool
}

func NewHub(m *metrics.Recorder) *Hub {
	return &Hub{
		clients:  make(connSet),
		presence: make(map[domain.UserID]port.Conn),
		rooms:    make(map[domain.RoomID]connSet),
		joined:   make(map[port.Conn]map[domain.RoomID]struct{}),
		metrics:  m,
	}
}

func (h *Hub) Register(userID domain.UserID, conn port.Conn) {
	h.mu.Lock()
	prev, existed := h.presence[userID]
	h.presence[userID] = conn
	h.mu.Unlock()

	if !existed {
		h.metrics.UserOnline()
	}
	l := log.With().Str("user_id", userID.String()).Str("conn_id", conn.ID()).Logger()
	if existed && prev != conn {
		l.Info().Str("replaced_conn_id", prev.ID()).Msg("Presence replaced")
		return
	}
	l.Debug().Msg("Presence registered")
}

func (h *Hub) Lookup(userID domain.UserID) (port.Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.presence[userID]
	return conn, ok
}

func (h *Hub) Unregister(userID domain.UserID, conn port.Conn) bool {
	h.mu.Lock()
	current, ok := h.presence[userID]
	if !ok || current != conn {
		h.mu.Unlock()
		log.Debug().Str("user_id", userID.String()).Str("conn_id", conn.ID()).Msg("Stale disconnect ignored")
		return false
	}
	delete(h.presence, userID)
	h.mu.Unlock()

	h.metrics.UserOffline()
	return true
}

// Attach closes conn straight away once the hub is stopped, so a socket
// upgraded during shutdown does not outlive it.
func (h *Hub) Attach(conn port.Conn) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		log.Info().Str("conn_id", conn.ID()).Msg("Hub stopped. Rejecting client.")
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Str("conn_id", conn.ID()).Msg("Error closing client connection")
		}
		return
	}
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Info().Int("count", n).Str("conn_id", conn.ID()).Msg("Client registered")
}

func (h *Hub) Detach(conn port.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, attached := h.clients[conn]
	delete(h.clients, conn)
	for roomID := range h.joined[conn] {
		h.leaveLocked(roomID, conn)
	}
	delete(h.joined, conn)
	if !attached {
		return
	}
	log.Info().Int("count", len(h.clients)).Str("conn_id", conn.ID()).Msg("Client unregistered")
}

func (h *Hub) Join(roomID domain.RoomID, conn port.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(connSet)
		h.rooms[roomID] = members
	}
	members[conn] = struct{}{}

	rooms, ok := h.joined[conn]
	if !ok {
		rooms = make(map[domain.RoomID]struct{})
		h.joined[conn] = rooms
	}
	rooms[roomID] = struct{}{}
}

func (h *Hub) Leave(roomID domain.RoomID, conn port.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(roomID, conn)
	if rooms, ok := h.joined[conn]; ok {
		delete(rooms, roomID)
	}
}

func (h *Hub) leaveLocked(roomID domain.RoomID, conn port.Conn) {
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// Members returns the connections currently joined to roomID.
func (h *Hub) Members(roomID domain.RoomID) []port.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return snapshot(h.rooms[roomID], nil)
}

func (h *Hub) SendToRoom(roomID domain.RoomID, ev domain.Event) {
	for _, conn := range h.Members(roomID) {
		h.deliver(conn, ev)
	}
}

func (h *Hub) SendToUser(userID domain.UserID, ev domain.Event) bool {
	conn, ok := h.Lookup(userID)
	if !ok {
		return false
	}
	h.deliver(conn, ev)
	return true
}

func (h *Hub) Broadcast(ev domain.Event, skip port.Conn) {
	h.mu.RLock()
	targets := snapshot(h.clients, skip)
	h.mu.RUnlock()

	for _, conn := range targets {
		h.deliver(conn, ev)
	}
}

// Stop closes every open connection. Their read loops then run the normal
// disconnect path.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	targets := snapshot(h.clients, nil)
	h.mu.Unlock()

	log.Info().Int("count", len(targets)).Msg("Stopping hub. Disconnecting all clients.")
	for _, conn := range targets {
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Str("conn_id", conn.ID()).Msg("Error closing client connection")
		}
	}
}

func (h *Hub) deliver(conn port.Conn, ev domain.Event) {
	if err := conn.Send(ev); err != nil {
		log.Error().Err(err).Str("conn_id", conn.ID()).Str("event", string(ev.Name)).Msg("Error sending event")
		conn.Close()
	}
}

func snapshot(set connSet, skip port.Conn) []port.Conn {
	out := make([]port.Conn, 0, len(set))
	for conn := range set {
		if conn == skip {
			continue
		}
		out = append(out, conn)
	}
	return out
}
