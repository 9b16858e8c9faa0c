package service

import (
	"context"
	"sync"
	"testing"

	"github.com/Wyydra/yarelay/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yarelay/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []domain.Event
	closed bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// named returns the events received with the given name.
func (c *fakeConn) named(name domain.EventName) []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Event
	for _, ev := range c.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

type env struct {
	ctx      context.Context
	users    *memory.UserRepository
	messages *memory.MessageRepository
	hub      *ws.Hub

	presence *PresenceService
	chat     *ChatService
	call     *CallService
	accounts *UserService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	users := memory.NewUserRepository()
	messages := memory.NewMessageRepository()
	hub := ws.NewHub(nil)
	return &env{
		ctx:      context.Background(),
		users:    users,
		messages: messages,
		hub:      hub,
		presence: NewPresenceService(users, hub),
		chat:     NewChatService(users, messages, hub),
		call:     NewCallService(users, hub),
		accounts: NewUserService(users, messages),
	}
}

func (e *env) user(t *testing.T, name string) *domain.User {
	t.Helper()
	u, created, err := e.accounts.Login(e.ctx, name, "avatar-1")
	require.NoError(t, err)
	require.True(t, created)
	return u
}

func (e *env) befriend(t *testing.T, a, b *domain.User) {
	t.Helper()
	_, _, err := e.accounts.AddContact(e.ctx, a.ID, b.ID)
	require.NoError(t, err)
}

// connect opens a connection and announces it as u.
func (e *env) connect(t *testing.T, u *domain.User, id string) (*Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{id: id}
	sess := e.presence.Connect(conn)
	if u != nil {
		_, err := e.presence.Announce(e.ctx, sess, u.ID)
		require.NoError(t, err)
	}
	return sess, conn
}
