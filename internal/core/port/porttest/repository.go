// Package porttest holds behaviour tests shared by every repository
// implementation.
package porttest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/Wyydra/yarelay/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Repos is one freshly emptied store.
type Repos struct {
	Users    port.UserRepository
	Messages port.MessageRepository
}

func mustUser(t *testing.T, ctx context.Context, users port.UserRepository, name string) *domain.User {
	t.Helper()
	u, err := domain.NewUser(name, "avatar-1")
	require.NoError(t, err)
	require.NoError(t, users.Create(ctx, *u))
	return u
}

// RunUserRepository checks the port.UserRepository contract.
func RunUserRepository(t *testing.T, open func(t *testing.T) Repos) {
	t.Run("CreateAndGet", func(t *testing.T) {
		ctx := context.Background()
		users := open(t).Users
		alice := mustUser(t, ctx, users, "alice")

		got, err := users.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, "avatar-1", got.Avatar)
		assert.Equal(t, alice.InviteCode, got.InviteCode)
		assert.Empty(t, got.Contacts)

		got, err = users.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)

		got, err = users.GetByInviteCode(ctx, alice.InviteCode)
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
	})

	t.Run("NotFound", func(t *testing.T) {
		ctx := context.Background()
		users := open(t).Users

		_, err := users.GetByID(ctx, domain.NewUserID())
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = users.GetByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = users.GetByInviteCode(ctx, "0000000000")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("DuplicateUsernameConflicts", func(t *testing.T) {
		ctx := context.Background()
		users := open(t).Users
		mustUser(t, ctx, users, "alice")

		dup, err := domain.NewUser("alice", "avatar-2")
		require.NoError(t, err)
		err = users.Create(ctx, *dup)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Contains(t, err.Error(), "username already taken")
	})

	t.Run("DuplicateInviteCodeConflicts", func(t *testing.T) {
		ctx := context.Background()
		users := open(t).Users
		alice := mustUser(t, ctx, users, "alice")

		bob, err := domain.NewUser("bob", "avatar-1")
		require.NoError(t, err)
		bob.InviteCode = alice.InviteCode
		err = users.Create(ctx, *bob)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Contains(t, err.Error(), "invite code already in use")

		got, err := users.GetByInviteCode(ctx, alice.InviteCode)
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
	})

	t.Run("Search", func(t *testing.T) {
		ctx := context.Background()
		users := open(t).Users
		alice := mustUser(t, ctx, users, "alice")
		mustUser(t, ctx, users, "alicia")
		mustUser(t, ctx, users, "bob")
		mustUser(t, ctx, users, "mal_ice")

		found, err := users.Search(ctx, "ali", "", 10)
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "alice", found[0].Username)
		assert.Equal(t, "alicia", found[1].Username)

		found, err = users.Search(ctx, "ali", alice.ID, 10)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "alicia", found[0].Username)

		found, err = users.Search(ctx, "ic", "", 1)
		require.NoError(t, err)
		assert.Len(t, found, 1)

		// wildcard characters match literally
		found, err = users.Search(ctx, "_", "", 10)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "mal_ice", found[0].Username)
	})

	t.Run("ContactsAreIdempotentAndDirected", func(t *testing.T) {
		ctx := context.Background()
		users := open(t).Users
		alice := mustUser(t, ctx, users, "alice")
		bob := mustUser(t, ctx, users, "bob")

		require.NoError(t, users.AddContact(ctx, alice.ID, bob.ID))
		require.NoError(t, users.AddContact(ctx, alice.ID, bob.ID))

		got, err := users.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, []domain.UserID{bob.ID}, got.Contacts)

		got, err = users.GetByID(ctx, bob.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Contacts)

		require.NoError(t, users.RemoveContact(ctx, alice.ID, bob.ID))
		got, err = users.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Contacts)

		assert.ErrorIs(t, users.AddContact(ctx, domain.NewUserID(), bob.ID), domain.ErrNotFound)
	})
}

// RunMessageRepository checks the port.MessageRepository contract.
func RunMessageRepository(t *testing.T, open func(t *testing.T) Repos) {
	save := func(t *testing.T, msgs port.MessageRepository, room domain.RoomID, from, to domain.UserID, text string) *domain.Message {
		t.Helper()
		m, err := domain.NewMessage(room, from, to, text)
		require.NoError(t, err)
		require.NoError(t, msgs.Save(context.Background(), m))
		return m
	}

	t.Run("SaveAssignsIncreasingTimestamps", func(t *testing.T) {
		msgs := open(t).Messages
		room := domain.RoomIDFor("a", "b")

		var prev time.Time
		for i := 0; i < 20; i++ {
			m := save(t, msgs, room, "a", "b", fmt.Sprintf("m%d", i))
			assert.True(t, m.CreatedAt.After(prev), "message %d not after previous", i)
			prev = m.CreatedAt
		}
	})

	t.Run("HistoryNewestFirst", func(t *testing.T) {
		ctx := context.Background()
		msgs := open(t).Messages
		room := domain.RoomIDFor("a", "b")
		other := domain.RoomIDFor("a", "c")

		for i := 0; i < 5; i++ {
			save(t, msgs, room, "a", "b", fmt.Sprintf("m%d", i))
		}
		save(t, msgs, other, "a", "c", "elsewhere")

		page, err := msgs.History(ctx, domain.HistoryQuery{RoomID: room, Limit: 3})
		require.NoError(t, err)
		require.Len(t, page, 3)
		assert.Equal(t, "m4", page[0].Text)
		assert.Equal(t, "m2", page[2].Text)
		assert.False(t, page[0].Read)

		before := page[2].CreatedAt
		page, err = msgs.History(ctx, domain.HistoryQuery{RoomID: room, Limit: 10, Before: &before})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "m1", page[0].Text)
		assert.Equal(t, "m0", page[1].Text)

		page, err = msgs.History(ctx, domain.HistoryQuery{RoomID: "nobody_nowhere", Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, page)
	})

	t.Run("Last", func(t *testing.T) {
		ctx := context.Background()
		msgs := open(t).Messages
		room := domain.RoomIDFor("a", "b")

		_, err := msgs.Last(ctx, room)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		save(t, msgs, room, "a", "b", "first")
		save(t, msgs, room, "b", "a", "second")
		last, err := msgs.Last(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, "second", last.Text)
		assert.Equal(t, domain.UserID("b"), last.From)
	})

	t.Run("MarkReadOnlyAffectsRecipient", func(t *testing.T) {
		ctx := context.Background()
		msgs := open(t).Messages
		room := domain.RoomIDFor("a", "b")

		save(t, msgs, room, "a", "b", "to b 1")
		save(t, msgs, room, "a", "b", "to b 2")
		save(t, msgs, room, "b", "a", "to a")

		n, err := msgs.CountUnread(ctx, room, "b")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = msgs.MarkRead(ctx, room, "b")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = msgs.CountUnread(ctx, room, "b")
		require.NoError(t, err)
		assert.Zero(t, n)
		n, err = msgs.CountUnread(ctx, room, "a")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		// nothing left to flip
		n, err = msgs.MarkRead(ctx, room, "b")
		require.NoError(t, err)
		assert.Zero(t, n)

		page, err := msgs.History(ctx, domain.HistoryQuery{RoomID: room, Limit: 10})
		require.NoError(t, err)
		for _, m := range page {
			if m.To == "b" {
				assert.True(t, m.Read)
				assert.NotNil(t, m.ReadAt)
			} else {
				assert.False(t, m.Read)
				assert.Nil(t, m.ReadAt)
			}
		}
	})
}
