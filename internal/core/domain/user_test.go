package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUsername(t *testing.T) {
	name, err := NormalizeUsername("  Alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	_, err = NormalizeUsername("al")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NormalizeUsername(strings.Repeat("a", 31))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewUser(t *testing.T) {
	u, err := NewUser("Bob", "avatar-3")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Username)
	assert.NotEmpty(t, u.ID)
	assert.NotEmpty(t, u.InviteCode)
	assert.Empty(t, u.Contacts)

	_, err = NewUser("bob", " ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMutualContacts(t *testing.T) {
	a := &User{ID: "a", Contacts: []UserID{"b"}}
	b := &User{ID: "b"}
	assert.True(t, a.HasContact("b"))
	assert.False(t, MutualContacts(a, b))

	b.Contacts = []UserID{"a"}
	assert.True(t, MutualContacts(a, b))
	assert.True(t, MutualContacts(b, a))
}
