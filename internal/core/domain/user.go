package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	UsernameMinLength = 3
	UsernameMaxLength = 30
)

type User struct {
	ID         UserID
	Username   string
	Avatar     string
	InviteCode string
	Contacts   []UserID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NormalizeUsername lowercases and trims name and checks its length.
func NormalizeUsername(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	l := utf8.RuneCountInString(n)
	if l < UsernameMinLength || l > UsernameMaxLength {
		return "", InvalidArgument("username must be 3-30 characters")
	}
	return n, nil
}

func NewUser(name, avatar string) (*User, error) {
	username, err := NormalizeUsername(name)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(avatar) == "" {
		return nil, InvalidArgument("avatar is required")
	}
	now := time.Now().UTC()
	return &User{
		ID:         NewUserID(),
		Username:   username,
		Avatar:     avatar,
		InviteCode: NewInviteCode(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (u *User) HasContact(id UserID) bool {
	for _, c := range u.Contacts {
		if c == id {
			return true
		}
	}
	return false
}

// MutualContacts reports whether a and b list each other.
func MutualContacts(a, b *User) bool {
	return a.HasContact(b.ID) && b.HasContact(a.ID)
}

// Profile is the public view of a user.
type Profile struct {
	ID       UserID
	Username string
	Avatar   string
}

func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
}
