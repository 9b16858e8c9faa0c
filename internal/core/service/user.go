package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/Wyydra/yarelay/internal/core/port"
	"github.com/rs/zerolog/log"
)

const SearchLimit = 20

// UserService is the identity and contact surface used by the REST API.
type UserService struct {
	users    port.UserRepository
	messages port.MessageRepository
}

func NewUserService(users port.UserRepository, messages port.MessageRepository) *UserService {
	return &UserService{
		users:    users,
		messages: messages,
	}
}

// Login returns the user named username, creating it on first use. An
// existing user is returned unchanged, avatar included.
func (s *UserService) Login(ctx context.Context, username, avatar string) (*domain.User, bool, error) {
	name, err := domain.NormalizeUsername(username)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.users.GetByUsername(ctx, name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	user, err := domain.NewUser(name, avatar)
	if err != nil {
		return nil, false, err
	}
	if err := s.users.Create(ctx, *user); err != nil {
		// lost a race with a concurrent login for the same name
		if errors.Is(err, domain.ErrConflict) {
			existing, getErr := s.users.GetByUsername(ctx, name)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	log.Info().Str("user_id", user.ID.String()).Str("username", user.Username).Msg("User created")
	return user, true, nil
}

func (s *UserService) Get(ctx context.Context, id domain.UserID) (*domain.User, error) {
	if id == "" {
		return nil, domain.InvalidArgument("user id is required")
	}
	return s.users.GetByID(ctx, id)
}

func (s *UserService) ByInviteCode(ctx context.Context, code string) (*domain.User, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.InvalidArgument("invite code is required")
	}
	u, err := s.users.GetByInviteCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFound("invalid invite code")
	}
	return u, err
}

func (s *UserService) Search(ctx context.Context, query string, exclude domain.UserID) ([]domain.Profile, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []domain.Profile{}, nil
	}
	users, err := s.users.Search(ctx, query, exclude, SearchLimit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Profile, 0, len(users))
	for i := range users {
		out = append(out, users[i].Profile())
	}
	return out, nil
}

// Contacts lists userID's contacts with the latest message of each shared
// room and the unread count, most recent activity first. Contacts without
// messages come last, by username.
func (s *UserService) Contacts(ctx context.Context, userID domain.UserID) ([]domain.ContactSummary, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ContactSummary, 0, len(user.Contacts))
	for _, cid := range user.Contacts {
		contact, err := s.users.GetByID(ctx, cid)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		roomID := domain.RoomIDFor(user.ID, contact.ID)
		summary := domain.ContactSummary{Profile: contact.Profile()}

		last, err := s.messages.Last(ctx, roomID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if last != nil {
			from := user.Username
			if last.From == contact.ID {
				from = contact.Username
			}
			summary.LastMessage = &domain.LastMessage{
				Text:      last.Text,
				Timestamp: last.CreatedAt,
				From:      from,
				Read:      last.Read,
			}
		}

		summary.UnreadCount, err = s.messages.CountUnread(ctx, roomID, user.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastMessage, out[j].LastMessage
		switch {
		case a == nil && b == nil:
			return out[i].Username < out[j].Username
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Timestamp.After(b.Timestamp)
	})
	return out, nil
}

// AddContact links userID and friendID in both directions, repairing a
// one-sided edge. Adding an existing mutual contact reports already=true.
func (s *UserService) AddContact(ctx context.Context, userID, friendID domain.UserID) (contact domain.Profile, already bool, err error) {
	user, friend, err := s.contactPair(ctx, userID, friendID)
	if err != nil {
		return domain.Profile{}, false, err
	}
	if domain.MutualContacts(user, friend) {
		return friend.Profile(), true, nil
	}

	if !user.HasContact(friend.ID) {
		if err := s.users.AddContact(ctx, user.ID, friend.ID); err != nil {
			return domain.Profile{}, false, err
		}
	}
	if !friend.HasContact(user.ID) {
		if err := s.users.AddContact(ctx, friend.ID, user.ID); err != nil {
			return domain.Profile{}, false, err
		}
	}
	return friend.Profile(), false, nil
}

// RemoveContact drops friendID from userID's contacts only. The friend keeps
// userID, which leaves the pair unable to message or call each other.
func (s *UserService) RemoveContact(ctx context.Context, userID, friendID domain.UserID) error {
	user, friend, err := s.contactPair(ctx, userID, friendID)
	if err != nil {
		return err
	}
	return s.users.RemoveContact(ctx, user.ID, friend.ID)
}

func (s *UserService) contactPair(ctx context.Context, userID, friendID domain.UserID) (*domain.User, *domain.User, error) {
	if userID == "" || friendID == "" {
		return nil, nil, domain.InvalidArgument("userId and friendId are required")
	}
	if userID == friendID {
		return nil, nil, domain.InvalidArgument("cannot add yourself as a contact")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, notFoundAs(err, "user or friend not found")
	}
	friend, err := s.users.GetByID(ctx, friendID)
	if err != nil {
		return nil, nil, notFoundAs(err, "user or friend not found")
	}
	return user, friend, nil
}

func notFoundAs(err error, reason string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NotFound(reason)
	}
	return err
}
