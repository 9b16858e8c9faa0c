package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Wyydra/yarelay/internal/core/domain"
)

type UserRepository struct {
	mu      sync.RWMutex
	users   map[domain.UserID]*domain.User
	names   map[string]domain.UserID
	invites map[string]domain.UserID
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:   make(map[domain.UserID]*domain.User),
		names:   make(map[string]domain.UserID),
		invites: make(map[string]domain.UserID),
	}
}

func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(user.Username)
	if _, taken := r.names[key]; taken {
		return domain.Conflict("username already taken")
	}
	if _, taken := r.invites[user.InviteCode]; taken {
		return domain.Conflict("invite code already in use")
	}
	if _, taken := r.users[user.ID]; taken {
		return domain.Conflict("user id already taken")
	}
	stored := clone(&user)
	r.users[user.ID] = stored
	r.names[key] = user.ID
	r.invites[user.InviteCode] = user.ID
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.NotFound("user not found")
	}
	return clone(u), nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.names[strings.ToLower(username)]
	if !ok {
		return nil, domain.NotFound("user not found")
	}
	return clone(r.users[id]), nil
}

func (r *UserRepository) GetByInviteCode(ctx context.Context, code string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.invites[code]; ok {
		return clone(r.users[id]), nil
	}
	return nil, domain.NotFound("user not found")
}

func (r *UserRepository) Search(ctx context.Context, query string, exclude domain.UserID, limit int) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	query = strings.ToLower(query)
	out := make([]domain.User, 0)
	for _, u := range r.users {
		if u.ID == exclude || !strings.Contains(u.Username, query) {
			continue
		}
		out = append(out, *clone(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *UserRepository) AddContact(ctx context.Context, owner, contact domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[owner]
	if !ok {
		return domain.NotFound("user not found")
	}
	if u.HasContact(contact) {
		return nil
	}
	u.Contacts = append(u.Contacts, contact)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserRepository) RemoveContact(ctx context.Context, owner, contact domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[owner]
	if !ok {
		return domain.NotFound("user not found")
	}
	kept := u.Contacts[:0]
	for _, c := range u.Contacts {
		if c != contact {
			kept = append(kept, c)
		}
	}
	u.Contacts = kept
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func clone(u *domain.User) *domain.User {
	c := *u
	c.Contacts = append([]domain.UserID(nil), u.Contacts...)
	return &c
}
