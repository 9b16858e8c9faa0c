package port

import (
	"context"

	"github.com/Wyydra/yarelay/internal/core/domain"
)

// UserRepository is the identity and contact store.
type UserRepository interface {
	// Create stores a new user. It fails with domain.ErrConflict when the
	// username is taken.
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByInviteCode(ctx context.Context, code string) (*domain.User, error)
	// Search matches query as a case-insensitive substring of usernames,
	// skipping exclude.
	Search(ctx context.Context, query string, exclude domain.UserID, limit int) ([]domain.User, error)
	// AddContact appends contact to owner's set unless already present.
	AddContact(ctx context.Context, owner, contact domain.UserID) error
	RemoveContact(ctx context.Context, owner, contact domain.UserID) error
}

// MessageRepository is the time-ordered message store.
type MessageRepository interface {
	// Save appends msg. The store assigns CreatedAt, strictly increasing in
	// write order.
	Save(ctx context.Context, msg *domain.Message) error
	// History returns up to q.Limit messages of the room older than
	// q.Before, newest first.
	History(ctx context.Context, q domain.HistoryQuery) ([]domain.Message, error)
	Last(ctx context.Context, roomID domain.RoomID) (*domain.Message, error)
	CountUnread(ctx context.Context, roomID domain.RoomID, to domain.UserID) (int, error)
	// MarkRead flips unread messages of the room addressed to `to` and
	// returns how many changed.
	MarkRead(ctx context.Context, roomID domain.RoomID, to domain.UserID) (int, error)
}
