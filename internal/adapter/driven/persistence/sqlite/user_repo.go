package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/pkg/errors"
)

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, avatar, invite_code, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	_, err := r.db.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID.String(), strings.ToLower(user.Username), user.Avatar, user.InviteCode,
		toNanos(user.CreatedAt), toNanos(user.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return r.conflict(ctx, user)
	}
	return errors.Wrap(err, "insert user")
}

// conflict names the unique column that rejected user.
func (r *UserRepository) conflict(ctx context.Context, user domain.User) error {
	var n int
	err := r.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ?`, strings.ToLower(user.Username),
	).Scan(&n)
	if err != nil {
		return errors.Wrap(err, "check username")
	}
	if n > 0 {
		return domain.Conflict("username already taken")
	}
	return domain.Conflict("invite code already in use")
}

func (r *UserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, strings.ToLower(username))
}

func (r *UserRepository) GetByInviteCode(ctx context.Context, code string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE invite_code = ?`, code)
}

func (r *UserRepository) Search(ctx context.Context, query string, exclude domain.UserID, limit int) ([]domain.User, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE username LIKE ? ESCAPE '\' AND id != ?
		 ORDER BY username LIMIT ?`,
		"%"+escapeLike(strings.ToLower(query))+"%", exclude.String(), limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "search users")
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "search users")
	}
	for i := range users {
		if users[i].Contacts, err = r.contacts(ctx, users[i].ID); err != nil {
			return nil, err
		}
	}
	return users, nil
}

// AddContact is idempotent: a duplicate edge is ignored.
func (r *UserRepository) AddContact(ctx context.Context, owner, contact domain.UserID) error {
	now := time.Now().UTC()
	res, err := r.db.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO contacts (owner, contact, added_at) VALUES (?, ?, ?)`,
		owner.String(), contact.String(), toNanos(now),
	)
	if isForeignKeyViolation(err) {
		return domain.NotFound("user not found")
	}
	if err != nil {
		return errors.Wrap(err, "insert contact")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return r.touch(ctx, owner, now)
	}
	return nil
}

func (r *UserRepository) RemoveContact(ctx context.Context, owner, contact domain.UserID) error {
	_, err := r.db.db.ExecContext(ctx,
		`DELETE FROM contacts WHERE owner = ? AND contact = ?`,
		owner.String(), contact.String(),
	)
	if err != nil {
		return errors.Wrap(err, "delete contact")
	}
	return r.touch(ctx, owner, time.Now().UTC())
}

func (r *UserRepository) touch(ctx context.Context, id domain.UserID, at time.Time) error {
	_, err := r.db.db.ExecContext(ctx, `UPDATE users SET updated_at = ? WHERE id = ?`, toNanos(at), id.String())
	return errors.Wrap(err, "touch user")
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	u, err := scanUser(r.db.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	if u.Contacts, err = r.contacts(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) contacts(ctx context.Context, owner domain.UserID) ([]domain.UserID, error) {
	rows, err := r.db.db.QueryContext(ctx,
		`SELECT contact FROM contacts WHERE owner = ? ORDER BY added_at, rowid`, owner.String())
	if err != nil {
		return nil, errors.Wrap(err, "list contacts")
	}
	defer rows.Close()

	var out []domain.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan contact")
		}
		out = append(out, domain.UserID(id))
	}
	return out, errors.Wrap(rows.Err(), "list contacts")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*domain.User, error) {
	var (
		u                domain.User
		id               string
		created, updated int64
	)
	err := row.Scan(&id, &u.Username, &u.Avatar, &u.InviteCode, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("user not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan user")
	}
	u.ID = domain.UserID(id)
	u.CreatedAt = fromNanos(created)
	u.UpdatedAt = fromNanos(updated)
	return &u, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
