package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/pkg/errors"
)

type MessageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `id, room_id, from_id, to_id, text, read, created_at, read_at`

func (r *MessageRepository) Save(ctx context.Context, msg *domain.Message) error {
	msg.CreatedAt = r.db.nextTimestamp()
	_, err := r.db.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		msg.ID.String(), msg.RoomID.String(), msg.From.String(), msg.To.String(),
		msg.Text, msg.Read, toNanos(msg.CreatedAt),
	)
	return errors.Wrap(err, "insert message")
}

func (r *MessageRepository) History(ctx context.Context, q domain.HistoryQuery) ([]domain.Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	before := int64(1<<63 - 1)
	if q.Before != nil {
		before = toNanos(*q.Before)
	}

	rows, err := r.db.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE room_id = ? AND created_at < ?
		 ORDER BY created_at DESC, seq DESC LIMIT ?`,
		q.RoomID.String(), before, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query history")
	}
	defer rows.Close()

	out := make([]domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, errors.Wrap(rows.Err(), "query history")
}

func (r *MessageRepository) Last(ctx context.Context, roomID domain.RoomID) (*domain.Message, error) {
	m, err := scanMessage(r.db.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE room_id = ? ORDER BY created_at DESC, seq DESC LIMIT 1`,
		roomID.String(),
	))
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, roomID domain.RoomID, to domain.UserID) (int, error) {
	var n int
	err := r.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE room_id = ? AND to_id = ? AND read = 0`,
		roomID.String(), to.String(),
	).Scan(&n)
	return n, errors.Wrap(err, "count unread")
}

func (r *MessageRepository) MarkRead(ctx context.Context, roomID domain.RoomID, to domain.UserID) (int, error) {
	res, err := r.db.db.ExecContext(ctx,
		`UPDATE messages SET read = 1, read_at = ?
		 WHERE room_id = ? AND to_id = ? AND read = 0`,
		toNanos(time.Now().UTC()), roomID.String(), to.String(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "mark read")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "mark read")
}

func scanMessage(row scanner) (*domain.Message, error) {
	var (
		m                  domain.Message
		id, room, from, to string
		created            int64
		readAt             sql.NullInt64
	)
	err := row.Scan(&id, &room, &from, &to, &m.Text, &m.Read, &created, &readAt)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("message not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan message")
	}
	m.ID = domain.MessageID(id)
	m.RoomID = domain.RoomID(room)
	m.From = domain.UserID(from)
	m.To = domain.UserID(to)
	m.CreatedAt = fromNanos(created)
	if readAt.Valid {
		t := fromNanos(readAt.Int64)
		m.ReadAt = &t
	}
	return &m, nil
}
