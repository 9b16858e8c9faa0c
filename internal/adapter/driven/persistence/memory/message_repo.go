package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Wyydra/yarelay/internal/core/domain"
)

type MessageRepository struct {
	mu       sync.RWMutex
	messages []domain.Message
	lastAt   time.Time
	nowFn    func() time.Time
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		messages: make([]domain.Message, 0),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *MessageRepository) Save(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastAt = nextTimestamp(r.nowFn(), r.lastAt)
	msg.CreatedAt = r.lastAt
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *MessageRepository) History(ctx context.Context, q domain.HistoryQuery) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Message, 0)
	for i := len(r.messages) - 1; i >= 0; i-- {
		m := r.messages[i]
		if m.RoomID != q.RoomID {
			continue
		}
		if q.Before != nil && !m.CreatedAt.Before(*q.Before) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *MessageRepository) Last(ctx context.Context, roomID domain.RoomID) (*domain.Message, error) {
	msgs, err := r.History(ctx, domain.HistoryQuery{RoomID: roomID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, domain.ErrNotFound
	}
	return &msgs[0], nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, roomID domain.RoomID, to domain.UserID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.messages {
		if m.RoomID == roomID && m.To == to && !m.Read {
			n++
		}
	}
	return n, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, roomID domain.RoomID, to domain.UserID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowFn()
	n := 0
	for i := range r.messages {
		m := &r.messages[i]
		if m.RoomID != roomID || m.To != to || m.Read {
			continue
		}
		m.Read = true
		readAt := now
		m.ReadAt = &readAt
		n++
	}
	return n, nil
}

// nextTimestamp returns now, or just after last when the clock has not moved
// past it, so creation order survives equal clock readings.
func nextTimestamp(now, last time.Time) time.Time {
	if now.After(last) {
		return now
	}
	return last.Add(time.Microsecond)
}
