package mongo

import (
	"context"
	"time"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type messageDoc struct {
	ID        string     `bson:"_id"`
	RoomID    string     `bson:"roomId"`
	From      string     `bson:"from"`
	To        string     `bson:"to"`
	Text      string     `bson:"text"`
	Read      bool       `bson:"read"`
	CreatedAt time.Time  `bson:"createdAt"`
	ReadAt    *time.Time `bson:"readAt,omitempty"`
}

func (d messageDoc) toDomain() domain.Message {
	m := domain.Message{
		ID:        domain.MessageID(d.ID),
		RoomID:    domain.RoomID(d.RoomID),
		From:      domain.UserID(d.From),
		To:        domain.UserID(d.To),
		Text:      d.Text,
		Read:      d.Read,
		CreatedAt: d.CreatedAt.UTC(),
	}
	if d.ReadAt != nil {
		t := d.ReadAt.UTC()
		m.ReadAt = &t
	}
	return m
}

type MessageRepository struct {
	store *Store
}

func NewMessageRepository(store *Store) *MessageRepository {
	return &MessageRepository{store: store}
}

func (r *MessageRepository) Save(ctx context.Context, msg *domain.Message) error {
	msg.CreatedAt = r.store.nextTimestamp()
	_, err := r.store.messages.InsertOne(ctx, messageDoc{
		ID:        msg.ID.String(),
		RoomID:    msg.RoomID.String(),
		From:      msg.From.String(),
		To:        msg.To.String(),
		Text:      msg.Text,
		Read:      msg.Read,
		CreatedAt: msg.CreatedAt,
	})
	return errors.Wrap(err, "insert message")
}

func (r *MessageRepository) History(ctx context.Context, q domain.HistoryQuery) ([]domain.Message, error) {
	filter := bson.M{"roomId": q.RoomID.String()}
	if q.Before != nil {
		filter["createdAt"] = bson.M{"$lt": *q.Before}
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := r.store.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "query history")
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode history")
	}
	out := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (r *MessageRepository) Last(ctx context.Context, roomID domain.RoomID) (*domain.Message, error) {
	var doc messageDoc
	err := r.store.messages.FindOne(ctx,
		bson.M{"roomId": roomID.String()},
		options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFound("message not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "find last message")
	}
	m := doc.toDomain()
	return &m, nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, roomID domain.RoomID, to domain.UserID) (int, error) {
	n, err := r.store.messages.CountDocuments(ctx, bson.M{
		"roomId": roomID.String(),
		"to":     to.String(),
		"read":   false,
	})
	return int(n), errors.Wrap(err, "count unread")
}

func (r *MessageRepository) MarkRead(ctx context.Context, roomID domain.RoomID, to domain.UserID) (int, error) {
	res, err := r.store.messages.UpdateMany(ctx,
		bson.M{"roomId": roomID.String(), "to": to.String(), "read": false},
		bson.M{"$set": bson.M{"read": true, "readAt": time.Now().UTC()}},
	)
	if err != nil {
		return 0, errors.Wrap(err, "mark read")
	}
	return int(res.ModifiedCount), nil
}
