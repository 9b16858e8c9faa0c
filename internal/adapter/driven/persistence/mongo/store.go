// Package mongo keeps users and messages in MongoDB collections, the layout
// the relay's document-store deployments use.
package mongo

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
)

// Store owns the client and the two collections.
type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	messages *mongo.Collection

	tsMu   sync.Mutex
	lastAt time.Time
}

func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping mongo")
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		users:    db.Collection(usersCollection),
		messages: db.Collection(messagesCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "inviteCode", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return errors.Wrap(err, "create user indexes")
	}
	_, err = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "from", Value: 1}, {Key: "to", Value: 1}}},
	})
	return errors.Wrap(err, "create message indexes")
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// nextTimestamp hands out strictly increasing creation times at the
// millisecond precision BSON dates keep.
func (s *Store) nextTimestamp() time.Time {
	s.tsMu.Lock()
	defer s.tsMu.Unlock()
	now := time.Now().UTC().Truncate(time.Millisecond)
	if !now.After(s.lastAt) {
		now = s.lastAt.Add(time.Millisecond)
	}
	s.lastAt = now
	return now
}
