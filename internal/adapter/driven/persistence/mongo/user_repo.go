package mongo

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type userDoc struct {
	ID         string    `bson:"_id"`
	Username   string    `bson:"username"`
	Avatar     string    `bson:"avatar"`
	InviteCode string    `bson:"inviteCode"`
	Contacts   []string  `bson:"contacts"`
	CreatedAt  time.Time `bson:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

func (d userDoc) toDomain() *domain.User {
	u := &domain.User{
		ID:         domain.UserID(d.ID),
		Username:   d.Username,
		Avatar:     d.Avatar,
		InviteCode: d.InviteCode,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	for _, c := range d.Contacts {
		u.Contacts = append(u.Contacts, domain.UserID(c))
	}
	return u
}

type UserRepository struct {
	store *Store
}

func NewUserRepository(store *Store) *UserRepository {
	return &UserRepository{store: store}
}

func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	doc := userDoc{
		ID:         user.ID.String(),
		Username:   strings.ToLower(user.Username),
		Avatar:     user.Avatar,
		InviteCode: user.InviteCode,
		Contacts:   []string{},
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
	for _, c := range user.Contacts {
		doc.Contacts = append(doc.Contacts, c.String())
	}
	_, err := r.store.users.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return r.conflict(ctx, doc.Username)
	}
	return errors.Wrap(err, "insert user")
}

// conflict names the unique field that rejected the insert.
func (r *UserRepository) conflict(ctx context.Context, username string) error {
	n, err := r.store.users.CountDocuments(ctx, bson.M{"username": username})
	if err != nil {
		return errors.Wrap(err, "check username")
	}
	if n > 0 {
		return domain.Conflict("username already taken")
	}
	return domain.Conflict("invite code already in use")
}

func (r *UserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"username": strings.ToLower(username)})
}

func (r *UserRepository) GetByInviteCode(ctx context.Context, code string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"inviteCode": code})
}

func (r *UserRepository) Search(ctx context.Context, query string, exclude domain.UserID, limit int) ([]domain.User, error) {
	filter := bson.M{
		"username": bson.M{"$regex": regexp.QuoteMeta(strings.ToLower(query)), "$options": "i"},
		"_id":      bson.M{"$ne": exclude.String()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "username", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.store.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "search users")
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode users")
	}
	out := make([]domain.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, *d.toDomain())
	}
	return out, nil
}

// AddContact uses $addToSet so concurrent duplicate adds collapse into one
// edge.
func (r *UserRepository) AddContact(ctx context.Context, owner, contact domain.UserID) error {
	return r.update(ctx, owner, bson.M{
		"$addToSet": bson.M{"contacts": contact.String()},
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	})
}

func (r *UserRepository) RemoveContact(ctx context.Context, owner, contact domain.UserID) error {
	return r.update(ctx, owner, bson.M{
		"$pull": bson.M{"contacts": contact.String()},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
}

func (r *UserRepository) update(ctx context.Context, owner domain.UserID, update bson.M) error {
	res, err := r.store.users.UpdateOne(ctx, bson.M{"_id": owner.String()}, update)
	if err != nil {
		return errors.Wrap(err, "update contacts")
	}
	if res.MatchedCount == 0 {
		return domain.NotFound("user not found")
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDoc
	err := r.store.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFound("user not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "find user")
	}
	return doc.toDomain(), nil
}
