package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/profilekeeper/internal/common"
	"github.com/dmitrijs2005/profilekeeper/internal/server/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	CollectionName = "accounts"

	usernameIndex = "uniq_username"
	emailIndex    = "uniq_email"
)

type accountDocument struct {
	ID            string                `bson:"_id"`
	Username      string                `bson:"username"`
	Email         string                `bson:"email"`
	FullName      string                `bson:"full_name"`
	PasswordHash  string                `bson:"password_hash"`
	Avatar        models.MediaAssetRef  `bson:"avatar"`
	Cover         *models.MediaAssetRef `bson:"cover,omitempty"`
	SessionSecret string                `bson:"session_secret"`
	CreatedAt     time.Time             `bson:"created_at"`
	UpdatedAt     time.Time             `bson:"updated_at"`
}

func toDocument(a *models.Account) accountDocument {
	return accountDocument{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		FullName:      a.FullName,
		PasswordHash:  a.PasswordHash,
		Avatar:        a.Avatar,
		Cover:         a.Cover,
		SessionSecret: a.SessionSecret,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func (d *accountDocument) account() *models.Account {
	return &models.Account{
		ID:            d.ID,
		Username:      d.Username,
		Email:         d.Email,
		FullName:      d.FullName,
		PasswordHash:  d.PasswordHash,
		Avatar:        d.Avatar,
		Cover:         d.Cover,
		SessionSecret: d.SessionSecret,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// MongoRepository stores one document per account. Uniqueness comes from
// unique indexes created by EnsureIndexes.
type MongoRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(CollectionName), now: time.Now}
}

// EnsureIndexes creates the unique username and email indexes. It is
// idempotent.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetName(usernameIndex)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName(emailIndex)},
	})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func mapMongoError(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return common.ErrorNotFound
	case mongo.IsDuplicateKeyError(err):
		msg := err.Error()
		switch {
		case strings.Contains(msg, emailIndex):
			return conflict("email")
		case strings.Contains(msg, usernameIndex):
			return conflict("username")
		default:
			return conflict("id")
		}
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.D) (*models.Account, error) {
	var doc accountDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	return doc.account(), nil
}

func (r *MongoRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*models.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "email", Value: email}},
		bson.D{{Key: "username", Value: username}},
	}}})
}

func (r *MongoRepository) Create(ctx context.Context, account *models.Account) (*models.AccountView, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := r.now().UTC().Truncate(time.Millisecond)
	account.CreatedAt, account.UpdatedAt = now, now

	if _, err := r.coll.InsertOne(ctx, toDocument(account)); err != nil {
		return nil, mapMongoError(err)
	}

	return account.View(), nil
}

func (r *MongoRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

// updateDocument renders u as a single $set/$unset update.
func updateDocument(u models.AccountUpdate, now time.Time) bson.D {
	set := bson.D{}
	if u.FullName != nil {
		set = append(set, bson.E{Key: "full_name", Value: *u.FullName})
	}
	if u.Email != nil {
		set = append(set, bson.E{Key: "email", Value: *u.Email})
	}
	if u.PasswordHash != nil {
		set = append(set, bson.E{Key: "password_hash", Value: *u.PasswordHash})
	}
	if u.Avatar != nil {
		set = append(set, bson.E{Key: "avatar", Value: *u.Avatar})
	}
	if u.Cover != nil && !u.ClearCover {
		set = append(set, bson.E{Key: "cover", Value: *u.Cover})
	}
	if u.SessionSecret != nil {
		set = append(set, bson.E{Key: "session_secret", Value: *u.SessionSecret})
	}
	set = append(set, bson.E{Key: "updated_at", Value: now})

	update := bson.D{{Key: "$set", Value: set}}
	if u.ClearCover {
		update = append(update, bson.E{Key: "$unset", Value: bson.D{{Key: "cover", Value: ""}}})
	}
	return update
}

func (r *MongoRepository) UpdateFields(ctx context.Context, id string, update models.AccountUpdate) (*models.AccountView, error) {
	if update.IsEmpty() {
		a, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return a.View(), nil
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc accountDocument
	err := r.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		updateDocument(update, r.now().UTC()),
		opts,
	).Decode(&doc)
	if err != nil {
		return nil, mapMongoError(err)
	}

	return doc.account().View(), nil
}

// swapFilter matches the account only while its secret is still expected.
func swapFilter(id, expected string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "session_secret", Value: expected},
	}
}

func (r *MongoRepository) SwapSessionSecret(ctx context.Context, id, expected, next string) error {
	if expected == "" {
		return common.ErrSessionMismatch
	}

	res, err := r.coll.UpdateOne(ctx, swapFilter(id, expected), bson.D{{Key: "$set", Value: bson.D{
		{Key: "session_secret", Value: next},
		{Key: "updated_at", Value: r.now().UTC()},
	}}})
	if err != nil {
		return mapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return common.ErrSessionMismatch
	}

	return nil
}

func (r *MongoRepository) Delete(ctx context.Context, id string) (*models.Account, error) {
	var doc accountDocument
	if err := r.coll.FindOneAndDelete(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	return doc.account(), nil
}
