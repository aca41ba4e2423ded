package conversation

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps each conversation as one document in a collection, with the
// composite key as _id.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection("conversations")}
}

// EnsureIndexes creates the index the dispatcher queue scans.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
		{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create conversation indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MongoStore) Oldest(ctx context.Context, status Status, now int64) (*Conversation, error) {
	filter := bson.M{
		"status": status,
		"$or": bson.A{
			bson.M{"claim_id": bson.M{"$exists": false}},
			bson.M{"claim_id": ""},
			bson.M{"claimed_until": bson.M{"$lte": now}},
		},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: 1}, {Key: "_id", Value: 1}})

	var c Conversation
	err := s.coll.FindOne(ctx, filter, opts).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MongoStore) Create(ctx context.Context, c *Conversation) error {
	doc := *c
	doc.Version = 1
	doc.Events = nonNilEvents(doc.Events)
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return err
	}
	c.Version = 1
	return nil
}

func (s *MongoStore) Update(ctx context.Context, c *Conversation) error {
	doc := *c
	doc.Version = c.Version + 1
	doc.Events = nonNilEvents(doc.Events)

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": c.ID, "version": c.Version}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := s.Get(ctx, c.ID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	c.Version = doc.Version
	return nil
}
