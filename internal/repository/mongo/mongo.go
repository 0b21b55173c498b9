// Package mongo stores users in a MongoDB collection.
//
// Documents use a 12-byte ObjectID as _id. The application's xid has the
// same width, so the two convert directly and no lookup table is needed.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	collectionName  = "users"
	emailIndexName  = "users_email_unique"
	disconnectAfter = 5 * time.Second
)

// Open connects to uri, pings the primary and makes sure the unique email
// index exists before returning the store.
func Open(ctx context.Context, uri, database string) (*UserStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging: %w", err)
	}

	coll := client.Database(database).Collection(collectionName)
	if err := ensureIndexes(ctx, coll); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &UserStore{client: client, coll: coll}, nil
}

func ensureIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName(emailIndexName),
	})
	if err != nil {
		return fmt.Errorf("mongo: creating email index: %w", err)
	}
	return nil
}
