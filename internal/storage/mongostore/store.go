// Package mongostore keeps chat messages in the storefront's MongoDB
// "messages" collection, using the document layout the storefront already
// writes.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/reactshop/community-chat/backend/internal/model/chat"
)

const messageCollection = "messages"

type document struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"userId"`
	Username  string             `bson:"username"`
	Text      string             `bson:"text"`
	Timestamp int64              `bson:"timestamp"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func fromMessage(msg chat.Message) document {
	return document{
		UserID:    msg.UserID,
		Username:  msg.Username,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
		CreatedAt: msg.CreatedAt(),
	}
}

func (d document) toMessage() chat.Message {
	return chat.Message{
		ID:        d.ID.Hex(),
		UserID:    d.UserID,
		Username:  d.Username,
		Text:      d.Text,
		Timestamp: d.Timestamp,
	}
}

// Store handles message persistence in MongoDB.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Open connects to uri and verifies the connection.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &Store{
		client:     client,
		collection: client.Database(database).Collection(messageCollection),
	}, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Append inserts msg; the generated ObjectID becomes its identifier.
func (s *Store) Append(ctx context.Context, msg chat.Message) (string, error) {
	doc := fromMessage(msg)
	doc.ID = primitive.NewObjectID()
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return doc.ID.Hex(), nil
}

// Recent sorts by _id, which increases with insertion from a single
// process, and returns the newest limit messages oldest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		return []chat.Message{}, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	messages := make([]chat.Message, len(docs))
	for i, doc := range docs {
		messages[len(docs)-1-i] = doc.toMessage()
	}
	return messages, nil
}

// Count returns the collection size.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.collection.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return int(n), nil
}
