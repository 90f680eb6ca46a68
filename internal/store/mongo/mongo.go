// Package mongo implements the store interfaces over MongoDB.
// Documents are keyed by 24-hex internal ids stored as plain strings, so
// externally formatted oids round-trip without ObjectID conversions.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tapewise/backend/internal/model/eventlog"
	"github.com/tapewise/backend/internal/model/transcript"
	"github.com/tapewise/backend/internal/store"
)

const (
	collMessages   = "messages"
	collSessionLog = "session_log"
	collLocators   = "object_locators"
)

// Store wraps a mongo database handle.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects, pings, and ensures the indexes the read paths rely on.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := &Store{client: client, db: client.Database(dbName)}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	logIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "message_id", Value: 1}}},
	}
	if _, err := s.db.Collection(collSessionLog).Indexes().CreateMany(ctx, logIndexes); err != nil {
		return fmt.Errorf("mongo indexes: %w", err)
	}
	msgIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}}},
	}
	if _, err := s.db.Collection(collMessages).Indexes().CreateMany(ctx, msgIndexes); err != nil {
		return fmt.Errorf("mongo indexes: %w", err)
	}
	return nil
}

func (s *Store) Messages() store.Messages { return &messages{coll: s.db.Collection(collMessages)} }
func (s *Store) Events() store.Events     { return &events{coll: s.db.Collection(collSessionLog)} }
func (s *Store) Locators() store.Locators { return &locators{coll: s.db.Collection(collLocators)} }

type messages struct {
	coll *mongo.Collection
}

func (m *messages) FindByID(ctx context.Context, id string) (*transcript.Message, error) {
	var msg transcript.Message
	err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &store.NotFoundError{Resource: "message", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	return &msg, nil
}

func (m *messages) Update(ctx context.Context, id string, fields map[string]any) error {
	sets := bson.M{}
	for key, value := range fields {
		sets[key] = value
	}
	result, err := m.coll.UpdateByID(ctx, id, bson.M{"$set": sets})
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if result.MatchedCount == 0 {
		return &store.NotFoundError{Resource: "message", ID: id}
	}
	return nil
}

type events struct {
	coll *mongo.Collection
}

func (e *events) Insert(ctx context.Context, event *eventlog.Event) (*eventlog.Event, error) {
	stored := *event
	if stored.ID == "" {
		stored.ID = bson.NewObjectID().Hex()
	}
	if _, err := e.coll.InsertOne(ctx, stored); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, &store.ConflictError{Message: fmt.Sprintf("event %q already exists", stored.ID)}
		}
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return &stored, nil
}

func (e *events) FindByID(ctx context.Context, id string) (*eventlog.Event, error) {
	var event eventlog.Event
	err := e.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&event)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &store.NotFoundError{Resource: "event", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	return &event, nil
}

func (e *events) List(ctx context.Context, filter store.EventFilter) ([]eventlog.Event, error) {
	query := bson.M{"session_id": filter.SessionID}
	if filter.MessageID != "" {
		query["message_id"] = filter.MessageID
	}
	if len(filter.EventNames) > 0 {
		query["event_name"] = bson.M{"$in": filter.EventNames}
	}

	// _id order is insertion order: ids are freshly minted ObjectIDs.
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts = opts.SetLimit(int64(filter.Limit))
	}
	cursor, err := e.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	var out []eventlog.Event
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return out, nil
}

type locators struct {
	coll *mongo.Collection
}

// Upsert filters on both _id and parent_id. When the oid already exists
// bound to another parent the upsert degenerates into an insert that
// trips the _id uniqueness constraint, which surfaces as Conflict.
func (l *locators) Upsert(ctx context.Context, locator transcript.ObjectLocator) error {
	filter := bson.M{"_id": locator.Oid, "parent_id": locator.ParentID}
	update := bson.M{"$set": bson.M{
		"entity_type":       locator.EntityType,
		"parent_collection": locator.ParentCollection,
		"parent_id":         locator.ParentID,
		"parent_prefix":     locator.ParentPrefix,
		"path":              locator.Path,
	}}
	_, err := l.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return &store.ConflictError{Message: fmt.Sprintf("oid %s already bound to another document", locator.Oid)}
	}
	if err != nil {
		return fmt.Errorf("upsert locator: %w", err)
	}
	return nil
}

func (l *locators) FindByOid(ctx context.Context, oidValue string) (*transcript.ObjectLocator, error) {
	var locator transcript.ObjectLocator
	err := l.coll.FindOne(ctx, bson.M{"_id": oidValue}).Decode(&locator)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &store.NotFoundError{Resource: "object locator", ID: oidValue}
	}
	if err != nil {
		return nil, fmt.Errorf("find locator: %w", err)
	}
	return &locator, nil
}
