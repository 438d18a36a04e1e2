// Package mongodb implements event.Store as a MongoDB document store, one
// document per publication, grounded in the teacher's data/mongodb
// driver. It registers itself with the event package when imported:
//
//	import _ "github.com/ncobase/modulith/store/mongodb"
package mongodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	"github.com/ncobase/modulith/event"
)

const collectionName = "event_publication"

type driver struct{}

func (d *driver) Name() string { return "mongodb" }

func (d *driver) Open(ctx context.Context, dsn string) (event.Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(dsn))
	if err != nil {
		return nil, fmt.Errorf("mongodb: failed to connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb: failed to ping: %w", err)
	}

	db := client.Database(dbNameFromURI(dsn))
	coll := db.Collection(collectionName)

	if _, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "listener_id", Value: 1}, {Key: "serialized_event", Value: 1}}},
		{Keys: bson.D{{Key: "completion_date", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("mongodb: failed to create indexes: %w", err)
	}

	return &Store{client: client, coll: coll}, nil
}

func init() {
	event.RegisterDriver(&driver{})
}

// dbNameFromURI extracts the database name from a mongodb:// URI's path
// component, falling back to "modulith" if none is present.
func dbNameFromURI(dsn string) string {
	withoutScheme := dsn
	if idx := strings.Index(dsn, "://"); idx >= 0 {
		withoutScheme = dsn[idx+3:]
	}
	pathStart := strings.IndexByte(withoutScheme, '/')
	if pathStart < 0 {
		return "modulith"
	}
	rest := withoutScheme[pathStart+1:]
	if end := strings.IndexAny(rest, "?"); end >= 0 {
		rest = rest[:end]
	}
	if rest == "" {
		return "modulith"
	}
	return rest
}

// doc is event_publication's document shape, one per publication.
type doc struct {
	ID                    uuid.UUID  `bson:"_id"`
	ListenerID            string     `bson:"listener_id"`
	EventType             string     `bson:"event_type"`
	SerializedEvent       string     `bson:"serialized_event"`
	PublicationDate       time.Time  `bson:"publication_date"`
	CompletionDate        *time.Time `bson:"completion_date,omitempty"`
	Status                string     `bson:"status,omitempty"`
	CompletionAttempts    int        `bson:"completion_attempts"`
	LastResubmissionDate  *time.Time `bson:"last_resubmission_date,omitempty"`
}

func toDoc(pub *event.EventPublication) doc {
	return doc{
		ID:                   pub.ID,
		ListenerID:           pub.Target.String(),
		EventType:            pub.EventType,
		SerializedEvent:      pub.SerializedEvent,
		PublicationDate:      pub.PublishedAt,
		CompletionDate:       pub.CompletedAt,
		Status:               string(pub.Status),
		CompletionAttempts:   pub.Attempts,
		LastResubmissionDate: pub.LastResubmittedAt,
	}
}

func fromDoc(d doc) (*event.EventPublication, error) {
	target, err := event.NewPublicationTargetIdentifier(d.ListenerID)
	if err != nil {
		return nil, fmt.Errorf("mongodb: invalid stored listener_id %q: %w", d.ListenerID, err)
	}
	pub := event.NewEventPublication(d.ID, d.EventType, d.SerializedEvent, target, d.PublicationDate, 0)
	pub.CompletedAt = d.CompletionDate
	if d.Status != "" {
		pub.Status = event.Status(d.Status)
	}
	pub.Attempts = d.CompletionAttempts
	pub.LastResubmittedAt = d.LastResubmissionDate
	return pub, nil
}

// Store implements event.Store over a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func (s *Store) Create(ctx context.Context, pub *event.EventPublication) error {
	_, err := s.coll.InsertOne(ctx, toDoc(pub))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return event.ErrPublicationExists
		}
		return fmt.Errorf("mongodb: create publication: %w", err)
	}
	return nil
}

func (s *Store) MarkCompleted(ctx context.Context, eventIdentity string, target event.PublicationTargetIdentifier, at time.Time) error {
	opts := options.FindOneAndUpdate().SetSort(bson.D{{Key: "publication_date", Value: 1}})
	filter := bson.D{
		{Key: "serialized_event", Value: eventIdentity},
		{Key: "listener_id", Value: target.String()},
		{Key: "completion_date", Value: nil},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "completion_date", Value: at},
		{Key: "status", Value: string(event.StatusCompleted)},
	}}}
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Err()
	if err != nil && err != mongo.ErrNoDocuments {
		return fmt.Errorf("mongodb: mark completed: %w", err)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, at time.Time, reason string) error {
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "status", Value: string(event.StatusFailed)}, {Key: "last_resubmission_date", Value: at}}},
		{Key: "$inc", Value: bson.D{{Key: "completion_attempts", Value: 1}}},
	}
	res, err := s.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return fmt.Errorf("mongodb: mark failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return event.ErrPublicationNotFound
	}
	return nil
}

func (s *Store) FindIncomplete(ctx context.Context) ([]*event.EventPublication, error) {
	return s.find(ctx, bson.D{{Key: "completion_date", Value: nil}})
}

func (s *Store) FindIncompletePublishedBefore(ctx context.Context, before time.Time) ([]*event.EventPublication, error) {
	return s.find(ctx, bson.D{
		{Key: "completion_date", Value: nil},
		{Key: "publication_date", Value: bson.D{{Key: "$lt", Value: before}}},
	})
}

func (s *Store) FindIncompleteByEventAndTarget(ctx context.Context, eventIdentity string, target event.PublicationTargetIdentifier) (*event.EventPublication, error) {
	pubs, err := s.find(ctx, bson.D{
		{Key: "completion_date", Value: nil},
		{Key: "serialized_event", Value: eventIdentity},
		{Key: "listener_id", Value: target.String()},
	})
	if err != nil {
		return nil, err
	}
	if len(pubs) == 0 {
		return nil, nil
	}
	return pubs[0], nil
}

func (s *Store) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.coll.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return fmt.Errorf("mongodb: delete by ids: %w", err)
	}
	return nil
}

func (s *Store) DeleteCompletedBefore(ctx context.Context, before time.Time) error {
	_, err := s.coll.DeleteMany(ctx, bson.D{
		{Key: "completion_date", Value: bson.D{{Key: "$ne", Value: nil}, {Key: "$lt", Value: before}}},
	})
	if err != nil {
		return fmt.Errorf("mongodb: delete completed before: %w", err)
	}
	return nil
}

func (s *Store) find(ctx context.Context, filter bson.D) ([]*event.EventPublication, error) {
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "publication_date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongodb: find: %w", err)
	}
	defer cur.Close(ctx)

	var out []*event.EventPublication
	for cur.Next(ctx) {
		var d doc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("mongodb: decode: %w", err)
		}
		pub, err := fromDoc(d)
		if err != nil {
			return nil, err
		}
		out = append(out, pub)
	}
	return out, cur.Err()
}
