package mongo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultCollection = "processedGuids"
	defaultDBName     = "news"
)

// SeenSet is the durable set of identifiers already published, one document
// per guid keyed by _id with the time it was first recorded. Records never
// expire.
type SeenSet struct {
	client *mongodriver.Client
	guids  *mongodriver.Collection
}

// New connects to MongoDB, verifies it and opens the identifier collection.
func New(ctx context.Context, uri, collection string) (*SeenSet, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, errors.New("mongo: empty uri")
	}
	if collection == "" {
		collection = defaultCollection
	}

	cli, err := mongodriver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &SeenSet{
		client: cli,
		guids:  cli.Database(databaseFromURI(uri)).Collection(collection),
	}, nil
}

// Close disconnects the client.
func (s *SeenSet) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks the primary is reachable.
func (s *SeenSet) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Exists reports whether guid was already recorded.
func (s *SeenSet) Exists(ctx context.Context, guid string) (bool, error) {
	n, err := s.guids.CountDocuments(ctx, bson.D{{Key: "_id", Value: guid}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongo exists %s: %w", guid, err)
	}
	return n > 0, nil
}

// MarkSeen records guids. Already-present identifiers are left untouched, so
// the call is safe to repeat.
func (s *SeenSet) MarkSeen(ctx context.Context, guids []string) error {
	if len(guids) == 0 {
		return nil
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	writes := make([]mongodriver.WriteModel, 0, len(guids))
	for _, g := range guids {
		writes = append(writes, mongodriver.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "_id", Value: g}}).
			SetUpdate(bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "seen_at", Value: now}}}}).
			SetUpsert(true))
	}

	if _, err := s.guids.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("mongo mark seen: %w", err)
	}
	return nil
}

// databaseFromURI extracts the database name from the mongodb URI path,
// falling back to a default.
func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}
	return defaultDBName
}
