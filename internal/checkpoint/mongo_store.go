package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore is a Store backed by a single MongoDB document per run,
// grounded on the teacher's runlog Mongo client (features/runlog/mongo/
// clients/mongo/client.go): a narrow collection interface so tests can
// substitute a fake, one document keyed by run id, upserted on every Save.
// This is the multi-process-resumable alternative to FileStore (spec.md
// §4.8, §6) for orchestrations that span more than one host.
type MongoStore struct {
	coll    collection
	runID   string
	timeout time.Duration
}

type collection interface {
	ReplaceOne(ctx context.Context, filter, replacement any, opts ...options.Lister[options.ReplaceOptions]) (*mongodriver.UpdateResult, error)
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) *mongodriver.SingleResult
}

type snapshotDocument struct {
	RunID    string   `bson:"run_id"`
	Snapshot Snapshot `bson:"snapshot"`
}

const defaultMongoTimeout = 10 * time.Second

// NewMongoStore builds a MongoStore against coll, keyed by runID. Pass the
// *mongo.Collection returned by client.Database(...).Collection(...) — it
// already satisfies the narrow collection interface.
func NewMongoStore(coll collection, runID string, timeout time.Duration) (*MongoStore, error) {
	if coll == nil {
		return nil, errors.New("checkpoint: mongo collection is required")
	}
	if runID == "" {
		return nil, errors.New("checkpoint: run id is required")
	}
	if timeout <= 0 {
		timeout = defaultMongoTimeout
	}
	return &MongoStore{coll: coll, runID: runID, timeout: timeout}, nil
}

// Save upserts the current snapshot under this store's run id.
func (s *MongoStore) Save(ctx context.Context, snapshot *Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := snapshotDocument{RunID: s.runID, Snapshot: *snapshot}
	upsert := true
	_, err := s.coll.ReplaceOne(ctx, bson.M{"run_id": s.runID}, doc, options.Replace().SetUpsert(upsert))
	if err != nil {
		return fmt.Errorf("checkpoint: mongo save: %w", err)
	}
	return nil
}

// Load fetches the snapshot for this store's run id, returning
// (nil, false, nil) when no document exists yet.
func (s *MongoStore) Load(ctx context.Context) (*Snapshot, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc snapshotDocument
	err := s.coll.FindOne(ctx, bson.M{"run_id": s.runID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("checkpoint: mongo load: %w", err)
	}
	return &doc.Snapshot, true, nil
}
