// Package mongo provides the MongoDB store backend.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/servicedesk/requests/internal/infrastructure/store"
)

const (
	countersCollection = "counters"
	defaultTimeout     = 10 * time.Second
)

// recordDoc stores one encoded record; the integer id doubles as _id.
type recordDoc struct {
	ID        int64     `bson:"_id"`
	Data      string    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type counterDoc struct {
	Collection string `bson:"_id"`
	NextID     int64  `bson:"next_id"`
}

// Config selects the deployment and database. Timeout bounds the initial
// connection and every later operation.
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Backend implements store.Backend on MongoDB, one Mongo collection per
// record collection plus a counters collection for id sequences.
type Backend struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

var _ store.Backend = (*Backend)(nil)

// Open connects, pings the primary and returns a backend over cfg.Database.
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().ApplyURI(cfg.URI).SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &Backend{client: client, db: client.Database(cfg.Database), timeout: timeout}, nil
}

func (b *Backend) Load(ctx context.Context, collection string) (store.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cur, err := b.db.Collection(collection).Find(ctx, bson.M{})
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("load %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	snap := store.Snapshot{Rows: make(map[int64][]byte), NextID: 1}
	for cur.Next(ctx) {
		var doc recordDoc
		if err := cur.Decode(&doc); err != nil {
			return store.Snapshot{}, fmt.Errorf("load %s: decode: %w", collection, err)
		}
		snap.Rows[doc.ID] = []byte(doc.Data)
		if doc.ID >= snap.NextID {
			snap.NextID = doc.ID + 1
		}
	}
	if err := cur.Err(); err != nil {
		return store.Snapshot{}, fmt.Errorf("load %s: %w", collection, err)
	}

	var counter counterDoc
	err = b.db.Collection(countersCollection).FindOne(ctx, bson.M{"_id": collection}).Decode(&counter)
	switch {
	case err == nil:
		if counter.NextID > snap.NextID {
			snap.NextID = counter.NextID
		}
	case errors.Is(err, mongo.ErrNoDocuments):
	default:
		return store.Snapshot{}, fmt.Errorf("load %s counter: %w", collection, err)
	}
	return snap, nil
}

// Put upserts the record, then raises the collection counter with $max.
func (b *Backend) Put(ctx context.Context, collection string, id int64, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	doc := recordDoc{ID: id, Data: string(data), UpdatedAt: time.Now().UTC()}
	_, err := b.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put %s/%d: %w", collection, id, err)
	}

	_, err = b.db.Collection(countersCollection).UpdateOne(ctx,
		bson.M{"_id": collection},
		bson.M{"$max": bson.M{"next_id": id + 1}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("advance %s counter: %w", collection, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, collection string, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if _, err := b.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete %s/%d: %w", collection, id, err)
	}
	return nil
}

// ReplaceAll rewrites every named collection inside one multi-document
// transaction. Transactions need a replica set or sharded cluster; against a
// standalone server the call fails before anything is written.
func (b *Backend) ReplaceAll(ctx context.Context, sets map[string]store.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	sess, err := b.client.StartSession()
	if err != nil {
		return fmt.Errorf("replace: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	now := time.Now().UTC()
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for collection, set := range sets {
			coll := b.db.Collection(collection)
			if _, err := coll.DeleteMany(sc, bson.M{}); err != nil {
				return nil, fmt.Errorf("replace %s: clear: %w", collection, err)
			}
			if len(set.Rows) > 0 {
				docs := make([]interface{}, 0, len(set.Rows))
				for id, data := range set.Rows {
					docs = append(docs, recordDoc{ID: id, Data: string(data), UpdatedAt: now})
				}
				if _, err := coll.InsertMany(sc, docs); err != nil {
					return nil, fmt.Errorf("replace %s: insert: %w", collection, err)
				}
			}
			_, err := b.db.Collection(countersCollection).UpdateOne(sc,
				bson.M{"_id": collection},
				bson.M{"$max": bson.M{"next_id": set.NextID}},
				options.Update().SetUpsert(true),
			)
			if err != nil {
				return nil, fmt.Errorf("replace %s: counter: %w", collection, err)
			}
		}
		return nil, nil
	})
	return err
}

// Close disconnects the client.
func (b *Backend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	return b.client.Disconnect(ctx)
}
