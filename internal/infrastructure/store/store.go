// Package store implements the record store engine: named collections of
// JSON-encoded records keyed by an auto-assigned integer id, with declared
// secondary indexes (optionally unique) kept in memory and a pluggable
// durable Backend underneath.
//
// Every write is a single serialized unit per collection: uniqueness checks,
// the backend write and the index update happen under the collection's lock,
// and the in-memory state only changes after the backend accepted the write.
// A Batch extends that unit over several collections: Engine.Apply stages
// the result under every involved lock and hands it to the backend as one
// ReplaceAll call.
package store

import (
	"context"
)

// Collection names.
const (
	Users    = "users"
	Services = "services"
	Requests = "requests"
	Sessions = "sessions"
)

// Record is implemented by every entity held in a collection.
type Record interface {
	GetID() int64
	SetID(id int64)
}

// Snapshot is the persisted content of one collection.
type Snapshot struct {
	Rows map[int64][]byte
	// NextID is the next identifier to assign. Identifiers are never reused,
	// even after deletes.
	NextID int64
}

// Backend persists encoded records. Implementations must make Put and Delete
// durable before returning nil and must advance the collection sequence to at
// least id+1 on Put.
//
// ReplaceAll swaps the rows of every named collection for the snapshot's rows
// and raises each sequence to at least the snapshot's NextID. It is all or
// nothing: on error no collection may have changed.
type Backend interface {
	Load(ctx context.Context, collection string) (Snapshot, error)
	Put(ctx context.Context, collection string, id int64, data []byte) error
	Delete(ctx context.Context, collection string, id int64) error
	ReplaceAll(ctx context.Context, sets map[string]Snapshot) error
	Close() error
}
