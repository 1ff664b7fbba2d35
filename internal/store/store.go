// Package store defines the minimal realtime document store the signaling
// and chat protocols are built on. The interface deliberately mirrors a
// hosted document database: hierarchical paths, whole-document snapshots,
// append-only sub-collections, and live subscriptions.
package store

import (
	"context"
	"errors"
)

// Document is a schemaless JSON-like document
type Document map[string]interface{}

// Snapshot is the authoritative full state of a path at one point in time.
// Consumers must treat it as a replacement, not a delta.
type Snapshot struct {
	Path   string
	Exists bool
	Data   Document
}

// ChildEvent signals a newly added record in a sub-collection. The children
// feed is addition-only; children are removed only when the parent path is
// deleted.
type ChildEvent struct {
	Parent string
	ID     string
	Data   Document
}

// ConnState describes the health of the store connection as seen by
// long-lived subscriptions.
type ConnState string

const (
	ConnStateConnected    ConnState = "connected"
	ConnStateReconnecting ConnState = "reconnecting"
)

// ErrExists is returned by Create when a document already occupies the path.
// It is the store-level primitive the first-writer-wins offer race rests on.
var ErrExists = errors.New("store: document already exists")

// ErrNotFound is returned by Get for absent paths
var ErrNotFound = errors.New("store: document not found")

// Store is the narrow read/write/subscribe interface over the realtime
// document backend. All operations honor context cancellation. Within one
// subscription, snapshots arrive in commit order for that path; no ordering
// is guaranteed across different paths.
type Store interface {
	// Get reads the current document at path
	Get(ctx context.Context, path string) (Snapshot, error)

	// Create writes the document only if the path is vacant. Returns
	// ErrExists otherwise. The check and write are atomic.
	Create(ctx context.Context, path string, doc Document) error

	// Put overwrites the document at path unconditionally
	Put(ctx context.Context, path string, doc Document) error

	// Update merges the partial document into the existing one. Creates
	// the document when absent.
	Update(ctx context.Context, path string, partial Document) error

	// UpdateIfAbsent merges like Update, but only while guardField is
	// unset on the document; returns ErrExists otherwise. The check and
	// merge are atomic.
	UpdateIfAbsent(ctx context.Context, path, guardField string, partial Document) error

	// Delete removes the document and its sub-collection
	Delete(ctx context.Context, path string) error

	// AddChild appends a record to the path's sub-collection and returns
	// its assigned ID
	AddChild(ctx context.Context, path string, doc Document) (string, error)

	// Subscribe streams full snapshots of the path, starting with its
	// current state. The channel closes when ctx is done.
	Subscribe(ctx context.Context, path string) (<-chan Snapshot, error)

	// SubscribeChildren streams sub-collection additions, starting with
	// the existing children. The channel closes when ctx is done.
	SubscribeChildren(ctx context.Context, path string) (<-chan ChildEvent, error)
}
