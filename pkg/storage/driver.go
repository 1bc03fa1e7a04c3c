package storage

import "context"

// Driver defines the interface for persisting and retrieving stream
// transcripts in a storage backend.
type Driver interface {
	// Save stores a transcript. Saving the same ID twice overwrites the
	// earlier record.
	Save(ctx context.Context, t *Transcript) error

	// Get retrieves a transcript by stream ID.
	Get(ctx context.Context, id string) (*Transcript, error)

	// List returns transcripts ordered most recent first, at most limit
	// entries. A non-positive limit returns all.
	List(ctx context.Context, limit int) ([]*Transcript, error)

	// Close closes the store and releases any resources.
	Close() error
}
