// Package inmemory provides a map-backed storage driver. It is the
// default when no database is configured, and the workhorse for tests.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/brookhq/brook/pkg/storage"
)

// Driver implements storage.Driver with an in-process map.
type Driver struct {
	mu      sync.RWMutex
	records map[string]*storage.Transcript
}

// NewDriver creates an empty in-memory store.
func NewDriver() *Driver {
	return &Driver{
		records: make(map[string]*storage.Transcript),
	}
}

func (d *Driver) Save(_ context.Context, t *storage.Transcript) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *t
	d.records[t.ID] = &cp

	return nil
}

func (d *Driver) Get(_ context.Context, id string) (*storage.Transcript, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.records[id]
	if !ok {
		return nil, storage.ErrNotFound{ID: id}
	}

	cp := *t
	return &cp, nil
}

func (d *Driver) List(_ context.Context, limit int) ([]*storage.Transcript, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*storage.Transcript, 0, len(d.records))
	for _, t := range d.records {
		cp := *t
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (d *Driver) Close() error {
	return nil
}
