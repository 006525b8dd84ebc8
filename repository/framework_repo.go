package repository

import (
	"context"
)

const frameworkIDKey = PrefixFramework + "/id"

// FrameworkRepository persists the Mesos framework id assigned on
// first registration so a restarted scheduler re-registers under the
// same id instead of appearing as a brand new framework (spec.md §4.6).
type FrameworkRepository struct {
	store Store
}

// NewFrameworkRepository wraps store for framework id persistence.
func NewFrameworkRepository(store Store) *FrameworkRepository {
	return &FrameworkRepository{store: store}
}

// Get returns the persisted framework id, or "" if none has been
// stored yet.
func (r *FrameworkRepository) Get(ctx context.Context) (string, error) {
	raw, err := r.store.Get(ctx, frameworkIDKey)
	if err != nil {
		if _, ok := err.(*NotFoundError); ok {
			return "", nil
		}
		return "", err
	}
	return string(raw), nil
}

// Store idempotently persists id as the framework id. This is a plain
// overwrite, not a CAS: every scheduler instance that ever registers
// under this id writes the same value back.
func (r *FrameworkRepository) Store(ctx context.Context, id string) error {
	_, err := r.store.Store(ctx, frameworkIDKey, []byte(id))
	return err
}

// Clear removes the persisted framework id, so the next registration
// starts from scratch as a brand new framework. Called when the
// broker reports the framework itself has been removed, since
// re-registering under a dead id would be rejected again
// (spec.md §4.6, §7).
func (r *FrameworkRepository) Clear(ctx context.Context) error {
	if err := r.store.Delete(ctx, frameworkIDKey); err != nil {
		if _, ok := err.(*NotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}
