package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/marathon-mesos/marathon/model"
)

// rootGroupKey is the single key the root group is stored under: the
// root group known to the planner is always the latest persisted
// root (spec.md §3).
const rootGroupKey = PrefixRootGroup + "/root"

// GroupRepository persists and reloads the root group tree, enforcing
// compare-and-set against its version timestamp (spec.md §5).
type GroupRepository struct {
	store Store
}

// NewGroupRepository wraps store for root-group persistence.
func NewGroupRepository(store Store) *GroupRepository {
	return &GroupRepository{store: store}
}

// Load returns the latest persisted root group, or (nil, nil) if none
// has ever been stored.
func (r *GroupRepository) Load(ctx context.Context) (*model.Group, error) {
	raw, err := r.store.Get(ctx, rootGroupKey)
	if err != nil {
		if _, ok := err.(*NotFoundError); ok {
			return nil, nil
		}
		return nil, err
	}
	var snap model.GroupSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return model.FromGroupSnapshot(snap), nil
}

// LoadVersion returns the root group as it existed at a specific
// version timestamp.
func (r *GroupRepository) LoadVersion(ctx context.Context, version time.Time) (*model.Group, error) {
	raw, err := r.store.GetVersion(ctx, rootGroupKey, version)
	if err != nil {
		return nil, err
	}
	var snap model.GroupSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return model.FromGroupSnapshot(snap), nil
}

// CompareAndSwap stores newRoot only if the currently persisted root's
// version equals expectedVersion, returning ConflictError otherwise.
// The zero Time means "no root has ever been persisted".
func (r *GroupRepository) CompareAndSwap(ctx context.Context, expectedVersion time.Time, newRoot *model.Group) error {
	raw, err := json.Marshal(model.ToGroupSnapshot(newRoot))
	if err != nil {
		return err
	}
	_, err = r.store.CompareAndSwap(ctx, rootGroupKey, expectedVersion, raw)
	return err
}
