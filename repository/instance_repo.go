package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/marathon-mesos/marathon/model"
)

func instanceKey(id string) string {
	return PrefixInstance + "/" + id
}

// InstanceRepository persists Instance records, one key per instance
// id, versioned so the tracker can detect concurrent writers (spec.md
// §3, §6).
type InstanceRepository struct {
	store Store
}

// NewInstanceRepository wraps store for instance persistence.
func NewInstanceRepository(store Store) *InstanceRepository {
	return &InstanceRepository{store: store}
}

// Store writes a new version of instance and returns it.
func (r *InstanceRepository) Store(ctx context.Context, instance *model.Instance) (time.Time, error) {
	raw, err := json.Marshal(instance)
	if err != nil {
		return time.Time{}, err
	}
	return r.store.Store(ctx, instanceKey(instance.InstanceID), raw)
}

// CompareAndSwap writes instance only if its persisted version still
// equals expectedVersion.
func (r *InstanceRepository) CompareAndSwap(ctx context.Context, expectedVersion time.Time, instance *model.Instance) (time.Time, error) {
	raw, err := json.Marshal(instance)
	if err != nil {
		return time.Time{}, err
	}
	return r.store.CompareAndSwap(ctx, instanceKey(instance.InstanceID), expectedVersion, raw)
}

// Get loads one instance by id. Returns (nil, nil) if absent.
func (r *InstanceRepository) Get(ctx context.Context, instanceID string) (*model.Instance, error) {
	raw, err := r.store.Get(ctx, instanceKey(instanceID))
	if err != nil {
		if _, ok := err.(*NotFoundError); ok {
			return nil, nil
		}
		return nil, err
	}
	var inst model.Instance
	if err := json.Unmarshal(raw, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// Delete removes an instance and all of its persisted versions.
func (r *InstanceRepository) Delete(ctx context.Context, instanceID string) error {
	return r.store.Delete(ctx, instanceKey(instanceID))
}

// List returns every persisted instance. Used at startup to
// reconstruct the tracker's in-memory state and by the garbage
// collector.
func (r *InstanceRepository) List(ctx context.Context) ([]*model.Instance, error) {
	ids, err := r.store.IDs(ctx, PrefixInstance+"/")
	if err != nil {
		return nil, err
	}
	out := make([]*model.Instance, 0, len(ids))
	for _, key := range ids {
		instanceID := strings.TrimPrefix(key, PrefixInstance+"/")
		inst, err := r.Get(ctx, instanceID)
		if err != nil {
			return nil, err
		}
		if inst != nil {
			out = append(out, inst)
		}
	}
	return out, nil
}
