package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/marathon-mesos/marathon/model"
)

func deploymentKey(id string) string {
	return PrefixDeployment + "/" + id
}

// DeploymentRepository persists in-flight deployment plans so the
// executor can resume them after a scheduler restart (spec.md §4.5,
// §6).
type DeploymentRepository struct {
	store Store
}

// NewDeploymentRepository wraps store for deployment plan persistence.
func NewDeploymentRepository(store Store) *DeploymentRepository {
	return &DeploymentRepository{store: store}
}

// Store persists plan, overwriting any previous version. Plans are
// mutated step-by-step as the executor advances them, so this is a
// plain overwrite rather than a CAS: the executor that owns the plan's
// per-runspec locks is the only writer.
func (r *DeploymentRepository) Store(ctx context.Context, plan *model.DeploymentPlan) (time.Time, error) {
	raw, err := json.Marshal(plan)
	if err != nil {
		return time.Time{}, err
	}
	return r.store.Store(ctx, deploymentKey(plan.ID), raw)
}

// Get loads one deployment plan by id. Returns (nil, nil) if absent.
func (r *DeploymentRepository) Get(ctx context.Context, id string) (*model.DeploymentPlan, error) {
	raw, err := r.store.Get(ctx, deploymentKey(id))
	if err != nil {
		if _, ok := err.(*NotFoundError); ok {
			return nil, nil
		}
		return nil, err
	}
	var plan model.DeploymentPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Delete removes a completed or cancelled deployment plan.
func (r *DeploymentRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, deploymentKey(id))
}

// List returns every persisted (in-flight) deployment plan, used to
// resume execution after a restart.
func (r *DeploymentRepository) List(ctx context.Context) ([]*model.DeploymentPlan, error) {
	ids, err := r.store.IDs(ctx, PrefixDeployment+"/")
	if err != nil {
		return nil, err
	}
	out := make([]*model.DeploymentPlan, 0, len(ids))
	for _, key := range ids {
		id := strings.TrimPrefix(key, PrefixDeployment+"/")
		plan, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if plan != nil {
			out = append(out, plan)
		}
	}
	return out, nil
}
