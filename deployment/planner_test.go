package deployment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marathon-mesos/marathon/model"
)

func testGroup(specs ...model.RunSpec) *model.Group {
	g := &model.Group{ID: "/"}
	g.RunSpecs = append(g.RunSpecs, specs...)
	return g
}

func TestPlanStartsNewRunSpec(t *testing.T) {
	target := testGroup(model.NewApp("/app", time.Now(), model.Resources{CPUs: 1}, "*", model.Container{Image: "a"}))
	plan, err := Plan("p1", nil, target)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, model.StepStartRunSpec, plan.Steps[0].Kind)
}

func TestPlanScalesWhenOnlyInstanceCountChanges(t *testing.T) {
	current := model.NewApp("/app", time.Now(), model.Resources{CPUs: 1}, "*", model.Container{Image: "a"})
	current.SetInstances(1)
	target := model.NewApp("/app", time.Now(), model.Resources{CPUs: 1}, "*", model.Container{Image: "a"})
	target.SetInstances(3)

	plan, err := Plan("p1", testGroup(current), testGroup(target))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, model.StepScaleRunSpec, plan.Steps[0].Kind)
	assert.Equal(t, 3, plan.Steps[0].TargetScale)
}

func TestPlanRestartsInOverCapacityBatches(t *testing.T) {
	current := model.NewApp("/app", time.Now(), model.Resources{CPUs: 1}, "*", model.Container{Image: "a"})
	current.SetInstances(4)
	target := model.NewApp("/app", time.Now(), model.Resources{CPUs: 1}, "*", model.Container{Image: "b"})
	target.SetInstances(4)

	plan, err := Plan("p1", testGroup(current), testGroup(target))
	require.NoError(t, err)
	// Zero-value UpgradeStrategy (MaximumOverCapacity 0) still makes
	// progress one instance at a time: 4 rounds of
	// launch/readiness-check/stop.
	require.Len(t, plan.Steps, 12)
	for i := 0; i < 4; i++ {
		base := i * 3
		assert.Equal(t, model.StepLaunchBatch, plan.Steps[base].Kind)
		assert.Equal(t, 1, plan.Steps[base].BatchSize)
		assert.Equal(t, model.StepReadinessCheck, plan.Steps[base+1].Kind)
		assert.Equal(t, model.StepStopBatch, plan.Steps[base+2].Kind)
		assert.Equal(t, 1, plan.Steps[base+2].BatchSize)
		if i > 0 {
			assert.Equal(t, []int{base - 1}, plan.Steps[base].DependsOn)
		}
	}
}

func TestPlanRestartBatchSizeHonorsMaximumOverCapacity(t *testing.T) {
	current := model.NewApp("/app", time.Now(), model.Resources{CPUs: 1}, "*", model.Container{Image: "a"})
	current.SetInstances(10)
	target := model.NewApp("/app", time.Now(), model.Resources{CPUs: 1}, "*", model.Container{Image: "b"})
	target.SetInstances(10)
	target.SetUpgradeStrategy(model.UpgradeStrategy{MinimumHealthCapacity: 1, MaximumOverCapacity: 0.3})

	plan, err := Plan("p1", testGroup(current), testGroup(target))
	require.NoError(t, err)
	// ceil(0.3*10) == 3 per round: 3, 3, 3, 1 -> 4 rounds.
	require.Len(t, plan.Steps, 12)
	assert.Equal(t, 3, plan.Steps[0].BatchSize)
	assert.Equal(t, 3, plan.Steps[3].BatchSize)
	assert.Equal(t, 3, plan.Steps[6].BatchSize)
	assert.Equal(t, 1, plan.Steps[9].BatchSize)
}

func TestPlanStopsRemovedRunSpec(t *testing.T) {
	current := model.NewApp("/app", time.Now(), model.Resources{CPUs: 1}, "*", model.Container{})
	plan, err := Plan("p1", testGroup(current), testGroup())
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, model.StepStopRunSpec, plan.Steps[0].Kind)
}

func TestPlanOrdersByDependency(t *testing.T) {
	db := model.NewApp("/db", time.Now(), model.Resources{CPUs: 1}, "*", model.Container{})
	web := model.NewApp("/web", time.Now(), model.Resources{CPUs: 1}, "*", model.Container{})
	web.SetDependencies([]model.AbsolutePathId{"/db"})

	plan, err := Plan("p1", nil, testGroup(db, web))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, model.AbsolutePathId("/db"), plan.Steps[0].RunSpecID)
	assert.Equal(t, model.AbsolutePathId("/web"), plan.Steps[1].RunSpecID)
	assert.Equal(t, []int{0}, plan.Steps[1].DependsOn)
}

func TestPlanOrdersByGroupLevelDependency(t *testing.T) {
	db := model.NewApp("/db/server", time.Now(), model.Resources{CPUs: 1}, "*", model.Container{})
	api := model.NewApp("/api/server", time.Now(), model.Resources{CPUs: 1}, "*", model.Container{})

	target := &model.Group{
		ID: "/",
		Groups: []*model.Group{
			{ID: "/db", RunSpecs: []model.RunSpec{db}},
			{ID: "/api", Dependencies: []model.AbsolutePathId{"/db"}, RunSpecs: []model.RunSpec{api}},
		},
	}

	plan, err := Plan("p1", nil, target)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, model.AbsolutePathId("/db/server"), plan.Steps[0].RunSpecID)
	assert.Equal(t, model.AbsolutePathId("/api/server"), plan.Steps[1].RunSpecID)
	assert.Equal(t, []int{0}, plan.Steps[1].DependsOn)
}

func TestPlanReturnsNilWhenNoChanges(t *testing.T) {
	app := model.NewApp("/app", time.Now(), model.Resources{CPUs: 1}, "*", model.Container{})
	plan, err := Plan("p1", testGroup(app), testGroup(app))
	require.NoError(t, err)
	assert.Nil(t, plan)
}
