package constraints

import (
	"testing"

	"github.com/marathon-mesos/marathon/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueRejectsRepeatedHost(t *testing.T) {
	e := NewEvaluator()
	res, err := e.Evaluate(Request{
		Constraint:   model.Constraint{Field: model.FieldHostname, Operator: model.Unique},
		FieldValue:   "host-1",
		Present:      true,
		PlacedValues: []string{"host-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, NoMatch, res.Outcome)
}

func TestUniqueAllowsNewHost(t *testing.T) {
	e := NewEvaluator()
	res, err := e.Evaluate(Request{
		Constraint:   model.Constraint{Field: model.FieldHostname, Operator: model.Unique},
		FieldValue:   "host-2",
		Present:      true,
		PlacedValues: []string{"host-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, Match, res.Outcome)
}

func TestClusterEmptyValuePinsFirstMatch(t *testing.T) {
	e := NewEvaluator()
	res, err := e.Evaluate(Request{
		Constraint: model.Constraint{Field: "rack", Operator: model.Cluster, Value: ""},
		FieldValue: "rack-a",
		Present:    true,
		ClusterPin: "",
	})
	require.NoError(t, err)
	assert.Equal(t, Match, res.Outcome)
	assert.Equal(t, "rack-a", res.NewPin)

	// Once pinned, a different rack must be rejected.
	res2, err := e.Evaluate(Request{
		Constraint: model.Constraint{Field: "rack", Operator: model.Cluster, Value: ""},
		FieldValue: "rack-b",
		Present:    true,
		ClusterPin: "rack-a",
	})
	require.NoError(t, err)
	assert.Equal(t, NoMatch, res2.Outcome)
}

func TestGroupByPrefersSmallestGroup(t *testing.T) {
	e := NewEvaluator()
	res, err := e.Evaluate(Request{
		Constraint:   model.Constraint{Field: model.FieldZone, Operator: model.GroupBy, Value: "2"},
		FieldValue:   "zone-b",
		Present:      true,
		PlacedValues: []string{"zone-a", "zone-a", "zone-b"},
	})
	require.NoError(t, err)
	// zone-b (1) is not the smallest only if there's a smaller one; here
	// zone-a has 2 and zone-b has 1, so zone-b is smallest -> match.
	assert.Equal(t, Match, res.Outcome)
}

func TestGroupByNewGroupAlwaysMatches(t *testing.T) {
	e := NewEvaluator()
	res, err := e.Evaluate(Request{
		Constraint:   model.Constraint{Field: model.FieldZone, Operator: model.GroupBy, Value: "2"},
		FieldValue:   "zone-c",
		Present:      true,
		PlacedValues: []string{"zone-a", "zone-b"},
	})
	require.NoError(t, err)
	assert.Equal(t, Match, res.Outcome)
}

func TestLikeMatchesRegex(t *testing.T) {
	e := NewEvaluator()
	res, err := e.Evaluate(Request{
		Constraint: model.Constraint{Field: "rack", Operator: model.Like, Value: "^rack-[ab]$"},
		FieldValue: "rack-a",
		Present:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, Match, res.Outcome)
}

func TestUnlikeAcceptsMissingAttribute(t *testing.T) {
	e := NewEvaluator()
	res, err := e.Evaluate(Request{
		Constraint: model.Constraint{Field: "gpu", Operator: model.Unlike, Value: "true"},
		Present:    false,
	})
	require.NoError(t, err)
	assert.Equal(t, Match, res.Outcome)
}

func TestMaxPerRejectsAtLimit(t *testing.T) {
	e := NewEvaluator()
	res, err := e.Evaluate(Request{
		Constraint:   model.Constraint{Field: model.FieldHostname, Operator: model.MaxPer, Value: "2"},
		FieldValue:   "host-1",
		Present:      true,
		PlacedValues: []string{"host-1", "host-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, NoMatch, res.Outcome)
}
