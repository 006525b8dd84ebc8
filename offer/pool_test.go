package offer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"

	"github.com/marathon-mesos/marathon/constraints"
	"github.com/marathon-mesos/marathon/mesosapi"
	"github.com/marathon-mesos/marathon/model"
	"github.com/marathon-mesos/marathon/scalar"
)

func testOffer(id, hostname string, cpus float64) *mesosapi.Offer {
	return &mesosapi.Offer{
		ID:            id,
		Hostname:      hostname,
		Role:          "*",
		ResourceRoles: []string{"*"},
		Unreserved:    mesosapi.Resources{CPUs: cpus, MemMB: 1024},
		Expiry:        time.Now().Add(time.Minute),
	}
}

func TestClaimForPlaceMatchesSufficientHost(t *testing.T) {
	pool := NewPool(time.Minute, NewMetrics(tally.NoopScope), nil)
	pool.AddOffers([]*mesosapi.Offer{testOffer("o1", "host-a", 4)})

	req := PlacementRequest{
		Resources: scalar.Resources{CPUs: 1, MemMB: 128},
		Role:      "*",
		State:     constraints.NewPlacementState(),
	}
	hostname, offers, err := pool.ClaimForPlace(req)
	require.NoError(t, err)
	assert.Equal(t, "host-a", hostname)
	assert.Len(t, offers, 1)
}

func TestClaimForPlaceFailsInsufficientResources(t *testing.T) {
	pool := NewPool(time.Minute, NewMetrics(tally.NoopScope), nil)
	pool.AddOffers([]*mesosapi.Offer{testOffer("o1", "host-a", 1)})

	req := PlacementRequest{
		Resources: scalar.Resources{CPUs: 4, MemMB: 128},
		State:     constraints.NewPlacementState(),
	}
	_, _, err := pool.ClaimForPlace(req)
	assert.ErrorIs(t, err, ErrNoMatch)
	var noMatch *NoMatchError
	require.ErrorAs(t, err, &noMatch)
	assert.Equal(t, InsufficientResources, noMatch.Reason)
}

func TestClaimForLaunchConsumesOffers(t *testing.T) {
	pool := NewPool(time.Minute, NewMetrics(tally.NoopScope), nil)
	pool.AddOffers([]*mesosapi.Offer{testOffer("o1", "host-a", 4)})

	req := PlacementRequest{Resources: scalar.Resources{CPUs: 1}, State: constraints.NewPlacementState()}
	hostname, _, err := pool.ClaimForPlace(req)
	require.NoError(t, err)

	offers, err := pool.ClaimForLaunch(hostname)
	require.NoError(t, err)
	assert.Len(t, offers, 1)

	_, _, err = pool.ClaimForPlace(req)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestRescindOfferRemovesFromPool(t *testing.T) {
	pool := NewPool(time.Minute, NewMetrics(tally.NoopScope), nil)
	pool.AddOffers([]*mesosapi.Offer{testOffer("o1", "host-a", 4)})

	assert.True(t, pool.RescindOffer("o1"))
	_, _, err := pool.ClaimForPlace(PlacementRequest{Resources: scalar.Resources{CPUs: 1}, State: constraints.NewPlacementState()})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestUniqueConstraintRejectsSecondInstanceOnSameHost(t *testing.T) {
	pool := NewPool(time.Minute, NewMetrics(tally.NoopScope), nil)
	pool.AddOffers([]*mesosapi.Offer{testOffer("o1", "host-a", 4)})

	state := constraints.NewPlacementState()
	req := PlacementRequest{
		Resources:   scalar.Resources{CPUs: 1},
		Constraints: []model.Constraint{{Field: model.FieldHostname, Operator: model.Unique}},
		State:       state,
	}
	hostname, _, err := pool.ClaimForPlace(req)
	require.NoError(t, err)
	_, err = pool.ClaimForLaunch(hostname)
	require.NoError(t, err)

	pool.AddOffers([]*mesosapi.Offer{testOffer("o2", "host-a", 4)})
	_, _, err = pool.ClaimForPlace(req)
	assert.ErrorIs(t, err, ErrNoMatch)
}
