package reservation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marathon-mesos/marathon/mesosapi"
	"github.com/marathon-mesos/marathon/model"
)

func TestExtractReservedGroupsByInstanceID(t *testing.T) {
	offers := []*mesosapi.Offer{
		{
			Hostname: "host-a",
			Reserved: map[string]mesosapi.ReservationLabels{
				"inst-1": {InstanceID: "inst-1", VolumeIDs: []string{"vol-1"}},
			},
		},
	}
	result := ExtractReserved(offers)
	assert.Len(t, result, 1)
	assert.Equal(t, []string{"vol-1"}, result["inst-1"].VolumeIDs)
}

func TestTransitionFollowsStateMachine(t *testing.T) {
	s, err := Transition(model.ReservationNew, model.ReservationLaunched)
	assert.NoError(t, err)
	assert.Equal(t, model.ReservationLaunched, s)

	s, err = Transition(model.ReservationLaunched, model.ReservationSuspended)
	assert.NoError(t, err)
	assert.Equal(t, model.ReservationSuspended, s)

	_, err = Transition(model.ReservationNew, model.ReservationSuspended)
	assert.Error(t, err)
}
