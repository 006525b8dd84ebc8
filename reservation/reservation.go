// Package reservation implements the resident-task reservation state
// machine and the extraction of already-reserved resources from
// cached offers (spec.md §4.4).
package reservation

import (
	"fmt"

	"github.com/marathon-mesos/marathon/mesosapi"
	"github.com/marathon-mesos/marathon/model"
	"github.com/marathon-mesos/marathon/scalar"
)

// Reserved bundles the resources and volume ids reserved for one
// resident instance, as reported by an offer.
type Reserved struct {
	InstanceID string
	Resources  scalar.Resources
	VolumeIDs  []string
	Hostname   string
	AgentID    string
	OfferID    string
}

// ExtractReserved scans offers for resources already reserved under a
// marathon instance id (placed there by a prior Reserve/CreateVolume
// operation) and returns them keyed by instance id.
func ExtractReserved(offers []*mesosapi.Offer) map[string]*Reserved {
	result := make(map[string]*Reserved)
	for _, o := range offers {
		for instanceID, labels := range o.Reserved {
			r, ok := result[instanceID]
			if !ok {
				r = &Reserved{InstanceID: instanceID, Hostname: o.Hostname, AgentID: o.AgentID, OfferID: o.ID}
				result[instanceID] = r
			}
			r.VolumeIDs = append(r.VolumeIDs, labels.VolumeIDs...)
		}
	}
	return result
}

// TransitionError reports an attempted reservation state transition
// that the state machine does not allow.
type TransitionError struct {
	From model.ReservationState
	To   model.ReservationState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("reservation: cannot transition from %s to %s", e.From, e.To)
}

// validTransitions encodes the resident task reservation state
// machine: New -> Launched -> Suspended -> Launched.
var validTransitions = map[model.ReservationState]map[model.ReservationState]bool{
	model.ReservationNew:       {model.ReservationLaunched: true},
	model.ReservationLaunched:  {model.ReservationSuspended: true},
	model.ReservationSuspended: {model.ReservationLaunched: true},
}

// Transition validates and applies from -> to, returning the new
// state or a TransitionError if the move is not permitted.
func Transition(from, to model.ReservationState) (model.ReservationState, error) {
	if from == to {
		return from, nil
	}
	if validTransitions[from][to] {
		return to, nil
	}
	return from, &TransitionError{From: from, To: to}
}

// NewReservation creates a fresh reservation in the New state, bound
// to no agent yet.
func NewReservation(resources scalar.Resources, volumeIDs []string) *model.Reservation {
	r := &model.Reservation{State: model.ReservationNew, VolumeIDs: volumeIDs}
	r.Resources = model.Resources{CPUs: resources.CPUs, MemMB: resources.MemMB, DiskMB: resources.DiskMB, GPUs: resources.GPUs}
	return r
}
