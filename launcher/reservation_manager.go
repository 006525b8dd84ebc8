package launcher

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marathon-mesos/marathon/mesosapi"
	"github.com/marathon-mesos/marathon/model"
	"github.com/marathon-mesos/marathon/reservation"
)

// ReservationManager reconciles reservations reported by offers
// against what the tracker believes it owns, and releases the ones
// whose owning instance has been decommissioned (spec.md §4.4). The
// New -> Launched -> Suspended -> Launched transitions themselves are
// driven directly by the instance tracker as task statuses and goals
// come in, since it already holds the authoritative Instance record;
// this manager only owns the offer-side release of a reservation once
// its instance is gone for good.
type ReservationManager struct {
	tracker InstanceStore
	driver  mesosapi.SchedulerDriver
	log     logrus.FieldLogger

	mu             sync.Mutex
	pendingRelease map[string]bool
}

// InstanceStore is the subset of instancetracker.Tracker the
// reservation manager consults.
type InstanceStore interface {
	Get(instanceID string) *model.Instance
}

// NewReservationManager builds a manager over tracker.
func NewReservationManager(tracker InstanceStore, driver mesosapi.SchedulerDriver, log logrus.FieldLogger) *ReservationManager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ReservationManager{tracker: tracker, driver: driver, log: log, pendingRelease: make(map[string]bool)}
}

// MarkForRelease records that instanceID's reservation must be
// released the next time its reserved resources show up in an offer.
// The scheduler adapter calls this once a resident instance's task
// goes terminal while its goal is Decommissioned, the effect the
// tracker returns for that transition (spec.md §4.4).
func (m *ReservationManager) MarkForRelease(instanceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingRelease[instanceID] = true
}

// Reconcile cross-checks the reservations reported in offers against
// the tracker's resident instances. Reservations pending release are
// torn down with UNRESERVE + DESTROY_VOLUME; reservations whose
// instance is simply no longer tracked (and was never marked for
// release) are logged as orphans rather than auto-released, since an
// unreserve an operator didn't ask for is not a decision this manager
// makes on its own.
func (m *ReservationManager) Reconcile(ctx context.Context, offers []*mesosapi.Offer) {
	reserved := reservation.ExtractReserved(offers)
	for instanceID, r := range reserved {
		if m.consumeRelease(instanceID) {
			m.release(instanceID, r)
			continue
		}
		if m.tracker.Get(instanceID) == nil {
			m.log.WithField("instance", instanceID).
				WithField("timestamp", time.Now()).
				Warn("reservation manager: orphaned reservation found on offer with no tracked instance")
		}
	}
}

func (m *ReservationManager) consumeRelease(instanceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingRelease[instanceID] {
		delete(m.pendingRelease, instanceID)
		return true
	}
	return false
}

// release issues UNRESERVE + DESTROY_VOLUME for a decommissioned
// resident instance's reservation, freeing the agent's resources and
// volumes back to the unreserved pool (spec.md §4.4).
func (m *ReservationManager) release(instanceID string, r *reservation.Reserved) {
	ops := []mesosapi.Operation{{
		Type:       mesosapi.OpUnreserve,
		InstanceID: instanceID,
		Resources:  mesosapi.Resources{CPUs: r.Resources.CPUs, MemMB: r.Resources.MemMB, DiskMB: r.Resources.DiskMB, GPUs: r.Resources.GPUs},
	}}
	for _, volumeID := range r.VolumeIDs {
		ops = append(ops, mesosapi.Operation{
			Type:       mesosapi.OpDestroyVolume,
			InstanceID: instanceID,
			VolumeID:   volumeID,
		})
	}
	if err := m.driver.AcceptOffers([]string{r.OfferID}, ops, 0); err != nil {
		m.log.WithError(err).WithField("instance", instanceID).
			Error("reservation manager: failed to release decommissioned reservation")
		m.mu.Lock()
		m.pendingRelease[instanceID] = true
		m.mu.Unlock()
		return
	}
	m.log.WithField("instance", instanceID).Info("reservation manager: released decommissioned reservation")
}
