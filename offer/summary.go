package offer

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/marathon-mesos/marathon/mesosapi"
	"github.com/marathon-mesos/marathon/scalar"
)

// CacheStatus is the state of a host's cached offers within one
// matching cycle.
type CacheStatus int

const (
	// Ready offers are available for ClaimForPlace.
	Ready CacheStatus = iota + 1
	// Placing offers have been handed to the placement engine and are
	// awaiting either ClaimForLaunch or ReturnUnusedOffers.
	Placing
)

// hostOfferSummary holds every offer currently cached for one agent.
type hostOfferSummary struct {
	sync.Mutex

	hostname string
	offers   map[string]*mesosapi.Offer // offer id -> offer
	status   CacheStatus
	count    atomic.Int32
}

func newHostOfferSummary(hostname string) *hostOfferSummary {
	return &hostOfferSummary{hostname: hostname, offers: make(map[string]*mesosapi.Offer), status: Ready}
}

func (h *hostOfferSummary) addOffer(o *mesosapi.Offer) {
	h.Lock()
	defer h.Unlock()
	h.offers[o.ID] = o
	h.count.Inc()
}

func (h *hostOfferSummary) removeOffer(offerID string) bool {
	h.Lock()
	defer h.Unlock()
	if _, ok := h.offers[offerID]; !ok {
		return false
	}
	delete(h.offers, offerID)
	h.count.Dec()
	return true
}

func (h *hostOfferSummary) hasOffers() bool {
	return h.count.Load() > 0
}

// totalResources sums the unreserved resources of every cached offer
// on this host.
func (h *hostOfferSummary) totalResources() scalar.Resources {
	h.Lock()
	defer h.Unlock()
	var total scalar.Resources
	for _, o := range h.offers {
		total = total.Add(scalar.FromMesos(o.Unreserved))
	}
	return total
}

func (h *hostOfferSummary) firstOffer() *mesosapi.Offer {
	h.Lock()
	defer h.Unlock()
	for _, o := range h.offers {
		return o
	}
	return nil
}

// claim marks this host Placing and returns a snapshot of its offers,
// consumed by the caller to launch on. Returns false if the host was
// already Placing.
func (h *hostOfferSummary) claim() (map[string]*mesosapi.Offer, bool) {
	h.Lock()
	defer h.Unlock()
	if h.status == Placing {
		return nil, false
	}
	h.status = Placing
	snapshot := make(map[string]*mesosapi.Offer, len(h.offers))
	for id, o := range h.offers {
		snapshot[id] = o
	}
	return snapshot, true
}

// release returns this host to Ready, e.g. after a failed launch or
// an explicit ReturnUnusedOffers.
func (h *hostOfferSummary) release() {
	h.Lock()
	defer h.Unlock()
	h.status = Ready
}

// removeExpired drops offers older than cutoff and reports their ids.
func (h *hostOfferSummary) removeExpired(cutoff time.Time) []string {
	h.Lock()
	defer h.Unlock()
	var expired []string
	for id, o := range h.offers {
		if o.Expiry.Before(cutoff) {
			expired = append(expired, id)
			delete(h.offers, id)
			h.count.Dec()
		}
	}
	return expired
}
