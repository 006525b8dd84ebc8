// Package offer caches the offers received from the Mesos master
// between scheduler callbacks and matches them against launch-queue
// placement requests (spec.md §4.2).
package offer

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marathon-mesos/marathon/constraints"
	"github.com/marathon-mesos/marathon/mesosapi"
)

// ErrNoMatch is the sentinel ClaimForPlace's error wraps when no
// cached host satisfies the request. Callers that don't care why can
// keep comparing with errors.Is(err, ErrNoMatch); callers that do
// (the launch queue's statistics) can type-assert to *NoMatchError
// for the funnel-ordered primary reason.
var ErrNoMatch = errors.New("offer: no host in the pool matches the placement request")

// NoMatchError carries why ClaimForPlace found no host, picking the
// primary reason out of every host it tried by funnel order
// (spec.md §4.2, §4.3).
type NoMatchError struct {
	Reason  MatchResult
	Results []MatchResult
}

func (e *NoMatchError) Error() string {
	return "offer: no match (" + e.Reason.String() + ")"
}

// Is makes errors.Is(err, ErrNoMatch) succeed for a *NoMatchError, so
// existing callers that only check "was there no match" don't need to
// know about the richer type.
func (e *NoMatchError) Is(target error) bool {
	return target == ErrNoMatch
}

// Pool caches the offers currently held from the Mesos master, one
// hostOfferSummary per agent.
type Pool interface {
	// AddOffers adds freshly received offers into the pool.
	AddOffers(offers []*mesosapi.Offer)
	// RescindOffer removes a single offer the master has withdrawn.
	// Returns whether it was found.
	RescindOffer(offerID string) bool
	// RemoveExpiredOffers drops every offer older than its Expiry and
	// returns the ids removed.
	RemoveExpiredOffers() []string
	// ClaimForPlace finds a host whose cached offers satisfy req and
	// marks it Placing, returning its hostname and the claimed offers.
	ClaimForPlace(req PlacementRequest) (string, map[string]*mesosapi.Offer, error)
	// ClaimForLaunch returns the offers previously claimed via
	// ClaimForPlace for hostname, consuming them: they are expected to
	// be sent back to Mesos in a Launch/Accept call.
	ClaimForLaunch(hostname string) (map[string]*mesosapi.Offer, error)
	// ReturnUnusedOffers releases a Placing host back to Ready without
	// consuming its offers, e.g. after a failed launch.
	ReturnUnusedOffers(hostname string) error
	// Clear empties the pool, used on disconnection from the master.
	Clear()
}

type offerPool struct {
	mu sync.RWMutex

	hosts map[string]*hostOfferSummary // hostname -> summary
	index map[string]string            // offer id -> hostname

	offerHoldTime time.Duration
	metrics       *Metrics
	evaluator     constraints.Evaluator
	log           logrus.FieldLogger
}

// NewPool returns an empty Pool holding offers for offerHoldTime
// before RemoveExpiredOffers reaps them.
func NewPool(offerHoldTime time.Duration, metrics *Metrics, log logrus.FieldLogger) Pool {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &offerPool{
		hosts:         make(map[string]*hostOfferSummary),
		index:         make(map[string]string),
		offerHoldTime: offerHoldTime,
		metrics:       metrics,
		evaluator:     constraints.NewEvaluator(),
		log:           log,
	}
}

func (p *offerPool) AddOffers(offers []*mesosapi.Offer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, o := range offers {
		summary, ok := p.hosts[o.Hostname]
		if !ok {
			summary = newHostOfferSummary(o.Hostname)
			p.hosts[o.Hostname] = summary
		}
		if o.Expiry.IsZero() {
			o.Expiry = time.Now().Add(p.offerHoldTime)
		}
		summary.addOffer(o)
		p.index[o.ID] = o.Hostname
		p.metrics.OffersReceived.Inc(1)
	}
}

func (p *offerPool) RescindOffer(offerID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	hostname, ok := p.index[offerID]
	if !ok {
		return false
	}
	delete(p.index, offerID)
	summary, ok := p.hosts[hostname]
	if !ok {
		return false
	}
	removed := summary.removeOffer(offerID)
	if removed {
		p.metrics.OffersRescinded.Inc(1)
	}
	return removed
}

func (p *offerPool) RemoveExpiredOffers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	var expired []string
	for _, summary := range p.hosts {
		ids := summary.removeExpired(now)
		for _, id := range ids {
			delete(p.index, id)
		}
		expired = append(expired, ids...)
	}
	if len(expired) > 0 {
		p.metrics.OffersExpired.Inc(int64(len(expired)))
	}
	return expired
}

func (p *offerPool) ClaimForPlace(req PlacementRequest) (string, map[string]*mesosapi.Offer, error) {
	p.mu.RLock()
	hosts := make([]*hostOfferSummary, 0, len(p.hosts))
	for _, summary := range p.hosts {
		hosts = append(hosts, summary)
	}
	p.mu.RUnlock()

	var results []MatchResult
	for _, summary := range hosts {
		result := matchHost(summary, req, p.evaluator)
		if result != MatchSuccess {
			results = append(results, result)
			continue
		}
		offers, claimed := summary.claim()
		if !claimed {
			results = append(results, OfferExhausted)
			continue
		}
		p.metrics.MatchSuccess.Inc(1)
		return summary.hostname, offers, nil
	}
	p.metrics.MatchFail.Inc(1)
	return "", nil, &NoMatchError{Reason: PrimaryReason(results), Results: results}
}

func (p *offerPool) ClaimForLaunch(hostname string) (map[string]*mesosapi.Offer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	summary, ok := p.hosts[hostname]
	if !ok {
		return nil, errors.New("offer: unknown host " + hostname)
	}
	summary.Lock()
	offers := summary.offers
	summary.offers = make(map[string]*mesosapi.Offer)
	summary.count.Store(0)
	summary.status = Ready
	summary.Unlock()

	for id := range offers {
		delete(p.index, id)
	}
	return offers, nil
}

func (p *offerPool) ReturnUnusedOffers(hostname string) error {
	p.mu.RLock()
	summary, ok := p.hosts[hostname]
	p.mu.RUnlock()
	if !ok {
		return errors.New("offer: unknown host " + hostname)
	}
	summary.release()
	return nil
}

func (p *offerPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hosts = make(map[string]*hostOfferSummary)
	p.index = make(map[string]string)
}
