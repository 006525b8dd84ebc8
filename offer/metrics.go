package offer

import "github.com/uber-go/tally"

// Metrics reports offer pool occupancy and outcome counters.
type Metrics struct {
	Ready   tally.Gauge
	Placing tally.Gauge

	OffersReceived  tally.Counter
	OffersRescinded tally.Counter
	OffersExpired   tally.Counter
	OffersDeclined  tally.Counter

	MatchSuccess tally.Counter
	MatchFail    tally.Counter
}

// NewMetrics builds Metrics under scope.
func NewMetrics(scope tally.Scope) *Metrics {
	offerScope := scope.SubScope("offer_pool")
	return &Metrics{
		Ready:           offerScope.Gauge("ready"),
		Placing:         offerScope.Gauge("placing"),
		OffersReceived:  offerScope.Counter("offers_received"),
		OffersRescinded: offerScope.Counter("offers_rescinded"),
		OffersExpired:   offerScope.Counter("offers_expired"),
		OffersDeclined:  offerScope.Counter("offers_declined"),
		MatchSuccess:    offerScope.Tagged(map[string]string{"result": "success"}).Counter("match"),
		MatchFail:       offerScope.Tagged(map[string]string{"result": "fail"}).Counter("match"),
	}
}
