package offer

import (
	"github.com/marathon-mesos/marathon/constraints"
	"github.com/marathon-mesos/marathon/model"
	"github.com/marathon-mesos/marathon/scalar"
)

// PlacementRequest describes what one instance of a run spec needs to
// match against a host's cached offers.
type PlacementRequest struct {
	Resources   scalar.Resources
	Role        string
	Constraints []model.Constraint
	State       *constraints.PlacementState
}

// matchHost evaluates req against host's cached offers, returning
// MatchSuccess if every resource and constraint check passes. On
// success it commits the match into req.State so the next instance of
// the same run spec sees this host's attribute values as placed.
func matchHost(host *hostOfferSummary, req PlacementRequest, evaluator constraints.Evaluator) MatchResult {
	if !host.hasOffers() {
		return OfferExhausted
	}

	total := host.totalResources()
	if !total.Contains(req.Resources) {
		return InsufficientResources
	}
	if total.HasGPU() != req.Resources.HasGPU() {
		return MismatchGPU
	}

	first := host.firstOffer()
	if first == nil {
		return OfferExhausted
	}
	if req.Role != "" && !containsRole(first.ResourceRoles, req.Role) {
		return MismatchRole
	}

	labelValues := constraints.GetHostLabelValues(first.Hostname, first.Attributes)
	if first.Region != "" {
		labelValues.Merge(constraints.LabelValues{model.FieldRegion: {first.Region: 1}})
	}
	if first.Zone != "" {
		labelValues.Merge(constraints.LabelValues{model.FieldZone: {first.Zone: 1}})
	}

	for _, c := range req.Constraints {
		fieldValue, present := labelValues.Value(c.Field)
		placed, pin := req.State.Snapshot(c.Field)
		request := constraints.Request{
			Constraint:   c,
			FieldValue:   fieldValue,
			Present:      present,
			PlacedValues: placed,
			ClusterPin:   pin,
		}
		result, err := evaluator.Evaluate(request)
		if err != nil || result.Outcome == constraints.NoMatch {
			return MismatchConstraint
		}
		if result.Outcome == constraints.Match {
			req.State.Commit(c.Field, fieldValue, result)
		}
	}

	return MatchSuccess
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
