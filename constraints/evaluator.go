package constraints

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/marathon-mesos/marathon/model"
)

// Outcome is the result of evaluating a single constraint against a
// single offer.
type Outcome int

const (
	// Match means the offer satisfies the constraint.
	Match Outcome = iota
	// NoMatch means the offer violates the constraint.
	NoMatch
	// NotApplicable means the constraint's field was not present on
	// the offer and the operator treats that as vacuously satisfied.
	NotApplicable
)

// Request bundles everything Evaluate needs to decide one constraint
// against one offer.
type Request struct {
	Constraint model.Constraint
	// FieldValue/Present describe the offer's value for
	// Constraint.Field (hostname, "@region", "@zone", or an attribute
	// name).
	FieldValue string
	Present    bool
	// PlacedValues holds the corresponding field value for every
	// already-placed instance of this RunSpec (one entry per
	// instance; "" for instances placed on an agent lacking the
	// field).
	PlacedValues []string
	// ClusterPin is the persisted pin for a CLUSTER constraint with an
	// empty Value, or "" if no instance of this spec has been placed
	// yet under this constraint.
	ClusterPin string
}

// Result is Evaluate's verdict, plus any new CLUSTER pin the caller
// must persist alongside the RunSpec's placement context (spec.md §9:
// this is implicit global state that must be persisted, not
// reconstructed from instances alone).
type Result struct {
	Outcome Outcome
	NewPin  string
}

// Evaluator is a pure function of (offer, placed instances,
// constraint), over a tagged-variant constraint model.
type Evaluator interface {
	Evaluate(req Request) (Result, error)
}

type evaluator struct{}

// NewEvaluator returns the default placement constraint evaluator.
func NewEvaluator() Evaluator {
	return evaluator{}
}

func (evaluator) Evaluate(req Request) (Result, error) {
	switch req.Constraint.Operator {
	case model.Unique:
		return evalUnique(req), nil
	case model.Cluster:
		return evalCluster(req), nil
	case model.GroupBy:
		return evalGroupBy(req)
	case model.Like:
		return evalLike(req)
	case model.Unlike:
		return evalUnlike(req)
	case model.MaxPer:
		return evalMaxPer(req)
	default:
		return Result{}, fmt.Errorf("unknown constraint operator %v", req.Constraint.Operator)
	}
}

func evalUnique(req Request) Result {
	if !req.Present {
		return Result{Outcome: NotApplicable}
	}
	for _, v := range req.PlacedValues {
		if v == req.FieldValue {
			return Result{Outcome: NoMatch}
		}
	}
	return Result{Outcome: Match}
}

func evalCluster(req Request) Result {
	if !req.Present {
		return Result{Outcome: NoMatch}
	}
	if req.Constraint.Value != "" {
		if req.FieldValue == req.Constraint.Value {
			return Result{Outcome: Match}
		}
		return Result{Outcome: NoMatch}
	}
	// Empty value: pin to whatever first matches.
	if req.ClusterPin == "" {
		return Result{Outcome: Match, NewPin: req.FieldValue}
	}
	if req.FieldValue == req.ClusterPin {
		return Result{Outcome: Match}
	}
	return Result{Outcome: NoMatch}
}

func evalGroupBy(req Request) (Result, error) {
	if !req.Present {
		return Result{Outcome: NoMatch}, nil
	}

	min := 1
	if v := req.Constraint.Value; v != "" && v != "inf" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return Result{}, fmt.Errorf("invalid GROUP_BY minimum %q: %w", v, err)
		}
		min = parsed
	}

	counts := make(map[string]int)
	for _, v := range req.PlacedValues {
		counts[v]++
	}

	if _, exists := counts[req.FieldValue]; !exists {
		// Offer introduces a new group.
		return Result{Outcome: Match}, nil
	}

	if req.Constraint.Value == "inf" {
		// "as many groups as exist": only ever match on a new group,
		// which was already handled above.
		return Result{Outcome: NoMatch}, nil
	}

	if len(counts) < min {
		return Result{Outcome: NoMatch}, nil
	}

	smallest := counts[req.FieldValue]
	for _, c := range counts {
		if c < smallest {
			smallest = c
		}
	}
	if counts[req.FieldValue] == smallest {
		return Result{Outcome: Match}, nil
	}
	return Result{Outcome: NoMatch}, nil
}

func evalLike(req Request) (Result, error) {
	if !req.Present {
		return Result{Outcome: NoMatch}, nil
	}
	re, err := regexp.Compile(req.Constraint.Value)
	if err != nil {
		return Result{}, fmt.Errorf("invalid LIKE pattern %q: %w", req.Constraint.Value, err)
	}
	if re.MatchString(req.FieldValue) {
		return Result{Outcome: Match}, nil
	}
	return Result{Outcome: NoMatch}, nil
}

func evalUnlike(req Request) (Result, error) {
	if !req.Present {
		// Missing attribute: accept, per spec.md §4.2.
		return Result{Outcome: Match}, nil
	}
	re, err := regexp.Compile(req.Constraint.Value)
	if err != nil {
		return Result{}, fmt.Errorf("invalid UNLIKE pattern %q: %w", req.Constraint.Value, err)
	}
	if re.MatchString(req.FieldValue) {
		return Result{Outcome: NoMatch}, nil
	}
	return Result{Outcome: Match}, nil
}

func evalMaxPer(req Request) (Result, error) {
	if !req.Present {
		return Result{Outcome: NotApplicable}, nil
	}
	n, err := strconv.Atoi(req.Constraint.Value)
	if err != nil {
		return Result{}, fmt.Errorf("invalid MAX_PER count %q: %w", req.Constraint.Value, err)
	}
	count := 0
	for _, v := range req.PlacedValues {
		if v == req.FieldValue {
			count++
		}
	}
	if count < n {
		return Result{Outcome: Match}, nil
	}
	return Result{Outcome: NoMatch}, nil
}
