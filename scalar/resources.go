// Package scalar provides resource-quantity arithmetic shared by the
// offer matcher and pool, the launcher, and the reservation package.
package scalar

import (
	"math"
	"sync"

	"github.com/marathon-mesos/marathon/mesosapi"
	"github.com/marathon-mesos/marathon/model"
)

// epsilon absorbs floating point noise in resource comparisons.
const epsilon = 0.0001

// Resources is a non-thread-safe bundle of the four recognized scalar
// resource kinds.
type Resources struct {
	CPUs   float64
	MemMB  float64
	DiskMB float64
	GPUs   float64
}

func lessThanOrEqual(a, b float64) bool {
	d := a - b
	if math.Abs(d) < epsilon {
		return true
	}
	return d < 0
}

// FromModel converts a model.Resources request into scalar.Resources.
func FromModel(r model.Resources) Resources {
	return Resources{CPUs: r.CPUs, MemMB: r.MemMB, DiskMB: r.DiskMB, GPUs: r.GPUs}
}

// FromMesos converts an offer's unreserved resources into
// scalar.Resources.
func FromMesos(r mesosapi.Resources) Resources {
	return Resources{CPUs: r.CPUs, MemMB: r.MemMB, DiskMB: r.DiskMB, GPUs: r.GPUs}
}

// HasGPU reports whether r carries a non-zero GPU request; GPU hosts
// are reserved for GPU workloads only (spec.md §4.2 fit check).
func (r Resources) HasGPU() bool {
	return math.Abs(r.GPUs) > epsilon
}

// Contains reports whether r is large enough to satisfy other.
func (r Resources) Contains(other Resources) bool {
	return lessThanOrEqual(other.CPUs, r.CPUs) &&
		lessThanOrEqual(other.MemMB, r.MemMB) &&
		lessThanOrEqual(other.DiskMB, r.DiskMB) &&
		lessThanOrEqual(other.GPUs, r.GPUs)
}

// Add returns the elementwise sum of r and other.
func (r Resources) Add(other Resources) Resources {
	return Resources{
		CPUs:   r.CPUs + other.CPUs,
		MemMB:  r.MemMB + other.MemMB,
		DiskMB: r.DiskMB + other.DiskMB,
		GPUs:   r.GPUs + other.GPUs,
	}
}

// Subtract returns the elementwise difference of r minus other,
// without checking for negative results; see TrySubtract for a
// checked variant.
func (r Resources) Subtract(other Resources) Resources {
	return Resources{
		CPUs:   r.CPUs - other.CPUs,
		MemMB:  r.MemMB - other.MemMB,
		DiskMB: r.DiskMB - other.DiskMB,
		GPUs:   r.GPUs - other.GPUs,
	}
}

// TrySubtract returns r minus other, or false if r does not contain
// other.
func (r Resources) TrySubtract(other Resources) (Resources, bool) {
	if !r.Contains(other) {
		return Resources{}, false
	}
	return r.Subtract(other), true
}

// Empty reports whether every field is within epsilon of zero.
func (r Resources) Empty() bool {
	return math.Abs(r.CPUs) <= epsilon &&
		math.Abs(r.MemMB) <= epsilon &&
		math.Abs(r.DiskMB) <= epsilon &&
		math.Abs(r.GPUs) <= epsilon
}

// Atomic is a mutex-guarded Resources, safe to update from concurrent
// goroutines.
type Atomic struct {
	mu  sync.RWMutex
	res Resources
}

// Get returns a copy of the current value.
func (a *Atomic) Get() Resources {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.res
}

// Set replaces the current value.
func (a *Atomic) Set(r Resources) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.res = r
}

// Add atomically adds delta to the current value and returns the new
// total.
func (a *Atomic) Add(delta Resources) Resources {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.res = a.res.Add(delta)
	return a.res
}

// Subtract atomically subtracts delta from the current value and
// returns the new total; it does not check for negative results since
// callers track their own accounting invariants.
func (a *Atomic) Subtract(delta Resources) Resources {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.res = a.res.Subtract(delta)
	return a.res
}
