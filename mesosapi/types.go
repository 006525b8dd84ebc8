// Package mesosapi defines the plain-struct message shapes the core
// exchanges with the resource broker (Mesos), and the SchedulerDriver
// interface the core consumes. The broker's actual wire protocol is
// out of scope (spec.md §1): this package has no protobuf dependency,
// only the field names the core computes over (cpus/mem/disk/gpus,
// reservation labels, task states).
package mesosapi

import "time"

// TaskState mirrors the subset of Mesos TaskState values the instance
// tracker's state machine recognizes (spec.md §4.1).
type TaskState int

const (
	TaskStaging TaskState = iota
	TaskRunning
	TaskFinished
	TaskFailed
	TaskKilled
	TaskLost
	TaskGoneByOperator
	TaskUnreachable
	TaskDropped
	TaskUnknown
)

// Resources is the scalar resource bundle carried by an Offer or a
// launch/reserve Operation.
type Resources struct {
	CPUs   float64
	MemMB  float64
	DiskMB float64
	GPUs   float64
}

// ReservationLabels binds a reserved resource back to the owning
// instance id, following the labeled-reservation encoding used by
// hostmgr/reservation/reservation.go.
type ReservationLabels struct {
	InstanceID string
	VolumeIDs  []string
}

// Offer is a bundle of resources an agent makes available for a short
// window.
type Offer struct {
	ID         string
	AgentID    string
	Hostname   string
	Region     string
	Zone       string
	Attributes map[string]string
	Role       string
	// ResourceRoles lists the roles of the resources bundled in this
	// offer (an offer can carry resources under multiple roles).
	ResourceRoles []string
	Unreserved    Resources
	// Reserved holds resources already reserved for a specific
	// instance, keyed by the owning instance id.
	Reserved map[string]ReservationLabels
	Expiry   time.Time
}

// OperationType enumerates the Mesos ACCEPT operations the task
// launcher may issue.
type OperationType int

const (
	OpReserve OperationType = iota
	OpCreateVolume
	OpLaunch
	OpLaunchGroup
	OpUnreserve
	OpDestroyVolume
)

// Operation is a single Mesos ACCEPT operation.
type Operation struct {
	Type       OperationType
	InstanceID string
	TaskID     string
	Resources  Resources
	VolumeID   string
	VolumePath string
}

// TaskStatus is a single status update for one task, as reported by
// the broker.
type TaskStatus struct {
	TaskID    string
	State     TaskState
	Message   string
	Healthy   *bool
	Hostname  string
	HostPorts []int32
	IPAddress string
	Timestamp time.Time
	// UUID acknowledges the update; empty for synthetic/reconciliation
	// statuses that do not require acknowledgement.
	UUID string
}

// MasterInfo is the subset of Mesos master registration info the
// scheduler adapter consumes to learn its local region/zone
// (spec.md §4.6).
type MasterInfo struct {
	Hostname string
	Region   string
	Zone     string
}

// FrameworkID identifies this scheduler's registration with the
// broker; it is persisted so re-registration can resume the same
// framework.
type FrameworkID string

// SchedulerDriver is the subset of the Mesos scheduler HTTP/driver
// surface the core issues calls against. Its implementation is out of
// scope; the core only depends on this interface.
type SchedulerDriver interface {
	AcceptOffers(offerIDs []string, ops []Operation, filterRefuseSeconds float64) error
	DeclineOffer(offerID string, filterRefuseSeconds float64) error
	KillTask(taskID string) error
	ReconcileTasks(taskIDs []string) error
	ReviveOffers() error
	SuppressOffers() error
	Stop(failover bool) error
}
