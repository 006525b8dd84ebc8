package model

import "time"

// Condition is the instance-tracker's state machine position for one
// instance (spec.md §3).
type Condition int

const (
	Scheduled Condition = iota
	Provisioned
	Staging
	Starting
	Running
	Killing
	Killed
	Finished
	Failed
	Error
	Gone
	Unreachable
	UnreachableInactive
	Dropped
	Unknown
)

func (c Condition) String() string {
	switch c {
	case Scheduled:
		return "Scheduled"
	case Provisioned:
		return "Provisioned"
	case Staging:
		return "Staging"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Killing:
		return "Killing"
	case Killed:
		return "Killed"
	case Finished:
		return "Finished"
	case Failed:
		return "Failed"
	case Error:
		return "Error"
	case Gone:
		return "Gone"
	case Unreachable:
		return "Unreachable"
	case UnreachableInactive:
		return "UnreachableInactive"
	case Dropped:
		return "Dropped"
	default:
		return "Unknown"
	}
}

// Terminal reports whether c is a condition from which no further
// status updates are expected for the current task incarnation.
func (c Condition) Terminal() bool {
	switch c {
	case Finished, Failed, Error, Gone, Dropped, Killed:
		return true
	default:
		return false
	}
}

// Goal is the operator's desired end state for an instance.
type Goal int

const (
	GoalRunning Goal = iota
	GoalStopped
	GoalDecommissioned
)

// Terminal reports whether g is a terminal goal: Stopped or
// Decommissioned.
func (g Goal) Terminal() bool {
	return g == GoalStopped || g == GoalDecommissioned
}

func (g Goal) String() string {
	switch g {
	case GoalStopped:
		return "Stopped"
	case GoalDecommissioned:
		return "Decommissioned"
	default:
		return "Running"
	}
}

// AgentInfo describes the agent an instance's tasks are placed on.
type AgentInfo struct {
	Host       string
	Region     string
	Zone       string
	Attributes map[string]string
}

// NetworkInfo carries the network details a task reports once
// running.
type NetworkInfo struct {
	HostPorts   []int32
	IPAddresses []string
}

// TaskStatus is the instance tracker's view of one task's most recent
// broker status.
type TaskStatus struct {
	Condition            Condition
	Message              string
	Network              NetworkInfo
	UnreachableSince      time.Time
}

// Task is one task belonging to an instance. Its TaskID embeds the
// owning instance id and an incarnation counter (spec.md §3).
type Task struct {
	TaskID      string
	Incarnation int
	Status      TaskStatus
	LaunchedOn  AgentInfo
}

// ReservationState is the resident-task reservation state machine
// (spec.md §4.4).
type ReservationState int

const (
	ReservationNew ReservationState = iota
	ReservationLaunched
	ReservationSuspended
)

func (s ReservationState) String() string {
	switch s {
	case ReservationLaunched:
		return "Launched"
	case ReservationSuspended:
		return "Suspended"
	default:
		return "New"
	}
}

// Reservation binds a resident instance to reserved resources and
// persistent-volume ids on a specific agent.
type Reservation struct {
	State      ReservationState
	AgentID    string
	Hostname   string
	VolumeIDs  []string
	Resources  Resources
}

// InstanceState is the mutable status half of an Instance record.
type InstanceState struct {
	Condition   Condition
	Timestamp   time.Time
	ActiveSince time.Time
	Healthy     *bool
	Goal        Goal
}

// Instance is one realization of a RunSpec, identified by an id that
// is stable across task restarts (spec.md §3).
type Instance struct {
	InstanceID      string
	RunSpecID       AbsolutePathId
	RunSpecVersion  time.Time
	Agent           AgentInfo
	State           InstanceState
	Tasks           map[string]*Task
	Reservation     *Reservation
	ScheduledAt     time.Time
}

// IsResident reports whether this instance carries a reservation.
func (i *Instance) IsResident() bool {
	return i.Reservation != nil
}
