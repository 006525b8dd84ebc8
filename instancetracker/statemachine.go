package instancetracker

import (
	"github.com/marathon-mesos/marathon/mesosapi"
	"github.com/marathon-mesos/marathon/model"
)

// messageClamp bounds how much of a broker-reported status message is
// retained on a Task, matching the event bus's payload clamp so a
// verbose container crash message never blows up persisted state
// (spec.md §6).
const messageClamp = 120

func clampMessage(msg string) string {
	if len(msg) <= messageClamp {
		return msg
	}
	return msg[:messageClamp]
}

// conditionFor derives the instance tracker's Condition from a single
// task status update (spec.md §3, §4.3).
func conditionFor(state mesosapi.TaskState) model.Condition {
	switch state {
	case mesosapi.TaskStaging:
		return model.Staging
	case mesosapi.TaskRunning:
		return model.Running
	case mesosapi.TaskFinished:
		return model.Finished
	case mesosapi.TaskFailed:
		return model.Failed
	case mesosapi.TaskKilled:
		return model.Killed
	case mesosapi.TaskLost:
		return model.Unreachable
	case mesosapi.TaskGoneByOperator:
		return model.Gone
	case mesosapi.TaskUnreachable:
		return model.Unreachable
	case mesosapi.TaskDropped:
		return model.Dropped
	default:
		return model.Unknown
	}
}

// goalSatisfiedBy reports whether reaching condition fulfils goal,
// letting the tracker decide whether a terminal status should trigger
// a relaunch (goal Running) or be left alone (goal Stopped or
// Decommissioned, spec.md §3). Goal Stopped and Decommissioned are
// NOT interchangeable once satisfied: a terminal status on a Stopped
// goal retains the instance record (see statusUpdateOp.apply), while
// Decommissioned expunges it outright.
func goalSatisfiedBy(goal model.Goal, condition model.Condition) bool {
	switch goal {
	case model.GoalStopped, model.GoalDecommissioned:
		return condition.Terminal() || condition == model.Killing
	default:
		return condition == model.Running
	}
}
