// Package lifecycle defines the per-target migration state machine and the result it produces.
package lifecycle

import "fmt"

// State labels the lifecycle position of one migration target.
type State string

const (
	// StatePending indicates no work has started for the target.
	StatePending State = "pending"
	// StateCloned indicates the workspace was prepared and the migration branch checked out.
	StateCloned State = "cloned"
	// StatePreflightSkipped indicates the pre-flight check reported the migration is not needed.
	StatePreflightSkipped State = "preflight_skipped"
	// StateRunning indicates a step script is executing.
	StateRunning State = "running"
	// StateStepsComplete indicates every step finished with a clean working tree.
	StateStepsComplete State = "steps_complete"
	// StatePublishing indicates the branch is being pushed and the review requested.
	StatePublishing State = "publishing"
	// StatePublished indicates the review request exists.
	StatePublished State = "published"
	// StatePublishSkipped indicates the run options held back the push or the review request.
	StatePublishSkipped State = "publish_skipped"
	// StatePublishFailed indicates pushing or requesting the review failed.
	StatePublishFailed State = "publish_failed"
	// StateStepFailed indicates a step script exited non-zero.
	StateStepFailed State = "step_failed"
	// StateUncommittedChanges indicates a step exited zero but left the working tree dirty.
	StateUncommittedChanges State = "uncommitted_changes"
	// StateWorkspaceFailed indicates the workspace could not be prepared.
	StateWorkspaceFailed State = "workspace_failed"
)

// allowedTransitions defines the permitted lifecycle state changes.
var allowedTransitions = map[State]map[State]struct{}{
	StatePending: {
		StateCloned:          {},
		StateWorkspaceFailed: {},
	},
	StateCloned: {
		StatePreflightSkipped: {},
		StateRunning:          {},
		StatePublishing:       {},
		StateWorkspaceFailed:  {},
	},
	StateRunning: {
		StateRunning:            {},
		StateStepsComplete:      {},
		StateStepFailed:         {},
		StateUncommittedChanges: {},
	},
	StateStepsComplete: {
		StatePublishing: {},
	},
	StatePublishing: {
		StatePublished:      {},
		StatePublishSkipped: {},
		StatePublishFailed:  {},
	},
	StatePreflightSkipped:   {},
	StatePublished:          {},
	StatePublishSkipped:     {},
	StatePublishFailed:      {},
	StateStepFailed:         {},
	StateUncommittedChanges: {},
	StateWorkspaceFailed:    {},
}

// IsValidTransition reports whether the lifecycle allows the requested change.
func IsValidTransition(from State, to State) bool {
	allowed, known := allowedTransitions[from]
	if !known {
		return false
	}
	_, permitted := allowed[to]
	return permitted
}

// IsKnown reports whether the state belongs to the lifecycle.
func (state State) IsKnown() bool {
	_, known := allowedTransitions[state]
	return known
}

// IsTerminal reports whether no further transition leaves the state.
func (state State) IsTerminal() bool {
	allowed, known := allowedTransitions[state]
	return known && len(allowed) == 0
}

// IsSuccess reports whether the state is a non-failure terminal.
func (state State) IsSuccess() bool {
	switch state {
	case StatePublished, StatePreflightSkipped, StatePublishSkipped:
		return true
	default:
		return false
	}
}

// InvalidTransitionError reports a lifecycle change the state machine does not permit.
type InvalidTransitionError struct {
	From      State
	To        State
	StepIndex int
}

// Error describes the rejected transition.
func (transitionError InvalidTransitionError) Error() string {
	if transitionError.To == StateRunning {
		return fmt.Sprintf("invalid target state transition from %q to %q step %d", transitionError.From, transitionError.To, transitionError.StepIndex)
	}
	return fmt.Sprintf("invalid target state transition from %q to %q", transitionError.From, transitionError.To)
}
