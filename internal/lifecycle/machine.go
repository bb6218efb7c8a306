package lifecycle

import (
	"fmt"
	"time"
)

const (
	preflightSkippedNoteTemplateConstant = "pre-flight exited with code %d"
	stepFailedMessageTemplateConstant    = "step %q exited with code %d"
	uncommittedMessageTemplateConstant   = "step %q left %d uncommitted path(s)"
	noStepRunningIndexConstant           = -1
)

// Clock abstracts time acquisition for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time source.
type SystemClock struct{}

// Now returns the current UTC time truncated to seconds.
func (SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Machine advances one target through its lifecycle and accumulates the result.
// A Machine is owned by a single goroutine.
type Machine struct {
	clock     Clock
	state     State
	stepIndex int
	result    TargetResult
}

// NewMachine starts a pending lifecycle stamped with the clock's current time.
func NewMachine(clock Clock) *Machine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Machine{
		clock:     clock,
		state:     StatePending,
		stepIndex: noStepRunningIndexConstant,
		result:    TargetResult{Status: StatePending, StartedAt: clock.Now()},
	}
}

// State returns the current lifecycle state.
func (machine *Machine) State() State {
	return machine.state
}

// StepIndex returns the index of the running or last started step, or -1 before any step started.
func (machine *Machine) StepIndex() int {
	return machine.stepIndex
}

// Result returns a copy of the accumulated result.
func (machine *Machine) Result() TargetResult {
	return machine.result.Clone()
}

// MarkCloned records a prepared workspace.
func (machine *Machine) MarkCloned() error {
	return machine.transition(StateCloned)
}

// Skip records a pre-flight check that exited with a non-zero code.
func (machine *Machine) Skip(exitCode int) error {
	if transitionError := machine.transition(StatePreflightSkipped); transitionError != nil {
		return transitionError
	}
	machine.result.Note = fmt.Sprintf(preflightSkippedNoteTemplateConstant, exitCode)
	return nil
}

// StartStep enters Running for the step index. Steps must start in order beginning at zero.
func (machine *Machine) StartStep(index int) error {
	expectedIndex := 0
	if machine.state == StateRunning {
		expectedIndex = machine.stepIndex + 1
	}
	if index != expectedIndex || !IsValidTransition(machine.state, StateRunning) {
		return InvalidTransitionError{From: machine.state, To: StateRunning, StepIndex: index}
	}
	machine.state = StateRunning
	machine.result.Status = StateRunning
	machine.stepIndex = index
	return nil
}

// FailStep records the running step exiting with a non-zero code.
func (machine *Machine) FailStep(stepName string, exitCode int, message string) error {
	if transitionError := machine.transition(StateStepFailed); transitionError != nil {
		return transitionError
	}
	if len(message) == 0 {
		message = fmt.Sprintf(stepFailedMessageTemplateConstant, stepName, exitCode)
	}
	machine.result.Failure = &FailureDetail{
		Kind:      FailureKindStep,
		Message:   message,
		StepIndex: intPointer(machine.stepIndex),
		StepName:  stepName,
		ExitCode:  intPointer(exitCode),
	}
	return nil
}

// FailUncommitted records the running step leaving uncommitted paths behind.
func (machine *Machine) FailUncommitted(stepName string, paths []string) error {
	if transitionError := machine.transition(StateUncommittedChanges); transitionError != nil {
		return transitionError
	}
	machine.result.Failure = &FailureDetail{
		Kind:      FailureKindUncommittedChanges,
		Message:   fmt.Sprintf(uncommittedMessageTemplateConstant, stepName, len(paths)),
		StepIndex: intPointer(machine.stepIndex),
		StepName:  stepName,
		Paths:     append([]string(nil), paths...),
	}
	return nil
}

// CompleteSteps records that every step finished with a clean tree.
func (machine *Machine) CompleteSteps() error {
	return machine.transition(StateStepsComplete)
}

// StartPublishing records that publishing began after every step completed.
func (machine *Machine) StartPublishing() error {
	if machine.state != StateStepsComplete {
		return InvalidTransitionError{From: machine.state, To: StatePublishing, StepIndex: machine.stepIndex}
	}
	return machine.transition(StatePublishing)
}

// ResumePublishing records that publishing began on a cloned workspace whose branch an earlier run already pushed.
func (machine *Machine) ResumePublishing() error {
	if machine.state != StateCloned {
		return InvalidTransitionError{From: machine.state, To: StatePublishing, StepIndex: machine.stepIndex}
	}
	return machine.transition(StatePublishing)
}

// Publish records the review reference of a successful publish.
func (machine *Machine) Publish(reviewReference string) error {
	if transitionError := machine.transition(StatePublished); transitionError != nil {
		return transitionError
	}
	machine.result.ReviewReference = reviewReference
	return nil
}

// SkipPublish records that the run options held back the publish stage.
func (machine *Machine) SkipPublish(stage PublishStage, note string) error {
	if transitionError := machine.transition(StatePublishSkipped); transitionError != nil {
		return transitionError
	}
	machine.result.SkippedStage = stage
	machine.result.Note = note
	return nil
}

// FailPublish records a publish failure at the stage.
func (machine *Machine) FailPublish(stage PublishStage, message string) error {
	if transitionError := machine.transition(StatePublishFailed); transitionError != nil {
		return transitionError
	}
	machine.result.Failure = &FailureDetail{Kind: FailureKindPublish, Message: message, Stage: stage}
	return nil
}

// FailWorkspace records a workspace that could not be prepared or used.
func (machine *Machine) FailWorkspace(message string) error {
	if transitionError := machine.transition(StateWorkspaceFailed); transitionError != nil {
		return transitionError
	}
	machine.result.Failure = &FailureDetail{Kind: FailureKindWorkspace, Message: message}
	return nil
}

func (machine *Machine) transition(target State) error {
	if target == StateRunning || !IsValidTransition(machine.state, target) {
		return InvalidTransitionError{From: machine.state, To: target, StepIndex: machine.stepIndex}
	}
	machine.state = target
	machine.result.Status = target
	if target.IsTerminal() {
		machine.result.FinishedAt = machine.clock.Now()
	}
	return nil
}
