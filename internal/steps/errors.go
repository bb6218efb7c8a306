package steps

import (
	"fmt"
	"strings"
)

const (
	stepFailureTemplateConstant          = "step %d (%s) exited with code %d"
	stepExecutionFailureTemplateConstant = "step %d (%s) could not be executed: %v"
	uncommittedChangesTemplateConstant   = "step %d (%s) left uncommitted changes: %s"
	preflightErrorTemplateConstant       = "pre-flight could not be executed: %v"
	pathListSeparatorConstant            = ", "
)

// StepFailure reports a step script that exited non-zero or could not be executed.
// ExitCode is -1 when the script never produced an exit status.
type StepFailure struct {
	StepIndex int
	StepName  string
	ExitCode  int
	Cause     error
}

// Error describes the failed step.
func (failure StepFailure) Error() string {
	if failure.ExitCode < 0 && failure.Cause != nil {
		return fmt.Sprintf(stepExecutionFailureTemplateConstant, failure.StepIndex, failure.StepName, failure.Cause)
	}
	return fmt.Sprintf(stepFailureTemplateConstant, failure.StepIndex, failure.StepName, failure.ExitCode)
}

// Unwrap exposes the underlying cause.
func (failure StepFailure) Unwrap() error {
	return failure.Cause
}

// UncommittedChangesFailure reports a step that exited 0 but left the working tree dirty.
type UncommittedChangesFailure struct {
	StepIndex int
	StepName  string
	Paths     []string
}

// Error lists the uncommitted paths.
func (failure UncommittedChangesFailure) Error() string {
	return fmt.Sprintf(uncommittedChangesTemplateConstant, failure.StepIndex, failure.StepName, strings.Join(failure.Paths, pathListSeparatorConstant))
}

// PreflightError reports a pre-flight command that could not be executed at all.
// A pre-flight that runs and exits non-zero is a skip, not an error.
type PreflightError struct {
	Cause error
}

// Error describes the execution failure.
func (preflightError PreflightError) Error() string {
	return fmt.Sprintf(preflightErrorTemplateConstant, preflightError.Cause)
}

// Unwrap exposes the underlying cause.
func (preflightError PreflightError) Unwrap() error {
	return preflightError.Cause
}
