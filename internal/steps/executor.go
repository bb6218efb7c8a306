package steps

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/temirov/clu/internal/definition"
	"github.com/temirov/clu/internal/execshell"
	"github.com/temirov/clu/internal/lifecycle"
	"github.com/temirov/clu/internal/workspace"
)

const (
	scriptExecutorNotConfiguredMessageConstant = "step executor script runner not configured"
	targetNameEnvironmentKeyConstant           = "CLU_TARGET_NAME"
	repositoryEnvironmentKeyConstant           = "CLU_REPOSITORY"
	workspaceEnvironmentKeyConstant            = "CLU_WORKSPACE"
	branchNameEnvironmentKeyConstant           = "CLU_BRANCH_NAME"
	treeInspectionFailureTemplateConstant      = "inspecting working tree after step %q failed: %v"
	preflightSkippedLogMessageConstant         = "pre-flight requested skip"
	stepStartedLogMessageConstant              = "step started"
	stepFailedLogMessageConstant               = "step failed"
	stepsCompletedLogMessageConstant           = "all steps completed"
	uncommittedChangesLogMessageConstant       = "step left uncommitted changes"
	logFieldTargetConstant                     = "target"
	logFieldStepIndexConstant                  = "step_index"
	logFieldStepNameConstant                   = "step_name"
	logFieldExitCodeConstant                   = "exit_code"
	logFieldPathsConstant                      = "paths"
	unknownExitCodeConstant                    = -1
)

// ErrScriptExecutorNotConfigured indicates the executor was constructed without a script runner.
var ErrScriptExecutorNotConfigured = errors.New(scriptExecutorNotConfiguredMessageConstant)

// ScriptExecutor runs a command line through a shell.
type ScriptExecutor interface {
	ExecuteScript(executionContext context.Context, commandLine string, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Request describes the scripts to run for one target.
type Request struct {
	Workspace *workspace.Workspace
	Target    definition.Target
	Checkout  definition.Checkout
	Steps     []definition.Step
	// Machine must be in the cloned state.
	Machine *lifecycle.Machine
}

// Executor runs pre-flight checks and steps.
type Executor struct {
	logger        *zap.Logger
	scripts       ScriptExecutor
	baseDirectory string
}

// NewExecutor constructs an executor. Relative script paths are resolved against baseDirectory.
func NewExecutor(logger *zap.Logger, scripts ScriptExecutor, baseDirectory string) (*Executor, error) {
	if scripts == nil {
		return nil, ErrScriptExecutorNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{logger: logger, scripts: scripts, baseDirectory: baseDirectory}, nil
}

// Run executes the pre-flight check and then every step in order, advancing the request's machine.
// It returns nil when the target was skipped or all steps completed; the machine state tells them apart.
// Any other outcome leaves the machine in a terminal failure state and returns the matching error.
func (executor *Executor) Run(executionContext context.Context, request Request) error {
	targetLogger := executor.logger.With(zap.String(logFieldTargetConstant, request.Workspace.TargetName))
	details := executor.commandDetails(request)

	_, preflightError := executor.scripts.ExecuteScript(executionContext, executor.ResolveCommand(request.Checkout.PreflightCommand), details)
	if preflightError != nil {
		exitCode, exited := execshell.ExitCodeOf(preflightError)
		if !exited {
			failure := PreflightError{Cause: preflightError}
			return errors.Join(failure, request.Machine.FailWorkspace(failure.Error()))
		}
		targetLogger.Info(preflightSkippedLogMessageConstant, zap.Int(logFieldExitCodeConstant, exitCode))
		return request.Machine.Skip(exitCode)
	}

	for stepIndex, step := range request.Steps {
		if transitionError := request.Machine.StartStep(stepIndex); transitionError != nil {
			return transitionError
		}
		stepLogger := targetLogger.With(zap.Int(logFieldStepIndexConstant, stepIndex), zap.String(logFieldStepNameConstant, step.Name))
		stepLogger.Info(stepStartedLogMessageConstant)

		if stepError := executor.runStep(executionContext, request, stepIndex, step, details); stepError != nil {
			stepLogger.Warn(stepFailedLogMessageConstant, zap.Error(stepError))
			return stepError
		}
	}

	targetLogger.Info(stepsCompletedLogMessageConstant)
	return request.Machine.CompleteSteps()
}

func (executor *Executor) runStep(executionContext context.Context, request Request, stepIndex int, step definition.Step, details execshell.CommandDetails) error {
	_, scriptError := executor.scripts.ExecuteScript(executionContext, executor.ResolveCommand(step.Script), details)
	if scriptError != nil {
		exitCode, exited := execshell.ExitCodeOf(scriptError)
		failure := StepFailure{StepIndex: stepIndex, StepName: step.Name, ExitCode: exitCode, Cause: scriptError}
		message := ""
		if !exited {
			failure.ExitCode = unknownExitCodeConstant
			message = failure.Error()
		}
		return errors.Join(failure, request.Machine.FailStep(step.Name, failure.ExitCode, message))
	}

	uncommittedPaths, inspectionError := request.Workspace.Repository.UncommittedPaths(executionContext, request.Workspace.RepositoryPath)
	if inspectionError != nil {
		failure := StepFailure{StepIndex: stepIndex, StepName: step.Name, ExitCode: unknownExitCodeConstant, Cause: inspectionError}
		message := fmt.Sprintf(treeInspectionFailureTemplateConstant, step.Name, inspectionError)
		return errors.Join(failure, request.Machine.FailStep(step.Name, failure.ExitCode, message))
	}
	if len(uncommittedPaths) > 0 {
		executor.logger.Warn(uncommittedChangesLogMessageConstant,
			zap.String(logFieldTargetConstant, request.Workspace.TargetName),
			zap.Int(logFieldStepIndexConstant, stepIndex),
			zap.Strings(logFieldPathsConstant, uncommittedPaths),
		)
		failure := UncommittedChangesFailure{StepIndex: stepIndex, StepName: step.Name, Paths: uncommittedPaths}
		return errors.Join(failure, request.Machine.FailUncommitted(step.Name, uncommittedPaths))
	}
	return nil
}

// ResolveCommand makes a relative script path in the first word of the command line absolute.
// Words without a path separator are left for the shell to look up on PATH.
func (executor *Executor) ResolveCommand(commandLine string) string {
	trimmedCommand := strings.TrimLeftFunc(commandLine, unicode.IsSpace)
	if len(executor.baseDirectory) == 0 || len(trimmedCommand) == 0 {
		return commandLine
	}
	firstWord, remainder := trimmedCommand, ""
	if separatorIndex := strings.IndexFunc(trimmedCommand, unicode.IsSpace); separatorIndex >= 0 {
		firstWord, remainder = trimmedCommand[:separatorIndex], trimmedCommand[separatorIndex:]
	}
	if filepath.IsAbs(firstWord) || !strings.ContainsRune(firstWord, filepath.Separator) {
		return commandLine
	}
	return filepath.Join(executor.baseDirectory, firstWord) + remainder
}

func (executor *Executor) commandDetails(request Request) execshell.CommandDetails {
	environment := make(map[string]string, len(request.Target.Environment)+4)
	for environmentKey, environmentValue := range request.Target.Environment {
		environment[environmentKey] = environmentValue
	}
	environment[targetNameEnvironmentKeyConstant] = request.Workspace.TargetName
	environment[repositoryEnvironmentKeyConstant] = request.Target.Repository
	environment[workspaceEnvironmentKeyConstant] = request.Workspace.Root
	environment[branchNameEnvironmentKeyConstant] = request.Checkout.BranchName

	return execshell.CommandDetails{
		WorkingDirectory:     request.Workspace.RepositoryPath,
		EnvironmentVariables: environment,
		StandardOutputSink:   request.Workspace.StandardOutput,
		StandardErrorSink:    request.Workspace.StandardError,
	}
}
