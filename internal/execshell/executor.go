package execshell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

const (
	loggerNotConfiguredMessageConstant        = "shell executor logger not configured"
	commandRunnerNotConfiguredMessageConstant = "shell executor command runner not configured"
	commandFailedErrorTemplateConstant        = "%s exited with code %d"
	commandFailedWithStderrTemplateConstant   = "%s exited with code %d: %s"
	commandExecutionErrorTemplateConstant     = "%s could not be executed: %v"
	shellScriptFlagConstant                   = "-c"
	commandStartedLogMessageConstant          = "command started"
	commandCompletedLogMessageConstant        = "command completed"
	commandFailedLogMessageConstant           = "command failed"
	commandExecutionFailedLogMessageConstant  = "command execution failed"
	logFieldCommandNameConstant               = "command"
	logFieldArgumentsConstant                 = "arguments"
	logFieldWorkingDirectoryConstant          = "working_directory"
	logFieldExitCodeConstant                  = "exit_code"
	logFieldStandardErrorConstant             = "stderr"
	commandBannerTemplateConstant             = ">> Running %s\n"
)

// CommandName identifies an executable supported by the shell executor.
type CommandName string

// Supported executables.
const (
	CommandGit    CommandName = CommandName("git")
	CommandGitHub CommandName = CommandName("gh")
	CommandShell  CommandName = CommandName("sh")
)

// CommandDetails describes a single invocation of an executable.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
	// StandardOutputSink receives standard output bytes as the process produces them.
	StandardOutputSink io.Writer
	// StandardErrorSink receives standard error bytes as the process produces them.
	StandardErrorSink io.Writer
}

// ShellCommand pairs an executable with its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable outcome of a finished process.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner executes shell commands.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

var (
	// ErrLoggerNotConfigured indicates the executor was constructed without a logger.
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)
	// ErrCommandRunnerNotConfigured indicates the executor was constructed without a runner.
	ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)
)

// CommandFailedError reports a process that ran to completion with a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failed command.
func (failedError CommandFailedError) Error() string {
	commandLabel := describeCommand(failedError.Command)
	trimmedStandardError := strings.TrimSpace(failedError.Result.StandardError)
	if len(trimmedStandardError) == 0 {
		return fmt.Sprintf(commandFailedErrorTemplateConstant, commandLabel, failedError.Result.ExitCode)
	}
	return fmt.Sprintf(commandFailedWithStderrTemplateConstant, commandLabel, failedError.Result.ExitCode, trimmedStandardError)
}

// CommandExecutionError reports a process that could not be started or awaited.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the execution failure.
func (executionError CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionErrorTemplateConstant, describeCommand(executionError.Command), executionError.Cause)
}

// Unwrap exposes the underlying cause.
func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}

// ExitCodeOf extracts the exit code carried by a CommandFailedError.
func ExitCodeOf(err error) (int, bool) {
	var failedError CommandFailedError
	if errors.As(err, &failedError) {
		return failedError.Result.ExitCode, true
	}
	return 0, false
}

// ShellExecutor runs commands through a CommandRunner and reports lifecycle events.
type ShellExecutor struct {
	runner    CommandRunner
	observers []CommandEventObserver
}

// NewShellExecutor constructs a ShellExecutor that logs command lifecycle events.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner, humanReadableLogging bool) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	loggingObserver := newLoggingCommandEventObserver(logger, humanReadableLogging)
	return &ShellExecutor{runner: runner, observers: []CommandEventObserver{loggingObserver}}, nil
}

// Execute runs the command and converts non-zero exit codes into CommandFailedError.
// Commands carrying output sinks get a banner naming the command written to each sink first.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	for _, observer := range executor.observers {
		observer.CommandStarted(command)
	}
	writeCommandBanner(command)

	executionResult, runError := executor.runner.Run(executionContext, command)
	if runError != nil {
		for _, observer := range executor.observers {
			observer.CommandExecutionFailed(command, runError)
		}
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}

	for _, observer := range executor.observers {
		observer.CommandCompleted(command, executionResult)
	}

	if executionResult.ExitCode != 0 {
		return ExecutionResult{}, CommandFailedError{Command: command, Result: executionResult}
	}

	return executionResult, nil
}

// ExecuteGit runs git with the provided details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// ExecuteGitHubCLI runs the GitHub CLI with the provided details.
func (executor *ShellExecutor) ExecuteGitHubCLI(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGitHub, Details: details})
}

// ExecuteScript runs the command line through sh -c. Any arguments already present in details are discarded.
func (executor *ShellExecutor) ExecuteScript(executionContext context.Context, commandLine string, details CommandDetails) (ExecutionResult, error) {
	details.Arguments = []string{shellScriptFlagConstant, commandLine}
	return executor.Execute(executionContext, ShellCommand{Name: CommandShell, Details: details})
}

type loggingCommandEventObserver struct {
	logger               *zap.Logger
	formatter            CommandMessageFormatter
	humanReadableLogging bool
}

func newLoggingCommandEventObserver(logger *zap.Logger, humanReadableLogging bool) *loggingCommandEventObserver {
	return &loggingCommandEventObserver{logger: logger, humanReadableLogging: humanReadableLogging}
}

func (observer *loggingCommandEventObserver) CommandStarted(command ShellCommand) {
	if observer.humanReadableLogging {
		observer.logger.Debug(observer.formatter.BuildStartedMessage(command))
		return
	}
	observer.logger.Debug(commandStartedLogMessageConstant, observer.commandFields(command)...)
}

func (observer *loggingCommandEventObserver) CommandCompleted(command ShellCommand, result ExecutionResult) {
	if result.ExitCode == 0 {
		if observer.humanReadableLogging {
			observer.logger.Debug(observer.formatter.BuildSuccessMessage(command))
			return
		}
		observer.logger.Debug(commandCompletedLogMessageConstant, observer.commandFields(command)...)
		return
	}

	if observer.humanReadableLogging {
		observer.logger.Warn(observer.formatter.BuildFailureMessage(command, result))
		return
	}
	fields := append(observer.commandFields(command),
		zap.Int(logFieldExitCodeConstant, result.ExitCode),
		zap.String(logFieldStandardErrorConstant, strings.TrimSpace(result.StandardError)),
	)
	observer.logger.Warn(commandFailedLogMessageConstant, fields...)
}

func (observer *loggingCommandEventObserver) CommandExecutionFailed(command ShellCommand, failure error) {
	if observer.humanReadableLogging {
		observer.logger.Error(observer.formatter.BuildExecutionFailureMessage(command, failure))
		return
	}
	observer.logger.Error(commandExecutionFailedLogMessageConstant, append(observer.commandFields(command), zap.Error(failure))...)
}

func (observer *loggingCommandEventObserver) commandFields(command ShellCommand) []zap.Field {
	return []zap.Field{
		zap.String(logFieldCommandNameConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
	}
}

func writeCommandBanner(command ShellCommand) {
	banner := fmt.Sprintf(commandBannerTemplateConstant, describeCommandLine(command))
	for _, sink := range []io.Writer{command.Details.StandardOutputSink, command.Details.StandardErrorSink} {
		if sink != nil {
			_, _ = io.WriteString(sink, banner)
		}
	}
}

func describeCommandLine(command ShellCommand) string {
	if command.Name == CommandShell && len(command.Details.Arguments) == 2 && command.Details.Arguments[0] == shellScriptFlagConstant {
		return command.Details.Arguments[1]
	}
	return describeCommand(command)
}

func describeCommand(command ShellCommand) string {
	if len(command.Details.Arguments) == 0 {
		return string(command.Name)
	}
	return string(command.Name) + commandArgumentsJoinSeparatorConstant + strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant)
}
