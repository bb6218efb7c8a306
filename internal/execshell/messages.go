package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
	fallbackUnknownValueLabelConstant       = "unknown"
	failureDetailTemplateConstant           = " (exit code %d%s)"
)

const (
	gitCloneSubcommandNameConstant    = "clone"
	gitLSRemoteSubcommandNameConstant = "ls-remote"
	gitCheckoutSubcommandNameConstant = "checkout"
	gitConfigSubcommandNameConstant   = "config"
	gitStatusSubcommandNameConstant   = "status"
	gitRevParseSubcommandNameConstant = "rev-parse"
	gitRevListSubcommandNameConstant  = "rev-list"
	gitPushSubcommandNameConstant     = "push"
	gitCreateBranchFlagConstant       = "-b"
	gitHeadsFlagConstant              = "--heads"
	gitCountFlagConstant              = "--count"
	githubPullRequestSubcommandName   = "pr"
	githubCreateSubcommandName        = "create"
	githubViewSubcommandName          = "view"
	githubHeadFlagConstant            = "--head"
	githubRepoFlagConstant            = "--repo"
	shellScriptArgumentIndexConstant  = 1
	flagPrefixConstant                = "-"
)

// stageTemplates holds the messages of one command family. Templates receive the subject and
// location, followed by the failure detail for the failure stages.
type stageTemplates struct {
	started          string
	succeeded        string
	failed           string
	executionFailure string
}

var (
	gitCloneTemplates = stageTemplates{
		started:          "Cloning %s into %s",
		succeeded:        "Cloned %s into %s",
		failed:           "Failed to clone %s into %s%s",
		executionFailure: "Unable to clone %s into %s: %s",
	}
	gitLSRemoteHeadsTemplates = stageTemplates{
		started:          "Checking remote branch %s from %s",
		succeeded:        "Checked remote branch %s from %s",
		failed:           "Failed to check remote branch %s from %s%s",
		executionFailure: "Unable to check remote branch %s from %s: %s",
	}
	gitCreateBranchTemplates = stageTemplates{
		started:          "Creating branch %s in %s",
		succeeded:        "Created branch %s in %s",
		failed:           "Failed to create branch %s in %s%s",
		executionFailure: "Unable to create branch %s in %s: %s",
	}
	gitConfigTemplates = stageTemplates{
		started:          "Setting %s in %s",
		succeeded:        "Set %s in %s",
		failed:           "Failed to set %s in %s%s",
		executionFailure: "Unable to set %s in %s: %s",
	}
	gitStatusTemplates = stageTemplates{
		started:          "Reviewing working tree status%s in %s",
		succeeded:        "Collected working tree status%s for %s",
		failed:           "Failed to review working tree status%s in %s%s",
		executionFailure: "Unable to review working tree status%s in %s: %s",
	}
	gitRevisionTemplates = stageTemplates{
		started:          "Resolving %s in %s",
		succeeded:        "Resolved %s in %s",
		failed:           "Failed to resolve %s in %s%s",
		executionFailure: "Unable to resolve %s in %s: %s",
	}
	gitCommitCountTemplates = stageTemplates{
		started:          "Counting commits in %s within %s",
		succeeded:        "Counted commits in %s within %s",
		failed:           "Failed to count commits in %s within %s%s",
		executionFailure: "Unable to count commits in %s within %s: %s",
	}
	gitPushTemplates = stageTemplates{
		started:          "Pushing %s from %s",
		succeeded:        "Pushed %s from %s",
		failed:           "Failed to push %s from %s%s",
		executionFailure: "Unable to push %s from %s: %s",
	}
	githubPullRequestCreateTemplates = stageTemplates{
		started:          "Opening pull request for %s from %s",
		succeeded:        "Opened pull request for %s from %s",
		failed:           "Failed to open pull request for %s from %s%s",
		executionFailure: "Unable to open pull request for %s from %s: %s",
	}
	githubPullRequestViewTemplates = stageTemplates{
		started:          "Retrieving pull request %s from %s",
		succeeded:        "Retrieved pull request %s from %s",
		failed:           "Failed to retrieve pull request %s from %s%s",
		executionFailure: "Unable to retrieve pull request %s from %s: %s",
	}
	shellScriptTemplates = stageTemplates{
		started:          "Running script %s in %s",
		succeeded:        "Script %s finished in %s",
		failed:           "Script %s failed in %s%s",
		executionFailure: "Unable to run script %s in %s: %s",
	}
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	switch command.Name {
	case CommandGit:
		return formatter.describeGitMessage(command, result, failure, stage)
	case CommandGitHub:
		return formatter.describeGitHubMessage(command, result, failure, stage)
	case CommandShell:
		return formatter.describeShellMessage(command, result, failure, stage)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	if len(arguments) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	workingDirectory := formatter.describeWorkingDirectory(command)
	switch strings.TrimSpace(arguments[0]) {
	case gitCloneSubcommandNameConstant:
		nonFlagArguments := formatter.nonFlagArguments(arguments[1:])
		source := formatter.ensureValue(formatter.argumentAtIndex(nonFlagArguments, 0))
		destination := formatter.ensureValue(formatter.argumentAtIndex(nonFlagArguments, 1))
		return formatter.render(gitCloneTemplates, stage, result, failure, source, destination)
	case gitLSRemoteSubcommandNameConstant:
		if !containsArgument(arguments, gitHeadsFlagConstant) {
			return formatter.buildGenericMessage(command, result, failure, stage)
		}
		nonFlagArguments := formatter.nonFlagArguments(arguments[1:])
		branchName := formatter.ensureValue(formatter.argumentAtIndex(nonFlagArguments, 1))
		remoteName := formatter.ensureValue(formatter.argumentAtIndex(nonFlagArguments, 0))
		return formatter.render(gitLSRemoteHeadsTemplates, stage, result, failure, branchName, remoteName)
	case gitCheckoutSubcommandNameConstant:
		if !containsArgument(arguments, gitCreateBranchFlagConstant) {
			return formatter.buildGenericMessage(command, result, failure, stage)
		}
		branchName := formatter.ensureValue(findFlagValue(arguments, gitCreateBranchFlagConstant))
		return formatter.render(gitCreateBranchTemplates, stage, result, failure, branchName, workingDirectory)
	case gitConfigSubcommandNameConstant:
		settingName := formatter.ensureValue(formatter.argumentAtIndex(formatter.nonFlagArguments(arguments[1:]), 0))
		return formatter.render(gitConfigTemplates, stage, result, failure, settingName, workingDirectory)
	case gitStatusSubcommandNameConstant:
		return formatter.render(gitStatusTemplates, stage, result, failure, emptyStringConstant, workingDirectory)
	case gitRevParseSubcommandNameConstant:
		revision := formatter.ensureValue(formatter.argumentAtIndex(formatter.nonFlagArguments(arguments[1:]), 0))
		return formatter.render(gitRevisionTemplates, stage, result, failure, revision, workingDirectory)
	case gitRevListSubcommandNameConstant:
		if !containsArgument(arguments, gitCountFlagConstant) {
			return formatter.buildGenericMessage(command, result, failure, stage)
		}
		revisionRange := formatter.ensureValue(formatter.argumentAtIndex(formatter.nonFlagArguments(arguments[1:]), 0))
		return formatter.render(gitCommitCountTemplates, stage, result, failure, revisionRange, workingDirectory)
	case gitPushSubcommandNameConstant:
		references := strings.Join(formatter.nonFlagArguments(arguments[1:]), commandArgumentsJoinSeparatorConstant)
		return formatter.render(gitPushTemplates, stage, result, failure, formatter.ensureValue(references), workingDirectory)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitHubMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	if len(arguments) < 2 || strings.TrimSpace(arguments[0]) != githubPullRequestSubcommandName {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	repository := findFlagValue(arguments, githubRepoFlagConstant)
	if len(repository) == 0 {
		repository = formatter.describeWorkingDirectory(command)
	}

	switch strings.TrimSpace(arguments[1]) {
	case githubCreateSubcommandName:
		headBranch := formatter.ensureValue(findFlagValue(arguments, githubHeadFlagConstant))
		return formatter.render(githubPullRequestCreateTemplates, stage, result, failure, headBranch, repository)
	case githubViewSubcommandName:
		reference := formatter.ensureValue(formatter.argumentAtIndex(arguments, 2))
		return formatter.render(githubPullRequestViewTemplates, stage, result, failure, reference, repository)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeShellMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	script := formatter.ensureValue(strings.TrimSpace(formatter.argumentAtIndex(command.Details.Arguments, shellScriptArgumentIndexConstant)))
	return formatter.render(shellScriptTemplates, stage, result, failure, script, formatter.describeWorkingDirectory(command))
}

func (formatter CommandMessageFormatter) render(templates stageTemplates, stage messageStage, result ExecutionResult, failure error, subject string, location string) string {
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(templates.started, subject, location)
	case messageStageSuccess:
		return fmt.Sprintf(templates.succeeded, subject, location)
	case messageStageFailure:
		return fmt.Sprintf(templates.failed, subject, location, fmt.Sprintf(failureDetailTemplateConstant, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError)))
	case messageStageExecutionFailure:
		return fmt.Sprintf(templates.executionFailure, subject, location, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	workingDirectorySuffix := formatter.formatWorkingDirectorySuffix(command)
	return fmt.Sprintf(commandLabelTemplateConstant, describeCommand(command), workingDirectorySuffix)
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func (formatter CommandMessageFormatter) argumentAtIndex(arguments []string, index int) string {
	if index < 0 || index >= len(arguments) {
		return emptyStringConstant
	}
	return arguments[index]
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmedValue
}

func (formatter CommandMessageFormatter) nonFlagArguments(arguments []string) []string {
	nonFlagArguments := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		trimmedArgument := strings.TrimSpace(argument)
		if len(trimmedArgument) == 0 || strings.HasPrefix(trimmedArgument, flagPrefixConstant) {
			continue
		}
		nonFlagArguments = append(nonFlagArguments, trimmedArgument)
	}
	return nonFlagArguments
}

func containsArgument(arguments []string, value string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == value {
			return true
		}
	}
	return false
}

func findFlagValue(arguments []string, flag string) string {
	for argumentIndex := 0; argumentIndex < len(arguments)-1; argumentIndex++ {
		if strings.TrimSpace(arguments[argumentIndex]) == flag {
			return strings.TrimSpace(arguments[argumentIndex+1])
		}
	}
	return emptyStringConstant
}
