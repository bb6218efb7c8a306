package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/temirov/clu/internal/execshell"
)

const (
	gitCloneSubcommandConstant           = "clone"
	gitLSRemoteSubcommandConstant        = "ls-remote"
	gitCheckoutSubcommandConstant        = "checkout"
	gitConfigSubcommandConstant          = "config"
	gitStatusSubcommandConstant          = "status"
	gitRevParseSubcommandConstant        = "rev-parse"
	gitRevListSubcommandConstant         = "rev-list"
	gitPushSubcommandConstant            = "push"
	gitHeadsFlagConstant                 = "--heads"
	gitCreateBranchFlagConstant          = "-b"
	gitTrackFlagConstant                 = "--track"
	gitPorcelainFlagConstant             = "--porcelain=v1"
	gitNullTerminatedFlagConstant        = "-z"
	gitUntrackedFilesFlagConstant        = "--untracked-files=all"
	gitCountFlagConstant                 = "--count"
	gitSetUpstreamFlagConstant           = "--set-upstream"
	gitHeadReferenceConstant             = "HEAD"
	gitPushDefaultKeyConstant            = "push.default"
	gitPushDefaultValueConstant          = "current"
	branchReferencePrefixConstant        = "refs/heads/"
	revisionRangeTemplateConstant        = "%s..%s"
	remoteBranchTemplateConstant         = "%s/%s"
	statusEntrySeparatorConstant         = "\x00"
	statusEntryPrefixLengthConstant      = 3
	renamedStatusCodeConstant            = 'R'
	copiedStatusCodeConstant             = 'C'
	executorNotConfiguredMessageConstant = "git executor not configured"
	gitOperationErrorTemplateConstant    = "git %s failed: %v"
	invalidCommitCountTemplateConstant   = "unexpected commit count %q"
	requiredArgumentTemplateConstant     = "%s requires %s"
)

// OriginRemoteNameConstant names the remote created by clone.
const OriginRemoteNameConstant = "origin"

// ErrGitExecutorNotConfigured indicates the manager was constructed without an executor.
var ErrGitExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)

// GitExecutor exposes the git invocation used by RepositoryManager.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// OutputSinks receive the raw output of every git command a manager runs.
type OutputSinks struct {
	StandardOutput io.Writer
	StandardError  io.Writer
}

// OperationError reports a failed git operation.
type OperationError struct {
	Operation string
	Cause     error
}

// Error describes the failed operation.
func (operationError OperationError) Error() string {
	return fmt.Sprintf(gitOperationErrorTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// RepositoryManager performs git operations on behalf of a migration workspace.
type RepositoryManager struct {
	executor GitExecutor
	sinks    OutputSinks
}

// NewRepositoryManager constructs a manager that runs git through the executor.
func NewRepositoryManager(executor GitExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// WithOutput returns a manager that copies command output into the provided sinks.
func (manager *RepositoryManager) WithOutput(sinks OutputSinks) *RepositoryManager {
	return &RepositoryManager{executor: manager.executor, sinks: sinks}
}

// Clone clones the remote repository into the destination directory.
func (manager *RepositoryManager) Clone(executionContext context.Context, remote string, destination string) error {
	if len(strings.TrimSpace(remote)) == 0 || len(strings.TrimSpace(destination)) == 0 {
		return OperationError{Operation: gitCloneSubcommandConstant, Cause: fmt.Errorf(requiredArgumentTemplateConstant, gitCloneSubcommandConstant, "remote and destination")}
	}
	_, cloneError := manager.run(executionContext, gitCloneSubcommandConstant, "", gitCloneSubcommandConstant, remote, destination)
	return cloneError
}

// RemoteBranchExists reports whether origin already carries the branch.
func (manager *RepositoryManager) RemoteBranchExists(executionContext context.Context, repositoryPath string, branchName string) (bool, error) {
	result, lookupError := manager.run(executionContext, gitLSRemoteSubcommandConstant, repositoryPath, gitLSRemoteSubcommandConstant, gitHeadsFlagConstant, OriginRemoteNameConstant, branchReferencePrefixConstant+branchName)
	if lookupError != nil {
		return false, lookupError
	}
	return len(strings.TrimSpace(result.StandardOutput)) > 0, nil
}

// CreateBranch creates and checks out a new local branch at HEAD.
func (manager *RepositoryManager) CreateBranch(executionContext context.Context, repositoryPath string, branchName string) error {
	_, checkoutError := manager.run(executionContext, gitCheckoutSubcommandConstant, repositoryPath, gitCheckoutSubcommandConstant, gitCreateBranchFlagConstant, branchName)
	return checkoutError
}

// CheckoutRemoteBranch creates a local branch tracking the origin branch of the same name and checks it out.
func (manager *RepositoryManager) CheckoutRemoteBranch(executionContext context.Context, repositoryPath string, branchName string) error {
	remoteBranch := fmt.Sprintf(remoteBranchTemplateConstant, OriginRemoteNameConstant, branchName)
	_, checkoutError := manager.run(executionContext, gitCheckoutSubcommandConstant, repositoryPath, gitCheckoutSubcommandConstant, gitTrackFlagConstant, gitCreateBranchFlagConstant, branchName, remoteBranch)
	return checkoutError
}

// ConfigurePushDefault makes plain pushes target the branch of the same name.
func (manager *RepositoryManager) ConfigurePushDefault(executionContext context.Context, repositoryPath string) error {
	_, configError := manager.run(executionContext, gitConfigSubcommandConstant, repositoryPath, gitConfigSubcommandConstant, gitPushDefaultKeyConstant, gitPushDefaultValueConstant)
	return configError
}

// HeadCommit resolves the commit currently checked out.
func (manager *RepositoryManager) HeadCommit(executionContext context.Context, repositoryPath string) (string, error) {
	result, revParseError := manager.run(executionContext, gitRevParseSubcommandConstant, repositoryPath, gitRevParseSubcommandConstant, gitHeadReferenceConstant)
	if revParseError != nil {
		return "", revParseError
	}
	return strings.TrimSpace(result.StandardOutput), nil
}

// UncommittedPaths lists modified, added, deleted, and untracked paths in the working tree.
func (manager *RepositoryManager) UncommittedPaths(executionContext context.Context, repositoryPath string) ([]string, error) {
	result, statusError := manager.run(executionContext, gitStatusSubcommandConstant, repositoryPath, gitStatusSubcommandConstant, gitPorcelainFlagConstant, gitNullTerminatedFlagConstant, gitUntrackedFilesFlagConstant)
	if statusError != nil {
		return nil, statusError
	}
	return parsePorcelainPaths(result.StandardOutput), nil
}

// CommitCount counts the commits reachable from HEAD but not from the base commit.
func (manager *RepositoryManager) CommitCount(executionContext context.Context, repositoryPath string, baseCommit string) (int, error) {
	revisionRange := fmt.Sprintf(revisionRangeTemplateConstant, baseCommit, gitHeadReferenceConstant)
	result, countError := manager.run(executionContext, gitRevListSubcommandConstant, repositoryPath, gitRevListSubcommandConstant, gitCountFlagConstant, revisionRange)
	if countError != nil {
		return 0, countError
	}
	trimmedOutput := strings.TrimSpace(result.StandardOutput)
	commitCount, parseError := strconv.Atoi(trimmedOutput)
	if parseError != nil {
		return 0, OperationError{Operation: gitRevListSubcommandConstant, Cause: fmt.Errorf(invalidCommitCountTemplateConstant, trimmedOutput)}
	}
	return commitCount, nil
}

// PushBranch pushes the branch to origin and records it as upstream.
func (manager *RepositoryManager) PushBranch(executionContext context.Context, repositoryPath string, branchName string) error {
	_, pushError := manager.run(executionContext, gitPushSubcommandConstant, repositoryPath, gitPushSubcommandConstant, gitSetUpstreamFlagConstant, OriginRemoteNameConstant, branchName)
	return pushError
}

func (manager *RepositoryManager) run(executionContext context.Context, operation string, workingDirectory string, arguments ...string) (execshell.ExecutionResult, error) {
	result, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:          arguments,
		WorkingDirectory:   workingDirectory,
		StandardOutputSink: manager.sinks.StandardOutput,
		StandardErrorSink:  manager.sinks.StandardError,
	})
	if executionError != nil {
		return execshell.ExecutionResult{}, OperationError{Operation: operation, Cause: executionError}
	}
	return result, nil
}

func parsePorcelainPaths(output string) []string {
	entries := strings.Split(output, statusEntrySeparatorConstant)
	paths := make([]string, 0, len(entries))
	for entryIndex := 0; entryIndex < len(entries); entryIndex++ {
		entry := entries[entryIndex]
		if len(entry) < statusEntryPrefixLengthConstant+1 {
			continue
		}
		paths = append(paths, entry[statusEntryPrefixLengthConstant:])
		if entry[0] == renamedStatusCodeConstant || entry[0] == copiedStatusCodeConstant {
			entryIndex++
		}
	}
	return paths
}
