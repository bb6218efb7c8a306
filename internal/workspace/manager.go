package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/temirov/clu/internal/definition"
	"github.com/temirov/clu/internal/gitrepo"
)

const (
	// RepositoryDirectoryNameConstant names the clone directory inside a workspace.
	RepositoryDirectoryNameConstant = "repo"
	// StandardOutputLogNameConstant names the standard output log inside a workspace.
	StandardOutputLogNameConstant = "stdout.log"
	// StandardErrorLogNameConstant names the standard error log inside a workspace.
	StandardErrorLogNameConstant = "stderr.log"

	workspaceDirectoryPermissionsConstant   = 0o755
	logFilePermissionsConstant              = 0o644
	logFileFlagsConstant                    = os.O_CREATE | os.O_TRUNC | os.O_WRONLY | os.O_APPEND
	repositoryManagerMissingMessageConstant = "workspace repository manager not configured"
	workDirectoryMissingMessageConstant     = "workspace work directory not configured"
	remoteBranchExistsTemplateConstant      = "branch %q already exists on the remote"
	remoteBranchMissingTemplateConstant     = "branch %q is missing on the remote"
	workspaceErrorTemplateConstant          = "workspace for %q failed during %s: %v"
	workspacePreparedLogMessageConstant     = "workspace prepared"
	workspaceFailedLogMessageConstant       = "workspace preparation failed"
	logFieldTargetConstant                  = "target"
	logFieldStageConstant                   = "stage"
	logFieldRepositoryPathConstant          = "repository_path"
	logFieldBaseCommitConstant              = "base_commit"
)

// Stage names the preparation step that failed.
type Stage string

// Preparation stages.
const (
	StageDirectory    Stage = "directory"
	StageLogs         Stage = "logs"
	StageClone        Stage = "clone"
	StageRemoteBranch Stage = "remote_branch"
	StageCheckout     Stage = "checkout"
)

var (
	// ErrRepositoryManagerNotConfigured indicates the manager was constructed without git access.
	ErrRepositoryManagerNotConfigured = errors.New(repositoryManagerMissingMessageConstant)
	// ErrWorkDirectoryNotConfigured indicates the manager was constructed without a work directory.
	ErrWorkDirectoryNotConfigured = errors.New(workDirectoryMissingMessageConstant)
)

// WorkspaceError reports a workspace that could not be prepared. It is terminal for its target only.
type WorkspaceError struct {
	TargetName string
	Stage      Stage
	Cause      error
}

// Error describes the failed preparation.
func (workspaceError WorkspaceError) Error() string {
	return fmt.Sprintf(workspaceErrorTemplateConstant, workspaceError.TargetName, workspaceError.Stage, workspaceError.Cause)
}

// Unwrap exposes the underlying cause.
func (workspaceError WorkspaceError) Unwrap() error {
	return workspaceError.Cause
}

// Workspace is the prepared working area of one target. It is owned by a single goroutine.
type Workspace struct {
	TargetName     string
	Name           string
	Root           string
	RepositoryPath string
	BranchName     string
	// BaseCommit is the commit the migration branch started from. It is empty for resumed workspaces.
	BaseCommit     string
	StandardOutput io.Writer
	StandardError  io.Writer
	// Repository runs git in this workspace with output appended to its logs.
	Repository *gitrepo.RepositoryManager

	logFiles []*os.File
}

// Close releases the workspace log handles.
func (workspace *Workspace) Close() error {
	var closeErrors []error
	for _, logFile := range workspace.logFiles {
		if closeError := logFile.Close(); closeError != nil {
			closeErrors = append(closeErrors, closeError)
		}
	}
	workspace.logFiles = nil
	return errors.Join(closeErrors...)
}

// Manager prepares workspaces under a shared work directory.
type Manager struct {
	logger        *zap.Logger
	workDirectory string
	repositories  *gitrepo.RepositoryManager
}

// NewManager constructs a workspace manager.
func NewManager(logger *zap.Logger, workDirectory string, repositories *gitrepo.RepositoryManager) (*Manager, error) {
	if repositories == nil {
		return nil, ErrRepositoryManagerNotConfigured
	}
	if len(workDirectory) == 0 {
		return nil, ErrWorkDirectoryNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger, workDirectory: workDirectory, repositories: repositories}, nil
}

// WorkDirectory returns the directory holding every workspace.
func (manager *Manager) WorkDirectory() string {
	return manager.workDirectory
}

// Prepare clones the target into a fresh workspace and checks out the migration branch.
// Any previous clone in the workspace is removed and the logs are truncated.
func (manager *Manager) Prepare(executionContext context.Context, targetName string, target definition.Target, branchName string) (*Workspace, error) {
	return manager.prepare(executionContext, targetName, target, branchName, manager.checkout)
}

// Resume clones the target into a fresh workspace and checks out the migration branch an
// earlier run already pushed. It fails when the remote does not carry the branch.
func (manager *Manager) Resume(executionContext context.Context, targetName string, target definition.Target, branchName string) (*Workspace, error) {
	return manager.prepare(executionContext, targetName, target, branchName, manager.checkoutPushed)
}

type checkoutFunc func(executionContext context.Context, workspace *Workspace, remote string) (Stage, error)

func (manager *Manager) prepare(executionContext context.Context, targetName string, target definition.Target, branchName string, checkout checkoutFunc) (*Workspace, error) {
	workspaceName := definition.WorkspaceName(targetName)
	root := filepath.Join(manager.workDirectory, workspaceName)
	repositoryPath := filepath.Join(root, RepositoryDirectoryNameConstant)
	targetLogger := manager.logger.With(zap.String(logFieldTargetConstant, targetName))

	failure := func(stage Stage, cause error) error {
		targetLogger.Warn(workspaceFailedLogMessageConstant, zap.String(logFieldStageConstant, string(stage)), zap.Error(cause))
		return WorkspaceError{TargetName: targetName, Stage: stage, Cause: cause}
	}

	if mkdirError := os.MkdirAll(root, workspaceDirectoryPermissionsConstant); mkdirError != nil {
		return nil, failure(StageDirectory, mkdirError)
	}
	if removeError := os.RemoveAll(repositoryPath); removeError != nil {
		return nil, failure(StageDirectory, removeError)
	}

	standardOutputLog, outputLogError := os.OpenFile(filepath.Join(root, StandardOutputLogNameConstant), logFileFlagsConstant, logFilePermissionsConstant)
	if outputLogError != nil {
		return nil, failure(StageLogs, outputLogError)
	}
	standardErrorLog, errorLogError := os.OpenFile(filepath.Join(root, StandardErrorLogNameConstant), logFileFlagsConstant, logFilePermissionsConstant)
	if errorLogError != nil {
		_ = standardOutputLog.Close()
		return nil, failure(StageLogs, errorLogError)
	}

	workspace := &Workspace{
		TargetName:     targetName,
		Name:           workspaceName,
		Root:           root,
		RepositoryPath: repositoryPath,
		BranchName:     branchName,
		StandardOutput: standardOutputLog,
		StandardError:  standardErrorLog,
		Repository:     manager.repositories.WithOutput(gitrepo.OutputSinks{StandardOutput: standardOutputLog, StandardError: standardErrorLog}),
		logFiles:       []*os.File{standardOutputLog, standardErrorLog},
	}

	if stage, prepareError := checkout(executionContext, workspace, target.Repository); prepareError != nil {
		_ = workspace.Close()
		return nil, failure(stage, prepareError)
	}

	targetLogger.Info(workspacePreparedLogMessageConstant,
		zap.String(logFieldRepositoryPathConstant, repositoryPath),
		zap.String(logFieldBaseCommitConstant, workspace.BaseCommit),
	)
	return workspace, nil
}

func (manager *Manager) checkout(executionContext context.Context, workspace *Workspace, remote string) (Stage, error) {
	repository := workspace.Repository
	if cloneError := repository.Clone(executionContext, remote, workspace.RepositoryPath); cloneError != nil {
		return StageClone, cloneError
	}

	branchExists, lookupError := repository.RemoteBranchExists(executionContext, workspace.RepositoryPath, workspace.BranchName)
	if lookupError != nil {
		return StageRemoteBranch, lookupError
	}
	if branchExists {
		return StageRemoteBranch, fmt.Errorf(remoteBranchExistsTemplateConstant, workspace.BranchName)
	}

	if branchError := repository.CreateBranch(executionContext, workspace.RepositoryPath, workspace.BranchName); branchError != nil {
		return StageCheckout, branchError
	}
	if configError := repository.ConfigurePushDefault(executionContext, workspace.RepositoryPath); configError != nil {
		return StageCheckout, configError
	}
	baseCommit, headError := repository.HeadCommit(executionContext, workspace.RepositoryPath)
	if headError != nil {
		return StageCheckout, headError
	}
	workspace.BaseCommit = baseCommit
	return "", nil
}

func (manager *Manager) checkoutPushed(executionContext context.Context, workspace *Workspace, remote string) (Stage, error) {
	repository := workspace.Repository
	if cloneError := repository.Clone(executionContext, remote, workspace.RepositoryPath); cloneError != nil {
		return StageClone, cloneError
	}

	branchExists, lookupError := repository.RemoteBranchExists(executionContext, workspace.RepositoryPath, workspace.BranchName)
	if lookupError != nil {
		return StageRemoteBranch, lookupError
	}
	if !branchExists {
		return StageRemoteBranch, fmt.Errorf(remoteBranchMissingTemplateConstant, workspace.BranchName)
	}

	if checkoutError := repository.CheckoutRemoteBranch(executionContext, workspace.RepositoryPath, workspace.BranchName); checkoutError != nil {
		return StageCheckout, checkoutError
	}
	return "", nil
}
