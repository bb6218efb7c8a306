package followup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/clu/internal/definition"
	"github.com/temirov/clu/internal/execshell"
	"github.com/temirov/clu/internal/githubcli"
	"github.com/temirov/clu/internal/lifecycle"
	"github.com/temirov/clu/internal/workspace"
)

const (
	// DefaultConcurrencyConstant bounds the targets processed at once when no bound is configured.
	DefaultConcurrencyConstant = 3

	workspacesNotConfiguredMessageConstant = "follow-up workspace manager not configured"
	reviewsNotConfiguredMessageConstant    = "follow-up pull request inspector not configured"
	scriptsNotConfiguredMessageConstant    = "follow-up script executor not configured"
	scriptRequiredMessageConstant          = "follow-up script is required"
	targetsFailedMessageConstant           = "follow-up failed for one or more targets"
	runInterruptedMessageConstant          = "follow-up run interrupted"
	targetsFailedTemplateConstant          = "%w: %s"
	notLaunchedTemplateConstant            = "%w: %d of %d targets not launched"
	targetListSeparatorConstant            = ", "
	reviewLookupTemplateConstant           = "unable to read pull request: %v"
	reviewClosedNoteTemplateConstant       = "pull request is %s"
	scriptFailedTemplateConstant           = "follow-up script exited with code %d"
	pullRequestEnvironmentKeyConstant      = "CLU_PULL_REQUEST_URL"
	cloneURLEnvironmentKeyConstant         = "CLU_CLONE_URL"
	targetNameEnvironmentKeyConstant       = "CLU_TARGET_NAME"
	workspaceEnvironmentKeyConstant        = "CLU_WORKSPACE"
	branchNameEnvironmentKeyConstant       = "CLU_BRANCH_NAME"
	followupStartedLogMessageConstant      = "follow-up started"
	followupFinishedLogMessageConstant     = "follow-up finished"
	targetFinishedLogMessageConstant       = "follow-up target finished"
	logFieldTargetConstant                 = "target"
	logFieldOutcomeConstant                = "outcome"
	logFieldDetailConstant                 = "detail"
	logFieldEligibleConstant               = "eligible"
	logFieldConcurrencyConstant            = "concurrency"
	logFieldFailedConstant                 = "failed"
)

var (
	// ErrWorkspacesNotConfigured indicates the runner was constructed without a workspace manager.
	ErrWorkspacesNotConfigured = errors.New(workspacesNotConfiguredMessageConstant)
	// ErrReviewsNotConfigured indicates the runner was constructed without a pull request inspector.
	ErrReviewsNotConfigured = errors.New(reviewsNotConfiguredMessageConstant)
	// ErrScriptsNotConfigured indicates the runner was constructed without a script executor.
	ErrScriptsNotConfigured = errors.New(scriptsNotConfiguredMessageConstant)
	// ErrScriptRequired indicates Run was called without a script.
	ErrScriptRequired = errors.New(scriptRequiredMessageConstant)
	// ErrTargetsFailed indicates the script could not run or failed for at least one target.
	ErrTargetsFailed = errors.New(targetsFailedMessageConstant)
	// ErrRunInterrupted indicates cancellation kept some targets from launching.
	ErrRunInterrupted = errors.New(runInterruptedMessageConstant)
)

// Outcome labels how the follow-up ended for one target.
type Outcome string

// Follow-up outcomes.
const (
	OutcomeCompleted   Outcome = "followup_completed"
	OutcomeSkipped     Outcome = "followup_skipped"
	OutcomeFailed      Outcome = "followup_failed"
	OutcomeNotLaunched Outcome = "not_launched"
)

// WorkspaceResumer clones a target with its pushed migration branch checked out.
type WorkspaceResumer interface {
	Resume(executionContext context.Context, targetName string, target definition.Target, branchName string) (*workspace.Workspace, error)
}

// PullRequestInspector reports the review state of an opened pull request.
type PullRequestInspector interface {
	ViewPullRequest(executionContext context.Context, reference string) (githubcli.PullRequestStatus, error)
}

// ScriptExecutor runs a command line through a shell.
type ScriptExecutor interface {
	ExecuteScript(executionContext context.Context, commandLine string, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Dependencies wires the collaborators of a Runner.
type Dependencies struct {
	Logger     *zap.Logger
	Workspaces WorkspaceResumer
	Reviews    PullRequestInspector
	Scripts    ScriptExecutor
	// ResolveCommand rewrites the script command line before it runs; it is used unchanged when nil.
	ResolveCommand func(commandLine string) string
}

// TargetReport is the follow-up result of one target.
type TargetReport struct {
	Target          string
	ReviewReference string
	Outcome         Outcome
	Detail          string
}

// Report lists the follow-up result of every eligible target in name order.
type Report struct {
	Targets []TargetReport
}

// FailedTargets lists the targets whose follow-up failed.
func (report Report) FailedTargets() []string {
	failedTargets := []string{}
	for _, targetReport := range report.Targets {
		if targetReport.Outcome == OutcomeFailed {
			failedTargets = append(failedTargets, targetReport.Target)
		}
	}
	return failedTargets
}

// Runner runs follow-up scripts.
type Runner struct {
	logger         *zap.Logger
	workspaces     WorkspaceResumer
	reviews        PullRequestInspector
	scripts        ScriptExecutor
	resolveCommand func(commandLine string) string
}

// NewRunner validates the dependencies and constructs a Runner.
func NewRunner(dependencies Dependencies) (*Runner, error) {
	if dependencies.Workspaces == nil {
		return nil, ErrWorkspacesNotConfigured
	}
	if dependencies.Reviews == nil {
		return nil, ErrReviewsNotConfigured
	}
	if dependencies.Scripts == nil {
		return nil, ErrScriptsNotConfigured
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resolveCommand := dependencies.ResolveCommand
	if resolveCommand == nil {
		resolveCommand = func(commandLine string) string { return commandLine }
	}
	return &Runner{
		logger:         logger,
		workspaces:     dependencies.Workspaces,
		reviews:        dependencies.Reviews,
		scripts:        dependencies.Scripts,
		resolveCommand: resolveCommand,
	}, nil
}

// EligibleTargets lists, in name order, the targets whose recorded result is published with a review reference.
func EligibleTargets(document definition.Document) []string {
	eligibleTargets := []string{}
	for _, targetName := range document.Definition().TargetNames() {
		result, found := document.Result(targetName)
		if found && result.Status == lifecycle.StatePublished && len(result.ReviewReference) > 0 {
			eligibleTargets = append(eligibleTargets, targetName)
		}
	}
	return eligibleTargets
}

// Run executes the script for every eligible target of the status document.
// Cancelling the context stops targets from launching; running scripts finish.
// The returned error wraps ErrRunInterrupted when targets were left unlaunched and
// ErrTargetsFailed when any target failed.
func (runner *Runner) Run(executionContext context.Context, document definition.Document, script string, concurrency int) (Report, error) {
	if len(strings.TrimSpace(script)) == 0 {
		return Report{}, ErrScriptRequired
	}
	eligibleTargets := EligibleTargets(document)
	if concurrency <= 0 {
		concurrency = DefaultConcurrencyConstant
	}
	runner.logger.Info(followupStartedLogMessageConstant,
		zap.Int(logFieldEligibleConstant, len(eligibleTargets)),
		zap.Int(logFieldConcurrencyConstant, concurrency),
	)

	migration := document.Definition()
	commandLine := runner.resolveCommand(script)
	targetContext := context.WithoutCancel(executionContext)

	var mutex sync.Mutex
	report := Report{Targets: make([]TargetReport, 0, len(eligibleTargets))}
	var workers errgroup.Group
	workers.SetLimit(concurrency)
	for _, targetName := range eligibleTargets {
		result, _ := document.Result(targetName)
		workers.Go(func() error {
			targetReport := TargetReport{Target: targetName, ReviewReference: result.ReviewReference, Outcome: OutcomeNotLaunched}
			if executionContext.Err() == nil {
				targetReport = runner.runTarget(targetContext, migration, targetName, result.ReviewReference, commandLine)
			}
			mutex.Lock()
			report.Targets = append(report.Targets, targetReport)
			mutex.Unlock()
			return nil
		})
	}
	_ = workers.Wait()
	sort.Slice(report.Targets, func(leftIndex int, rightIndex int) bool {
		return report.Targets[leftIndex].Target < report.Targets[rightIndex].Target
	})

	failedTargets := report.FailedTargets()
	runner.logger.Info(followupFinishedLogMessageConstant, zap.Strings(logFieldFailedConstant, failedTargets))

	notLaunched := 0
	for _, targetReport := range report.Targets {
		if targetReport.Outcome == OutcomeNotLaunched {
			notLaunched++
		}
	}
	switch {
	case notLaunched > 0:
		return report, fmt.Errorf(notLaunchedTemplateConstant, ErrRunInterrupted, notLaunched, len(report.Targets))
	case len(failedTargets) > 0:
		return report, fmt.Errorf(targetsFailedTemplateConstant, ErrTargetsFailed, strings.Join(failedTargets, targetListSeparatorConstant))
	default:
		return report, nil
	}
}

func (runner *Runner) runTarget(executionContext context.Context, migration definition.Definition, targetName string, reviewReference string, commandLine string) TargetReport {
	targetReport := TargetReport{Target: targetName, ReviewReference: reviewReference}
	targetLogger := runner.logger.With(zap.String(logFieldTargetConstant, targetName))
	defer func() {
		targetLogger.Info(targetFinishedLogMessageConstant,
			zap.String(logFieldOutcomeConstant, string(targetReport.Outcome)),
			zap.String(logFieldDetailConstant, targetReport.Detail),
		)
	}()

	status, viewError := runner.reviews.ViewPullRequest(executionContext, reviewReference)
	if viewError != nil {
		targetReport.Outcome = OutcomeFailed
		targetReport.Detail = fmt.Sprintf(reviewLookupTemplateConstant, viewError)
		return targetReport
	}
	if status.Classification == githubcli.ReviewStateMerged || status.Classification == githubcli.ReviewStateClosed {
		targetReport.Outcome = OutcomeSkipped
		targetReport.Detail = fmt.Sprintf(reviewClosedNoteTemplateConstant, status.Classification)
		return targetReport
	}

	target := migration.Targets[targetName]
	resumedWorkspace, resumeError := runner.workspaces.Resume(executionContext, targetName, target, migration.Checkout.BranchName)
	if resumeError != nil {
		targetReport.Outcome = OutcomeFailed
		targetReport.Detail = resumeError.Error()
		return targetReport
	}
	defer func() {
		_ = resumedWorkspace.Close()
	}()

	environment := make(map[string]string, len(target.Environment)+5)
	for environmentKey, environmentValue := range target.Environment {
		environment[environmentKey] = environmentValue
	}
	environment[pullRequestEnvironmentKeyConstant] = status.URL
	if len(status.URL) == 0 {
		environment[pullRequestEnvironmentKeyConstant] = reviewReference
	}
	environment[cloneURLEnvironmentKeyConstant] = target.Repository
	environment[targetNameEnvironmentKeyConstant] = targetName
	environment[workspaceEnvironmentKeyConstant] = resumedWorkspace.Root
	environment[branchNameEnvironmentKeyConstant] = migration.Checkout.BranchName

	_, scriptError := runner.scripts.ExecuteScript(executionContext, commandLine, execshell.CommandDetails{
		WorkingDirectory:     resumedWorkspace.RepositoryPath,
		EnvironmentVariables: environment,
		StandardOutputSink:   resumedWorkspace.StandardOutput,
		StandardErrorSink:    resumedWorkspace.StandardError,
	})
	if scriptError != nil {
		targetReport.Outcome = OutcomeFailed
		targetReport.Detail = scriptError.Error()
		if exitCode, exited := execshell.ExitCodeOf(scriptError); exited {
			targetReport.Detail = fmt.Sprintf(scriptFailedTemplateConstant, exitCode)
		}
		return targetReport
	}
	targetReport.Outcome = OutcomeCompleted
	return targetReport
}
