package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/clu/internal/definition"
	"github.com/temirov/clu/internal/ledger"
	"github.com/temirov/clu/internal/lifecycle"
	"github.com/temirov/clu/internal/publish"
	"github.com/temirov/clu/internal/steps"
	"github.com/temirov/clu/internal/workspace"
)

const (
	// DefaultConcurrencyCeilingConstant caps the worker count when no bound is configured.
	DefaultConcurrencyCeilingConstant = 3

	workspacesNotConfiguredMessageConstant = "orchestrator workspace manager not configured"
	stepsNotConfiguredMessageConstant      = "orchestrator step executor not configured"
	publisherNotConfiguredMessageConstant  = "orchestrator publisher not configured"
	runInterruptedMessageConstant          = "migration run interrupted"
	targetsFailedMessageConstant           = "migration failed for one or more targets"
	targetsFailedTemplateConstant          = "%w: %s"
	notLaunchedTemplateConstant            = "%w: %d of %d targets not launched"
	targetListSeparatorConstant            = ", "
	runStartedLogMessageConstant           = "migration run started"
	runFinishedLogMessageConstant          = "migration run finished"
	targetFinishedLogMessageConstant       = "target finished"
	targetCarriedLogMessageConstant        = "target already published, carrying result forward"
	targetResumedLogMessageConstant        = "target branch already pushed, resuming review request"
	targetNotTerminalLogMessageConstant    = "target finished outside a terminal state"
	targetStageFailedLogMessageConstant    = "target stage failed"
	ledgerFailedLogMessageConstant         = "status ledger failed, no further targets will launch"
	logFieldRunIdentifierConstant          = "run_id"
	logFieldConcurrencyConstant            = "concurrency"
	logFieldPendingConstant                = "pending"
	logFieldCarriedConstant                = "carried_forward"
	logFieldResumedConstant                = "resumed"
	logFieldTargetConstant                 = "target"
	logFieldStatusConstant                 = "status"
	logFieldReviewReferenceConstant        = "review_reference"
	logFieldFailedConstant                 = "failed"
	logFieldNotLaunchedConstant            = "not_launched"
)

var (
	// ErrWorkspacesNotConfigured indicates the orchestrator was constructed without a workspace manager.
	ErrWorkspacesNotConfigured = errors.New(workspacesNotConfiguredMessageConstant)
	// ErrStepsNotConfigured indicates the orchestrator was constructed without a step executor.
	ErrStepsNotConfigured = errors.New(stepsNotConfiguredMessageConstant)
	// ErrPublisherNotConfigured indicates the orchestrator was constructed without a publisher.
	ErrPublisherNotConfigured = errors.New(publisherNotConfiguredMessageConstant)
	// ErrRunInterrupted indicates cancellation kept some targets from launching.
	ErrRunInterrupted = errors.New(runInterruptedMessageConstant)
	// ErrTargetsFailed indicates at least one target ended outside published and preflight_skipped.
	ErrTargetsFailed = errors.New(targetsFailedMessageConstant)
)

// WorkspacePreparer creates target workspaces.
type WorkspacePreparer interface {
	Prepare(executionContext context.Context, targetName string, target definition.Target, branchName string) (*workspace.Workspace, error)
	Resume(executionContext context.Context, targetName string, target definition.Target, branchName string) (*workspace.Workspace, error)
}

// StepRunner runs the pre-flight check and steps of a target.
type StepRunner interface {
	Run(executionContext context.Context, request steps.Request) error
}

// ChangePublisher pushes a finished target and opens its pull request.
type ChangePublisher interface {
	Publish(executionContext context.Context, request publish.Request) (string, error)
	Resume(executionContext context.Context, request publish.Request) (string, error)
}

// StatusLedger persists run results.
type StatusLedger interface {
	Snapshot() (string, error)
	BeginRun(run definition.RunMetadata) error
	Record(targetName string, result lifecycle.TargetResult) error
	Document() definition.Document
}

// Dependencies wires the collaborators of an Orchestrator.
type Dependencies struct {
	Logger     *zap.Logger
	Workspaces WorkspacePreparer
	Steps      StepRunner
	Publisher  ChangePublisher
	// Clock stamps lifecycle timestamps; the system clock is used when nil.
	Clock lifecycle.Clock
	// RunIdentifierGenerator names each run; random UUIDs are used when nil.
	RunIdentifierGenerator func() string
}

// Options tune a single run.
type Options struct {
	// Concurrency bounds the number of targets processed at once. Zero or less selects the default.
	Concurrency int
	// ReprocessPublished runs targets whose previous result is published instead of carrying it forward.
	ReprocessPublished bool
	// Publish holds back pushing or review requests.
	Publish publish.Options
}

// Summary describes a finished run.
type Summary struct {
	RunIdentifier  string
	BackupPath     string
	Concurrency    int
	Completed      []string
	CarriedForward []string
	// Resumed lists targets whose branch an earlier run pushed without opening a review.
	Resumed     []string
	NotLaunched []string
	// Results holds every result present in the status document after the run,
	// including earlier results of targets this run did not launch.
	Results map[string]lifecycle.TargetResult
}

// FailedTargets lists, in name order, the targets whose result is not a success.
func (summary Summary) FailedTargets() []string {
	failedTargets := []string{}
	for targetName, result := range summary.Results {
		if !result.IsSuccess() {
			failedTargets = append(failedTargets, targetName)
		}
	}
	sort.Strings(failedTargets)
	return failedTargets
}

// Orchestrator runs migrations.
type Orchestrator struct {
	logger                 *zap.Logger
	workspaces             WorkspacePreparer
	steps                  StepRunner
	publisher              ChangePublisher
	clock                  lifecycle.Clock
	runIdentifierGenerator func() string
}

type targetOutcome struct {
	targetName string
	result     lifecycle.TargetResult
}

type targetPlan struct {
	resumedTargets map[string]struct{}
	publishOptions publish.Options
}

// NewOrchestrator validates the dependencies and constructs an Orchestrator.
func NewOrchestrator(dependencies Dependencies) (*Orchestrator, error) {
	if dependencies.Workspaces == nil {
		return nil, ErrWorkspacesNotConfigured
	}
	if dependencies.Steps == nil {
		return nil, ErrStepsNotConfigured
	}
	if dependencies.Publisher == nil {
		return nil, ErrPublisherNotConfigured
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = lifecycle.SystemClock{}
	}
	runIdentifierGenerator := dependencies.RunIdentifierGenerator
	if runIdentifierGenerator == nil {
		runIdentifierGenerator = uuid.NewString
	}
	return &Orchestrator{
		logger:                 logger,
		workspaces:             dependencies.Workspaces,
		steps:                  dependencies.Steps,
		publisher:              dependencies.Publisher,
		clock:                  clock,
		runIdentifierGenerator: runIdentifierGenerator,
	}, nil
}

// ResolveConcurrency returns the worker count for the number of pending targets.
func ResolveConcurrency(requested int, pendingTargets int) int {
	concurrency := requested
	if concurrency <= 0 {
		concurrency = DefaultConcurrencyCeilingConstant
	}
	if concurrency > pendingTargets {
		concurrency = pendingTargets
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return concurrency
}

// Run processes every target of the definition and records each result in the ledger.
//
// The ledger is backed up before anything else happens. Targets whose branch an earlier
// run pushed without opening a review only retry the review request. Cancelling the
// context stops targets from launching but lets running targets finish and be recorded;
// unlaunched targets keep their earlier result. The returned error is a ledger.LedgerError
// when persistence failed, wraps ErrRunInterrupted when targets were left unlaunched, and
// wraps ErrTargetsFailed when any target failed.
func (orchestrator *Orchestrator) Run(executionContext context.Context, migration definition.Definition, statusLedger StatusLedger, options Options) (Summary, error) {
	summary := Summary{RunIdentifier: orchestrator.runIdentifierGenerator()}
	if optionsError := options.Publish.Validate(); optionsError != nil {
		return summary, optionsError
	}

	backupPath, snapshotError := statusLedger.Snapshot()
	if snapshotError != nil {
		return summary, snapshotError
	}
	summary.BackupPath = backupPath

	pendingTargets := []string{}
	plan := targetPlan{resumedTargets: map[string]struct{}{}, publishOptions: options.Publish}
	priorDocument := statusLedger.Document()
	for _, targetName := range migration.TargetNames() {
		priorResult, found := priorDocument.Result(targetName)
		if found && priorResult.Status == lifecycle.StatePublished && !options.ReprocessPublished {
			summary.CarriedForward = append(summary.CarriedForward, targetName)
			orchestrator.logger.Info(targetCarriedLogMessageConstant,
				zap.String(logFieldTargetConstant, targetName),
				zap.String(logFieldReviewReferenceConstant, priorResult.ReviewReference),
			)
			continue
		}
		if found && priorResult.BranchPushed() {
			plan.resumedTargets[targetName] = struct{}{}
			summary.Resumed = append(summary.Resumed, targetName)
			orchestrator.logger.Info(targetResumedLogMessageConstant, zap.String(logFieldTargetConstant, targetName))
		}
		pendingTargets = append(pendingTargets, targetName)
	}

	runMetadata := definition.RunMetadata{ID: summary.RunIdentifier, StartedAt: orchestrator.clock.Now(), BackupPath: backupPath}
	if beginError := statusLedger.BeginRun(runMetadata); beginError != nil {
		return summary, beginError
	}

	summary.Concurrency = ResolveConcurrency(options.Concurrency, len(pendingTargets))
	orchestrator.logger.Info(runStartedLogMessageConstant,
		zap.String(logFieldRunIdentifierConstant, summary.RunIdentifier),
		zap.Int(logFieldConcurrencyConstant, summary.Concurrency),
		zap.Int(logFieldPendingConstant, len(pendingTargets)),
		zap.Int(logFieldCarriedConstant, len(summary.CarriedForward)),
		zap.Int(logFieldResumedConstant, len(summary.Resumed)),
	)

	ledgerError := orchestrator.process(executionContext, migration, statusLedger, pendingTargets, plan, &summary)

	summary.Results = statusLedger.Document().Results
	completedTargets := make(map[string]struct{}, len(summary.Completed))
	for _, targetName := range summary.Completed {
		completedTargets[targetName] = struct{}{}
	}
	for _, targetName := range pendingTargets {
		if _, completed := completedTargets[targetName]; !completed {
			summary.NotLaunched = append(summary.NotLaunched, targetName)
		}
	}
	sort.Strings(summary.Completed)

	failedTargets := summary.FailedTargets()
	orchestrator.logger.Info(runFinishedLogMessageConstant,
		zap.String(logFieldRunIdentifierConstant, summary.RunIdentifier),
		zap.Strings(logFieldFailedConstant, failedTargets),
		zap.Strings(logFieldNotLaunchedConstant, summary.NotLaunched),
	)

	switch {
	case ledgerError != nil:
		return summary, ledgerError
	case len(summary.NotLaunched) > 0:
		return summary, fmt.Errorf(notLaunchedTemplateConstant, ErrRunInterrupted, len(summary.NotLaunched), len(pendingTargets))
	case len(failedTargets) > 0:
		return summary, fmt.Errorf(targetsFailedTemplateConstant, ErrTargetsFailed, strings.Join(failedTargets, targetListSeparatorConstant))
	default:
		return summary, nil
	}
}

// process runs the worker pool and records outcomes until every launched target is done.
func (orchestrator *Orchestrator) process(executionContext context.Context, migration definition.Definition, statusLedger StatusLedger, pendingTargets []string, plan targetPlan, summary *Summary) error {
	launchContext, cancelLaunch := context.WithCancel(executionContext)
	defer cancelLaunch()
	targetContext := context.WithoutCancel(executionContext)

	queue := make(chan string, len(pendingTargets))
	for _, targetName := range pendingTargets {
		queue <- targetName
	}
	close(queue)

	outcomes := make(chan targetOutcome)
	var workers errgroup.Group
	for workerIndex := 0; workerIndex < summary.Concurrency; workerIndex++ {
		workers.Go(func() error {
			for targetName := range queue {
				if launchContext.Err() != nil {
					return nil
				}
				outcomes <- targetOutcome{targetName: targetName, result: orchestrator.runTarget(targetContext, migration, targetName, plan)}
			}
			return nil
		})
	}
	go func() {
		_ = workers.Wait()
		close(outcomes)
	}()

	var ledgerError error
	for outcome := range outcomes {
		summary.Completed = append(summary.Completed, outcome.targetName)
		if ledgerError != nil {
			continue
		}
		if recordError := statusLedger.Record(outcome.targetName, outcome.result); recordError != nil {
			ledgerError = recordError
			cancelLaunch()
			orchestrator.logger.Error(ledgerFailedLogMessageConstant, zap.Error(recordError))
		}
	}
	return ledgerError
}

// runTarget carries one target from pending to a terminal state.
func (orchestrator *Orchestrator) runTarget(executionContext context.Context, migration definition.Definition, targetName string, plan targetPlan) lifecycle.TargetResult {
	targetLogger := orchestrator.logger.With(zap.String(logFieldTargetConstant, targetName))
	machine := lifecycle.NewMachine(orchestrator.clock)
	defer func() {
		result := machine.Result()
		if !result.Status.IsTerminal() {
			targetLogger.Error(targetNotTerminalLogMessageConstant, zap.String(logFieldStatusConstant, string(result.Status)))
			return
		}
		targetLogger.Info(targetFinishedLogMessageConstant,
			zap.String(logFieldStatusConstant, string(result.Status)),
			zap.String(logFieldReviewReferenceConstant, result.ReviewReference),
		)
	}()

	target := migration.Targets[targetName]
	_, resumed := plan.resumedTargets[targetName]
	prepare := orchestrator.workspaces.Prepare
	if resumed {
		prepare = orchestrator.workspaces.Resume
	}
	preparedWorkspace, prepareError := prepare(executionContext, targetName, target, migration.Checkout.BranchName)
	if prepareError != nil {
		orchestrator.logStageFailure(targetLogger, machine.FailWorkspace(prepareError.Error()), prepareError)
		return machine.Result()
	}
	defer func() {
		_ = preparedWorkspace.Close()
	}()
	if transitionError := machine.MarkCloned(); transitionError != nil {
		orchestrator.logStageFailure(targetLogger, transitionError, nil)
		return machine.Result()
	}

	publishRequest := publish.Request{
		Workspace:   preparedWorkspace,
		Target:      target,
		PullRequest: migration.PullRequest,
		Machine:     machine,
		Options:     plan.publishOptions,
	}
	if resumed {
		if _, resumeError := orchestrator.publisher.Resume(executionContext, publishRequest); resumeError != nil {
			orchestrator.logStageFailure(targetLogger, resumeError, nil)
		}
		return machine.Result()
	}

	stepsError := orchestrator.steps.Run(executionContext, steps.Request{
		Workspace: preparedWorkspace,
		Target:    target,
		Checkout:  migration.Checkout,
		Steps:     migration.Steps,
		Machine:   machine,
	})
	if stepsError != nil {
		orchestrator.logStageFailure(targetLogger, stepsError, nil)
		return machine.Result()
	}
	if machine.State() != lifecycle.StateStepsComplete {
		return machine.Result()
	}

	if _, publishError := orchestrator.publisher.Publish(executionContext, publishRequest); publishError != nil {
		orchestrator.logStageFailure(targetLogger, publishError, nil)
	}
	return machine.Result()
}

func (orchestrator *Orchestrator) logStageFailure(targetLogger *zap.Logger, failure error, cause error) {
	if joinedError := errors.Join(cause, failure); joinedError != nil {
		targetLogger.Warn(targetStageFailedLogMessageConstant, zap.Error(joinedError))
	}
}

var _ StatusLedger = (*ledger.Ledger)(nil)
