package orchestrator_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/clu/internal/definition"
	"github.com/temirov/clu/internal/execshell"
	"github.com/temirov/clu/internal/githubcli"
	"github.com/temirov/clu/internal/gitrepo"
	"github.com/temirov/clu/internal/ledger"
	"github.com/temirov/clu/internal/lifecycle"
	"github.com/temirov/clu/internal/orchestrator"
	"github.com/temirov/clu/internal/publish"
	"github.com/temirov/clu/internal/steps"
	"github.com/temirov/clu/internal/testsupport"
	"github.com/temirov/clu/internal/workspace"
)

const (
	testPreflightConstant     = "/usr/bin/true"
	testStepScriptConstant    = "/opt/scripts/edit-and-commit.sh"
	testBranchNameConstant    = "migration/upgrade"
	testRunIdentifierConstant = "run-0001"
)

type fixedClock struct {
	instant time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.instant
}

var testClock = fixedClock{instant: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}

type orchestratorFixture struct {
	runner        *testsupport.ScriptedRunner
	workDirectory string
	documentPath  string
	orchestrator  *orchestrator.Orchestrator
	logs          *observer.ObservedLogs
}

func newOrchestratorFixture(testInstance *testing.T, configure func(runner *testsupport.ScriptedRunner)) orchestratorFixture {
	testInstance.Helper()
	runner := testsupport.NewRepositoryRunner()
	if configure != nil {
		configure(runner)
	}
	observedCore, observedLogs := observer.New(zap.InfoLevel)
	logger := zap.New(observedCore)

	shellExecutor, executorError := execshell.NewShellExecutor(logger, runner, false)
	require.NoError(testInstance, executorError)
	repositories, repositoryError := gitrepo.NewRepositoryManager(shellExecutor)
	require.NoError(testInstance, repositoryError)

	rootDirectory := testInstance.TempDir()
	workDirectory := filepath.Join(rootDirectory, "work-dir")
	workspaces, workspaceError := workspace.NewManager(logger, workDirectory, repositories)
	require.NoError(testInstance, workspaceError)
	stepExecutor, stepError := steps.NewExecutor(logger, shellExecutor, rootDirectory)
	require.NoError(testInstance, stepError)
	client, clientError := githubcli.NewClient(shellExecutor)
	require.NoError(testInstance, clientError)
	publisher, publisherError := publish.NewPublisher(logger, client)
	require.NoError(testInstance, publisherError)

	migrationOrchestrator, orchestratorError := orchestrator.NewOrchestrator(orchestrator.Dependencies{
		Logger:                 logger,
		Workspaces:             workspaces,
		Steps:                  stepExecutor,
		Publisher:              publisher,
		Clock:                  testClock,
		RunIdentifierGenerator: func() string { return testRunIdentifierConstant },
	})
	require.NoError(testInstance, orchestratorError)

	documentDirectory := filepath.Join(rootDirectory, "status")
	require.NoError(testInstance, os.MkdirAll(documentDirectory, 0o755))

	return orchestratorFixture{
		runner:        runner,
		workDirectory: workDirectory,
		documentPath:  filepath.Join(documentDirectory, "migration.yaml"),
		orchestrator:  migrationOrchestrator,
		logs:          observedLogs,
	}
}

func newTestDocument(targetNames ...string) definition.Document {
	targets := make(map[string]definition.Target, len(targetNames))
	for _, targetName := range targetNames {
		targets[targetName] = definition.Target{Repository: "git@github.com:acme/" + targetName + ".git"}
	}
	return definition.NewDocument(definition.Definition{
		Version:     definition.SchemaVersionConstant,
		Targets:     targets,
		Checkout:    definition.Checkout{BranchName: testBranchNameConstant, PreflightCommand: testPreflightConstant},
		PullRequest: definition.PullRequest{Title: "Upgrade toolchain", Description: "Automated upgrade."},
		Steps:       []definition.Step{{Name: "Edit and commit", Script: testStepScriptConstant}},
	})
}

func (fixture orchestratorFixture) run(testInstance *testing.T, executionContext context.Context, document definition.Document, options orchestrator.Options) (orchestrator.Summary, definition.Document, error) {
	testInstance.Helper()
	encoded, encodeError := definition.CodecForPath(fixture.documentPath).Encode(document)
	require.NoError(testInstance, encodeError)
	require.NoError(testInstance, os.WriteFile(fixture.documentPath, encoded, 0o644))

	loadedDocument, loadError := definition.LoadDocument(fixture.documentPath)
	require.NoError(testInstance, loadError)
	statusLedger := ledger.New(zap.NewNop(), fixture.documentPath, loadedDocument, testClock)

	summary, runError := fixture.orchestrator.Run(executionContext, loadedDocument.Definition(), statusLedger, options)
	persisted, persistedError := ledger.Load(fixture.documentPath)
	if persistedError != nil {
		return summary, definition.Document{}, runError
	}
	return summary, persisted, runError
}

func (fixture orchestratorFixture) repositoryPath(targetName string) string {
	return filepath.Join(fixture.workDirectory, definition.WorkspaceName(targetName), workspace.RepositoryDirectoryNameConstant)
}

func (fixture orchestratorFixture) clonedTargets() []string {
	clonedTargets := []string{}
	for _, command := range fixture.runner.InvocationsMatching(execshell.CommandGit, "clone") {
		clonedTargets = append(clonedTargets, filepath.Base(filepath.Dir(command.Details.Arguments[2])))
	}
	return clonedTargets
}

func TestNewOrchestratorValidatesDependencies(testInstance *testing.T) {
	_, creationError := orchestrator.NewOrchestrator(orchestrator.Dependencies{})
	require.ErrorIs(testInstance, creationError, orchestrator.ErrWorkspacesNotConfigured)
}

func TestResolveConcurrency(testInstance *testing.T) {
	testCases := []struct {
		name      string
		requested int
		pending   int
		expected  int
	}{
		{name: "default_capped_by_ceiling", requested: 0, pending: 8, expected: orchestrator.DefaultConcurrencyCeilingConstant},
		{name: "default_capped_by_targets", requested: 0, pending: 2, expected: 2},
		{name: "explicit_bound", requested: 5, pending: 8, expected: 5},
		{name: "explicit_bound_above_targets", requested: 8, pending: 3, expected: 3},
		{name: "no_targets", requested: 4, pending: 0, expected: 1},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			require.Equal(subTest, testCase.expected, orchestrator.ResolveConcurrency(testCase.requested, testCase.pending))
		})
	}
}

func TestRunPublishesEveryTarget(testInstance *testing.T) {
	fixture := newOrchestratorFixture(testInstance, nil)

	summary, persisted, runError := fixture.run(testInstance, context.Background(), newTestDocument("a", "b"), orchestrator.Options{})
	require.NoError(testInstance, runError)
	require.Equal(testInstance, []string{"a", "b"}, summary.Completed)
	require.Empty(testInstance, summary.FailedTargets())

	require.Len(testInstance, persisted.Results, 2)
	references := map[string]struct{}{}
	for _, targetName := range []string{"a", "b"} {
		result, found := persisted.Result(targetName)
		require.True(testInstance, found)
		require.Equal(testInstance, lifecycle.StatePublished, result.Status)
		require.Equal(testInstance, fmt.Sprintf("https://github.com/acme/%s/pull/1", targetName), result.ReviewReference)
		references[result.ReviewReference] = struct{}{}
	}
	require.Len(testInstance, references, 2)

	require.NotNil(testInstance, persisted.Run)
	require.Equal(testInstance, testRunIdentifierConstant, persisted.Run.ID)
	require.Equal(testInstance, summary.BackupPath, persisted.Run.BackupPath)
	require.FileExists(testInstance, summary.BackupPath)
}

func TestRunSkipsTargetWhosePreflightFails(testInstance *testing.T) {
	fixture := newOrchestratorFixture(testInstance, func(runner *testsupport.ScriptedRunner) {
		runner.OnFunc(execshell.CommandShell, []string{"-c", testPreflightConstant}, func(command execshell.ShellCommand) testsupport.ScriptedResponse {
			if command.Details.EnvironmentVariables["CLU_TARGET_NAME"] == "a" {
				return testsupport.ScriptedResponse{ExitCode: 1}
			}
			return testsupport.ScriptedResponse{}
		})
	})

	_, persisted, runError := fixture.run(testInstance, context.Background(), newTestDocument("a", "b"), orchestrator.Options{})
	require.NoError(testInstance, runError)

	skippedResult, _ := persisted.Result("a")
	require.Equal(testInstance, lifecycle.StatePreflightSkipped, skippedResult.Status)
	require.Nil(testInstance, skippedResult.Failure)
	require.Empty(testInstance, skippedResult.ReviewReference)
	require.Equal(testInstance, []string{testPreflightConstant}, fixture.runner.ScriptLines(fixture.repositoryPath("a")))

	publishedResult, _ := persisted.Result("b")
	require.Equal(testInstance, lifecycle.StatePublished, publishedResult.Status)
	require.Equal(testInstance, []string{testPreflightConstant, testStepScriptConstant}, fixture.runner.ScriptLines(fixture.repositoryPath("b")))

	for _, command := range fixture.runner.InvocationsMatching(execshell.CommandGit, "push") {
		require.Equal(testInstance, fixture.repositoryPath("b"), command.Details.WorkingDirectory)
	}
}

func TestRunRecordsUncommittedChanges(testInstance *testing.T) {
	fixture := newOrchestratorFixture(testInstance, func(runner *testsupport.ScriptedRunner) {
		runner.OnScript(testStepScriptConstant, testsupport.ScriptedResponse{StandardOutput: "edited README.md\n"})
		runner.On(execshell.CommandGit, []string{"status"}, testsupport.ScriptedResponse{StandardOutput: " M README.md\x00"})
	})

	summary, persisted, runError := fixture.run(testInstance, context.Background(), newTestDocument("a"), orchestrator.Options{})
	require.ErrorIs(testInstance, runError, orchestrator.ErrTargetsFailed)
	require.EqualError(testInstance, runError, "migration failed for one or more targets: a")
	require.Equal(testInstance, []string{"a"}, summary.FailedTargets())

	result, found := persisted.Result("a")
	require.True(testInstance, found)
	require.Equal(testInstance, lifecycle.StateUncommittedChanges, result.Status)
	require.Equal(testInstance, lifecycle.FailureKindUncommittedChanges, result.Failure.Kind)
	require.Equal(testInstance, 0, *result.Failure.StepIndex)
	require.Equal(testInstance, []string{"README.md"}, result.Failure.Paths)
	require.Empty(testInstance, fixture.runner.InvocationsMatching(execshell.CommandGit, "push"))

	standardOutputLog, readError := os.ReadFile(filepath.Join(fixture.workDirectory, "a", workspace.StandardOutputLogNameConstant))
	require.NoError(testInstance, readError)
	require.Contains(testInstance, string(standardOutputLog), ">> Running "+testStepScriptConstant+"\nedited README.md\n")
}

func TestRunIsolatesFailingTargets(testInstance *testing.T) {
	fixture := newOrchestratorFixture(testInstance, func(runner *testsupport.ScriptedRunner) {
		runner.OnFunc(execshell.CommandGit, []string{"clone"}, func(command execshell.ShellCommand) testsupport.ScriptedResponse {
			if strings.Contains(command.Details.Arguments[1], "/broken.git") {
				return testsupport.ScriptedResponse{ExitCode: 128, StandardError: "repository not found"}
			}
			return testsupport.ScriptedResponse{}
		})
		runner.OnFunc(execshell.CommandShell, []string{"-c", testStepScriptConstant}, func(command execshell.ShellCommand) testsupport.ScriptedResponse {
			if command.Details.EnvironmentVariables["CLU_TARGET_NAME"] == "failing" {
				return testsupport.ScriptedResponse{ExitCode: 2}
			}
			return testsupport.ScriptedResponse{}
		})
		runner.OnFunc(execshell.CommandGit, []string{"push"}, func(command execshell.ShellCommand) testsupport.ScriptedResponse {
			if strings.HasSuffix(command.Details.WorkingDirectory, filepath.Join("rejected", "repo")) {
				return testsupport.ScriptedResponse{ExitCode: 1, StandardError: "permission denied"}
			}
			return testsupport.ScriptedResponse{}
		})
	})

	summary, persisted, runError := fixture.run(testInstance, context.Background(), newTestDocument("broken", "failing", "healthy", "rejected"), orchestrator.Options{Concurrency: 2})
	require.ErrorIs(testInstance, runError, orchestrator.ErrTargetsFailed)
	require.Equal(testInstance, []string{"broken", "failing", "rejected"}, summary.FailedTargets())
	require.Len(testInstance, persisted.Results, 4)

	expectedStates := map[string]lifecycle.State{
		"broken":   lifecycle.StateWorkspaceFailed,
		"failing":  lifecycle.StateStepFailed,
		"healthy":  lifecycle.StatePublished,
		"rejected": lifecycle.StatePublishFailed,
	}
	for targetName, expectedState := range expectedStates {
		result, found := persisted.Result(targetName)
		require.True(testInstance, found, targetName)
		require.Equal(testInstance, expectedState, result.Status, targetName)
		require.True(testInstance, result.Status.IsTerminal())
	}

	rejectedResult, _ := persisted.Result("rejected")
	require.Equal(testInstance, lifecycle.PublishStagePush, rejectedResult.Failure.Stage)
	failingResult, _ := persisted.Result("failing")
	require.Equal(testInstance, 2, *failingResult.Failure.ExitCode)
}

func TestRunResultsDoNotDependOnConcurrency(testInstance *testing.T) {
	targetNames := make([]string, 0, 8)
	for targetIndex := 0; targetIndex < 8; targetIndex++ {
		targetNames = append(targetNames, fmt.Sprintf("svc-%d", targetIndex))
	}
	configure := func(runner *testsupport.ScriptedRunner) {
		runner.OnFunc(execshell.CommandShell, []string{"-c", testStepScriptConstant}, func(command execshell.ShellCommand) testsupport.ScriptedResponse {
			if command.Details.EnvironmentVariables["CLU_TARGET_NAME"] == "svc-3" {
				return testsupport.ScriptedResponse{ExitCode: 7}
			}
			return testsupport.ScriptedResponse{}
		})
	}

	persistedByConcurrency := map[int]definition.Document{}
	for _, concurrency := range []int{1, 8} {
		fixture := newOrchestratorFixture(testInstance, configure)
		summary, persisted, runError := fixture.run(testInstance, context.Background(), newTestDocument(targetNames...), orchestrator.Options{Concurrency: concurrency})
		require.ErrorIs(testInstance, runError, orchestrator.ErrTargetsFailed)
		require.Equal(testInstance, concurrency, summary.Concurrency)
		require.Len(testInstance, persisted.Results, len(targetNames))
		persistedByConcurrency[concurrency] = persisted
	}

	require.Equal(testInstance, persistedByConcurrency[1].Results, persistedByConcurrency[8].Results)
}

func TestRunCarriesPublishedResultsForward(testInstance *testing.T) {
	priorDocument := newTestDocument("alpha", "beta")
	priorDocument.Results = map[string]lifecycle.TargetResult{
		"alpha": {Status: lifecycle.StatePublished, ReviewReference: "https://github.com/acme/alpha/pull/41", StartedAt: testClock.instant, FinishedAt: testClock.instant},
		"beta":  {Status: lifecycle.StateStepFailed, StartedAt: testClock.instant, FinishedAt: testClock.instant},
	}

	testCases := []struct {
		name            string
		reprocess       bool
		expectedClones  []string
		expectedCarried []string
		expectedAlpha   string
	}{
		{
			name:            "carry_forward",
			expectedClones:  []string{"beta"},
			expectedCarried: []string{"alpha"},
			expectedAlpha:   "https://github.com/acme/alpha/pull/41",
		},
		{
			name:           "reprocess_published",
			reprocess:      true,
			expectedClones: []string{"alpha", "beta"},
			expectedAlpha:  "https://github.com/acme/alpha/pull/1",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			fixture := newOrchestratorFixture(subTest, nil)
			summary, persisted, runError := fixture.run(subTest, context.Background(), priorDocument, orchestrator.Options{Concurrency: 1, ReprocessPublished: testCase.reprocess})
			require.NoError(subTest, runError)
			require.Equal(subTest, testCase.expectedCarried, summary.CarriedForward)
			require.ElementsMatch(subTest, testCase.expectedClones, fixture.clonedTargets())

			alphaResult, _ := persisted.Result("alpha")
			require.Equal(subTest, testCase.expectedAlpha, alphaResult.ReviewReference)
			betaResult, _ := persisted.Result("beta")
			require.Equal(subTest, lifecycle.StatePublished, betaResult.Status)

			backupDocument, backupError := ledger.Load(summary.BackupPath)
			require.NoError(subTest, backupError)
			backupBeta, _ := backupDocument.Result("beta")
			require.Equal(subTest, lifecycle.StateStepFailed, backupBeta.Status)
		})
	}
}

func TestRunStopsLaunchingWhenInterrupted(testInstance *testing.T) {
	priorDocument := newTestDocument("a", "b", "c")
	priorDocument.Results = map[string]lifecycle.TargetResult{
		"b": {
			Status:     lifecycle.StateStepFailed,
			Failure:    &lifecycle.FailureDetail{Kind: lifecycle.FailureKindStep, Message: "step \"Edit and commit\" exited with code 2"},
			StartedAt:  testClock.instant,
			FinishedAt: testClock.instant,
		},
	}
	fixture := newOrchestratorFixture(testInstance, nil)
	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	summary, persisted, runError := fixture.run(testInstance, cancelledContext, priorDocument, orchestrator.Options{})
	require.ErrorIs(testInstance, runError, orchestrator.ErrRunInterrupted)
	require.Equal(testInstance, []string{"a", "b", "c"}, summary.NotLaunched)
	require.Empty(testInstance, fixture.clonedTargets())
	require.FileExists(testInstance, summary.BackupPath)

	require.Len(testInstance, persisted.Results, 1)
	keptResult, found := persisted.Result("b")
	require.True(testInstance, found)
	require.Equal(testInstance, lifecycle.StateStepFailed, keptResult.Status)
	require.Equal(testInstance, "step \"Edit and commit\" exited with code 2", keptResult.Failure.Message)
	require.NotNil(testInstance, persisted.Run)
	require.Equal(testInstance, testRunIdentifierConstant, persisted.Run.ID)
}

func remoteBranchRunner(pushedTargets ...string) func(runner *testsupport.ScriptedRunner) {
	return func(runner *testsupport.ScriptedRunner) {
		runner.OnFunc(execshell.CommandGit, []string{"ls-remote"}, func(command execshell.ShellCommand) testsupport.ScriptedResponse {
			for _, targetName := range pushedTargets {
				if strings.HasSuffix(command.Details.WorkingDirectory, filepath.Join(targetName, workspace.RepositoryDirectoryNameConstant)) {
					return testsupport.ScriptedResponse{StandardOutput: "abc123\trefs/heads/" + testBranchNameConstant + "\n"}
				}
			}
			return testsupport.ScriptedResponse{}
		})
	}
}

func TestRunResumesReviewForPushedBranches(testInstance *testing.T) {
	priorDocument := newTestDocument("alpha", "beta")
	priorDocument.Results = map[string]lifecycle.TargetResult{
		"alpha": {
			Status:     lifecycle.StatePublishFailed,
			Failure:    &lifecycle.FailureDetail{Kind: lifecycle.FailureKindPublish, Stage: lifecycle.PublishStageCreateReview, Message: "gh: rate limited"},
			StartedAt:  testClock.instant,
			FinishedAt: testClock.instant,
		},
		"beta": {
			Status:     lifecycle.StatePublishFailed,
			Failure:    &lifecycle.FailureDetail{Kind: lifecycle.FailureKindPublish, Stage: lifecycle.PublishStagePush, Message: "permission denied"},
			StartedAt:  testClock.instant,
			FinishedAt: testClock.instant,
		},
	}
	fixture := newOrchestratorFixture(testInstance, remoteBranchRunner("alpha"))

	summary, persisted, runError := fixture.run(testInstance, context.Background(), priorDocument, orchestrator.Options{Concurrency: 1})
	require.NoError(testInstance, runError)
	require.Equal(testInstance, []string{"alpha"}, summary.Resumed)

	for _, targetName := range []string{"alpha", "beta"} {
		result, found := persisted.Result(targetName)
		require.True(testInstance, found)
		require.Equal(testInstance, lifecycle.StatePublished, result.Status, targetName)
		require.Equal(testInstance, fmt.Sprintf("https://github.com/acme/%s/pull/1", targetName), result.ReviewReference)
	}

	require.Empty(testInstance, fixture.runner.ScriptLines(fixture.repositoryPath("alpha")))
	for _, command := range fixture.runner.InvocationsMatching(execshell.CommandGit, "push") {
		require.Equal(testInstance, fixture.repositoryPath("beta"), command.Details.WorkingDirectory)
	}
	alphaCheckouts := []string{}
	for _, command := range fixture.runner.InvocationsMatching(execshell.CommandGit, "checkout") {
		if command.Details.WorkingDirectory == fixture.repositoryPath("alpha") {
			alphaCheckouts = append(alphaCheckouts, strings.Join(command.Details.Arguments, " "))
		}
	}
	require.Equal(testInstance, []string{"checkout --track -b " + testBranchNameConstant + " origin/" + testBranchNameConstant}, alphaCheckouts)
	require.Len(testInstance, fixture.runner.InvocationsMatching(execshell.CommandGitHub, "pr", "create"), 2)
}

func TestRunResumeFailsWhenPushedBranchDisappeared(testInstance *testing.T) {
	priorDocument := newTestDocument("alpha")
	priorDocument.Results = map[string]lifecycle.TargetResult{
		"alpha": {Status: lifecycle.StatePublishSkipped, SkippedStage: lifecycle.PublishStageCreateReview, StartedAt: testClock.instant, FinishedAt: testClock.instant},
	}
	fixture := newOrchestratorFixture(testInstance, nil)

	summary, persisted, runError := fixture.run(testInstance, context.Background(), priorDocument, orchestrator.Options{})
	require.ErrorIs(testInstance, runError, orchestrator.ErrTargetsFailed)
	require.Equal(testInstance, []string{"alpha"}, summary.Resumed)

	result, _ := persisted.Result("alpha")
	require.Equal(testInstance, lifecycle.StateWorkspaceFailed, result.Status)
	require.Contains(testInstance, result.Failure.Message, "is missing on the remote")
	require.Empty(testInstance, fixture.runner.InvocationsMatching(execshell.CommandGitHub, "pr", "create"))
}

func TestRunHonorsPublishOptions(testInstance *testing.T) {
	testCases := []struct {
		name          string
		options       publish.Options
		expectedStage lifecycle.PublishStage
		expectPushes  int
	}{
		{name: "dry_run", options: publish.Options{DryRun: true}, expectedStage: lifecycle.PublishStagePush},
		{name: "skip_push", options: publish.Options{SkipPush: true}, expectedStage: lifecycle.PublishStagePush},
		{name: "skip_pull_request", options: publish.Options{SkipPullRequest: true}, expectedStage: lifecycle.PublishStageCreateReview, expectPushes: 2},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(subTest *testing.T) {
			fixture := newOrchestratorFixture(subTest, nil)
			summary, persisted, runError := fixture.run(subTest, context.Background(), newTestDocument("a", "b"), orchestrator.Options{Publish: testCase.options})
			require.NoError(subTest, runError)
			require.Empty(subTest, summary.FailedTargets())

			for _, targetName := range []string{"a", "b"} {
				result, _ := persisted.Result(targetName)
				require.Equal(subTest, lifecycle.StatePublishSkipped, result.Status)
				require.Equal(subTest, testCase.expectedStage, result.SkippedStage)
				require.NotEmpty(subTest, result.Note)
			}
			require.Len(subTest, fixture.runner.InvocationsMatching(execshell.CommandGit, "push"), testCase.expectPushes)
			require.Empty(subTest, fixture.runner.InvocationsMatching(execshell.CommandGitHub, "pr", "create"))
		})
	}
}

func TestRunRequestsReviewAfterSkippedPullRequest(testInstance *testing.T) {
	firstFixture := newOrchestratorFixture(testInstance, nil)
	_, skippedDocument, firstRunError := firstFixture.run(testInstance, context.Background(), newTestDocument("a"), orchestrator.Options{Publish: publish.Options{SkipPullRequest: true}})
	require.NoError(testInstance, firstRunError)

	secondFixture := newOrchestratorFixture(testInstance, remoteBranchRunner("a"))
	summary, persisted, secondRunError := secondFixture.run(testInstance, context.Background(), skippedDocument, orchestrator.Options{})
	require.NoError(testInstance, secondRunError)
	require.Equal(testInstance, []string{"a"}, summary.Resumed)

	result, _ := persisted.Result("a")
	require.Equal(testInstance, lifecycle.StatePublished, result.Status)
	require.Empty(testInstance, result.SkippedStage)
	require.Empty(testInstance, secondFixture.runner.InvocationsMatching(execshell.CommandGit, "push"))
}

func TestRunRejectsConflictingPublishOptions(testInstance *testing.T) {
	fixture := newOrchestratorFixture(testInstance, nil)
	statusLedger := ledger.New(zap.NewNop(), fixture.documentPath, newTestDocument("a"), testClock)

	_, runError := fixture.orchestrator.Run(context.Background(), newTestDocument("a").Definition(), statusLedger, orchestrator.Options{Publish: publish.Options{DryRun: true, SkipPullRequest: true}})
	require.ErrorIs(testInstance, runError, publish.ErrConflictingOptions)
	require.NoFileExists(testInstance, fixture.documentPath)
	require.Empty(testInstance, fixture.runner.Invocations())
}

func TestRunStopsLaunchingWhenLedgerFails(testInstance *testing.T) {
	var documentDirectory string
	fixture := newOrchestratorFixture(testInstance, func(runner *testsupport.ScriptedRunner) {
		runner.OnFunc(execshell.CommandGitHub, []string{"pr", "create"}, func(command execshell.ShellCommand) testsupport.ScriptedResponse {
			_ = os.RemoveAll(documentDirectory)
			return testsupport.ScriptedResponse{StandardOutput: "https://github.com/acme/repo/pull/1\n"}
		})
	})
	documentDirectory = filepath.Dir(fixture.documentPath)

	summary, _, runError := fixture.run(testInstance, context.Background(), newTestDocument("a", "b", "c"), orchestrator.Options{Concurrency: 1})
	var ledgerError ledger.LedgerError
	require.ErrorAs(testInstance, runError, &ledgerError)
	require.NotEmpty(testInstance, summary.NotLaunched)
	require.LessOrEqual(testInstance, len(fixture.clonedTargets()), 2)
	require.NotEmpty(testInstance, fixture.logs.FilterMessage("status ledger failed, no further targets will launch").All())
}

func TestRunFailsBeforeLaunchingWhenSnapshotFails(testInstance *testing.T) {
	fixture := newOrchestratorFixture(testInstance, nil)
	missingPath := filepath.Join(testInstance.TempDir(), "absent", "migration.yaml")
	statusLedger := ledger.New(zap.NewNop(), missingPath, newTestDocument("a"), testClock)

	_, runError := fixture.orchestrator.Run(context.Background(), newTestDocument("a").Definition(), statusLedger, orchestrator.Options{})
	var ledgerError ledger.LedgerError
	require.ErrorAs(testInstance, runError, &ledgerError)
	require.Equal(testInstance, "snapshot", ledgerError.Operation)
	require.Empty(testInstance, fixture.runner.Invocations())
	require.NoDirExists(testInstance, fixture.workDirectory)
}
