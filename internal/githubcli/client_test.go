package githubcli_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/clu/internal/execshell"
	"github.com/temirov/clu/internal/githubcli"
)

const (
	testRepositoryIdentifierConstant = "acme/alpha"
	testPullRequestHeadConstant      = "feature/upgrade"
	testPullRequestTitleConstant     = "Upgrade dependencies"
	testPullRequestBodyConstant      = "Automated upgrade."
	testPullRequestURLConstant       = "https://github.com/acme/alpha/pull/7"
	testWorkingDirectoryConstant     = "/work/alpha/repo"
)

type stubGitHubExecutor struct {
	executeFunc     func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error)
	recordedDetails []execshell.CommandDetails
}

func (executor *stubGitHubExecutor) ExecuteGitHubCLI(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.recordedDetails = append(executor.recordedDetails, details)
	if executor.executeFunc != nil {
		return executor.executeFunc(executionContext, details)
	}
	return execshell.ExecutionResult{}, nil
}

func respondWith(output string) func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
		return execshell.ExecutionResult{StandardOutput: output}, nil
	}
}

func TestNewClientValidation(testInstance *testing.T) {
	testInstance.Run("nil_executor", func(testInstance *testing.T) {
		client, creationError := githubcli.NewClient(nil)
		require.Error(testInstance, creationError)
		require.ErrorIs(testInstance, creationError, githubcli.ErrExecutorNotConfigured)
		require.Nil(testInstance, client)
	})
}

func TestCreatePullRequest(testInstance *testing.T) {
	testCases := []struct {
		name              string
		request           githubcli.PullRequestRequest
		executor          *stubGitHubExecutor
		expectedURL       string
		expectedArguments []string
		errorType         any
	}{
		{
			name: "with_repository",
			request: githubcli.PullRequestRequest{
				Repository:       testRepositoryIdentifierConstant,
				WorkingDirectory: testWorkingDirectoryConstant,
				HeadBranch:       testPullRequestHeadConstant,
				Title:            testPullRequestTitleConstant,
				Body:             testPullRequestBodyConstant,
			},
			executor:    &stubGitHubExecutor{executeFunc: respondWith("Creating pull request\n" + testPullRequestURLConstant + "\n")},
			expectedURL: testPullRequestURLConstant,
			expectedArguments: []string{
				"pr", "create", "--repo", testRepositoryIdentifierConstant,
				"--head", testPullRequestHeadConstant,
				"--title", testPullRequestTitleConstant,
				"--body", testPullRequestBodyConstant,
			},
		},
		{
			name: "inferred_repository",
			request: githubcli.PullRequestRequest{
				WorkingDirectory: testWorkingDirectoryConstant,
				HeadBranch:       testPullRequestHeadConstant,
				Title:            testPullRequestTitleConstant,
			},
			executor:    &stubGitHubExecutor{executeFunc: respondWith(testPullRequestURLConstant)},
			expectedURL: testPullRequestURLConstant,
			expectedArguments: []string{
				"pr", "create",
				"--head", testPullRequestHeadConstant,
				"--title", testPullRequestTitleConstant,
				"--body", "",
			},
		},
		{
			name:      "missing_url",
			request:   githubcli.PullRequestRequest{HeadBranch: testPullRequestHeadConstant, Title: testPullRequestTitleConstant},
			executor:  &stubGitHubExecutor{executeFunc: respondWith("done\n")},
			errorType: githubcli.ResponseDecodingError{},
		},
		{
			name:    "command_failure",
			request: githubcli.PullRequestRequest{HeadBranch: testPullRequestHeadConstant, Title: testPullRequestTitleConstant},
			executor: &stubGitHubExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
				return execshell.ExecutionResult{}, execshell.CommandFailedError{Command: execshell.ShellCommand{Name: execshell.CommandGitHub}, Result: execshell.ExecutionResult{ExitCode: 1}}
			}},
			errorType: githubcli.OperationError{},
		},
		{
			name:      "head_validation",
			request:   githubcli.PullRequestRequest{Title: testPullRequestTitleConstant},
			executor:  &stubGitHubExecutor{},
			errorType: githubcli.InvalidInputError{},
		},
		{
			name:      "title_validation",
			request:   githubcli.PullRequestRequest{HeadBranch: testPullRequestHeadConstant, Title: " "},
			executor:  &stubGitHubExecutor{},
			errorType: githubcli.InvalidInputError{},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			client, creationError := githubcli.NewClient(testCase.executor)
			require.NoError(testInstance, creationError)

			pullRequestURL, createError := client.CreatePullRequest(context.Background(), testCase.request)
			if testCase.errorType != nil {
				require.Error(testInstance, createError)
				require.IsType(testInstance, testCase.errorType, createError)
				return
			}
			require.NoError(testInstance, createError)
			require.Equal(testInstance, testCase.expectedURL, pullRequestURL)
			require.Len(testInstance, testCase.executor.recordedDetails, 1)
			require.Equal(testInstance, testCase.expectedArguments, testCase.executor.recordedDetails[0].Arguments)
			require.Equal(testInstance, testWorkingDirectoryConstant, testCase.executor.recordedDetails[0].WorkingDirectory)
		})
	}
}

func TestCreatePullRequestForwardsOutputSinks(testInstance *testing.T) {
	executor := &stubGitHubExecutor{executeFunc: respondWith(testPullRequestURLConstant)}
	client, creationError := githubcli.NewClient(executor)
	require.NoError(testInstance, creationError)

	var standardOutput bytes.Buffer
	var standardError bytes.Buffer
	_, createError := client.CreatePullRequest(context.Background(), githubcli.PullRequestRequest{
		HeadBranch:     testPullRequestHeadConstant,
		Title:          testPullRequestTitleConstant,
		StandardOutput: &standardOutput,
		StandardError:  &standardError,
	})
	require.NoError(testInstance, createError)
	require.Same(testInstance, &standardOutput, executor.recordedDetails[0].StandardOutputSink)
	require.Same(testInstance, &standardError, executor.recordedDetails[0].StandardErrorSink)
}

func TestViewPullRequestClassification(testInstance *testing.T) {
	testCases := []struct {
		name                   string
		output                 string
		expectedClassification githubcli.ReviewState
	}{
		{
			name:                   "merged",
			output:                 `{"state":"MERGED","url":"https://github.com/acme/alpha/pull/7"}`,
			expectedClassification: githubcli.ReviewStateMerged,
		},
		{
			name:                   "closed",
			output:                 `{"state":"CLOSED","url":"https://github.com/acme/alpha/pull/7"}`,
			expectedClassification: githubcli.ReviewStateClosed,
		},
		{
			name:                   "checks_failed",
			output:                 `{"state":"OPEN","mergeable":"MERGEABLE","reviewDecision":"APPROVED","statusCheckRollup":[{"conclusion":"SUCCESS"},{"conclusion":"FAILURE"}]}`,
			expectedClassification: githubcli.ReviewStateChecksFailed,
		},
		{
			name:                   "status_context_error",
			output:                 `{"state":"OPEN","mergeable":"MERGEABLE","statusCheckRollup":[{"state":"ERROR"}]}`,
			expectedClassification: githubcli.ReviewStateChecksFailed,
		},
		{
			name:                   "needs_approval",
			output:                 `{"state":"OPEN","mergeable":"MERGEABLE","reviewDecision":"REVIEW_REQUIRED","statusCheckRollup":[{"conclusion":"SUCCESS"}]}`,
			expectedClassification: githubcli.ReviewStateNeedsApproval,
		},
		{
			name:                   "mergeable",
			output:                 `{"state":"OPEN","mergeable":"MERGEABLE","reviewDecision":"APPROVED","statusCheckRollup":[{"state":"PENDING"}]}`,
			expectedClassification: githubcli.ReviewStateMergeable,
		},
		{
			name:                   "conflicting",
			output:                 `{"state":"OPEN","mergeable":"CONFLICTING","reviewDecision":"APPROVED"}`,
			expectedClassification: githubcli.ReviewStateChecksFailed,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &stubGitHubExecutor{executeFunc: respondWith(testCase.output)}
			client, creationError := githubcli.NewClient(executor)
			require.NoError(testInstance, creationError)

			status, viewError := client.ViewPullRequest(context.Background(), testPullRequestURLConstant)
			require.NoError(testInstance, viewError)
			require.Equal(testInstance, testCase.expectedClassification, status.Classification)
			require.Equal(testInstance, testPullRequestURLConstant, status.URL)
			require.Equal(testInstance, []string{"pr", "view", testPullRequestURLConstant, "--json", "state,mergeable,reviewDecision,statusCheckRollup,url"}, executor.recordedDetails[0].Arguments)
		})
	}
}

func TestViewPullRequestErrors(testInstance *testing.T) {
	client, creationError := githubcli.NewClient(&stubGitHubExecutor{executeFunc: respondWith("not-json")})
	require.NoError(testInstance, creationError)

	_, decodeError := client.ViewPullRequest(context.Background(), testPullRequestURLConstant)
	require.IsType(testInstance, githubcli.ResponseDecodingError{}, decodeError)

	_, inputError := client.ViewPullRequest(context.Background(), " ")
	require.IsType(testInstance, githubcli.InvalidInputError{}, inputError)
}
