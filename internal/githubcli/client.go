package githubcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/temirov/clu/internal/execshell"
)

const (
	pullRequestSubcommandConstant           = "pr"
	createSubcommandConstant                = "create"
	viewSubcommandConstant                  = "view"
	repoFlagConstant                        = "--repo"
	headFlagConstant                        = "--head"
	titleFlagConstant                       = "--title"
	bodyFlagConstant                        = "--body"
	jsonFlagConstant                        = "--json"
	pullRequestViewJSONFieldsConstant       = "state,mergeable,reviewDecision,statusCheckRollup,url"
	webURLPrefixConstant                    = "http"
	headBranchFieldNameConstant             = "head_branch"
	titleFieldNameConstant                  = "title"
	referenceFieldNameConstant              = "reference"
	requiredValueMessageConstant            = "value required"
	missingURLMessageConstant               = "no pull request url in output"
	executorNotConfiguredMessageConstant    = "github cli executor not configured"
	operationErrorMessageTemplateConstant   = "%s operation failed"
	operationErrorWithCauseTemplateConstant = "%s operation failed: %s"
	responseDecodingErrorTemplateConstant   = "%s response decoding failed: %s"
	invalidInputErrorTemplateConstant       = "%s: %s"
	createPullRequestOperationNameConstant  = OperationName("CreatePullRequest")
	viewPullRequestOperationNameConstant    = OperationName("ViewPullRequest")
)

const (
	pullRequestStateMergedConstant         = "MERGED"
	pullRequestStateClosedConstant         = "CLOSED"
	mergeableStateMergeableConstant        = "MERGEABLE"
	mergeableStateUnknownConstant          = "UNKNOWN"
	reviewDecisionRequiredConstant         = "REVIEW_REQUIRED"
	reviewDecisionChangesRequestedConstant = "CHANGES_REQUESTED"
)

// OperationName describes a named GitHub CLI workflow supported by the client.
type OperationName string

// ReviewState classifies an opened pull request for status reporting.
type ReviewState string

// Review state enumerations.
const (
	ReviewStateMerged        ReviewState = ReviewState("merged")
	ReviewStateMergeable     ReviewState = ReviewState("mergeable")
	ReviewStateNeedsApproval ReviewState = ReviewState("needs_approval")
	ReviewStateChecksFailed  ReviewState = ReviewState("checks_failed")
	ReviewStateClosed        ReviewState = ReviewState("closed")
)

var failingCheckOutcomes = map[string]struct{}{
	"FAILURE":         {},
	"ERROR":           {},
	"CANCELLED":       {},
	"TIMED_OUT":       {},
	"ACTION_REQUIRED": {},
	"STARTUP_FAILURE": {},
}

// PullRequestRequest describes a pull request to open from a pushed branch.
type PullRequestRequest struct {
	// Repository is the owner/name slug. When empty gh infers it from WorkingDirectory.
	Repository       string
	WorkingDirectory string
	HeadBranch       string
	Title            string
	Body             string
	StandardOutput   io.Writer
	StandardError    io.Writer
}

// PullRequestStatus captures the review progress of a pull request.
type PullRequestStatus struct {
	URL            string
	State          string
	ReviewDecision string
	Classification ReviewState
}

// GitHubCommandExecutor is the minimal interface required from execshell.ShellExecutor.
type GitHubCommandExecutor interface {
	ExecuteGitHubCLI(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Client coordinates GitHub CLI invocations through execshell.
type Client struct {
	executor GitHubCommandExecutor
}

var (
	// ErrExecutorNotConfigured indicates the client was constructed without an executor.
	ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
)

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps execution issues for GitHub CLI operations.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(operationErrorMessageTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(operationErrorWithCauseTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// ResponseDecodingError indicates gh produced output the client could not interpret.
type ResponseDecodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the decoding failure.
func (decodingError ResponseDecodingError) Error() string {
	return fmt.Sprintf(responseDecodingErrorTemplateConstant, decodingError.Operation, decodingError.Cause)
}

// Unwrap exposes the underlying error.
func (decodingError ResponseDecodingError) Unwrap() error {
	return decodingError.Cause
}

// NewClient constructs a GitHub CLI client.
func NewClient(executor GitHubCommandExecutor) (*Client, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	return &Client{executor: executor}, nil
}

// CreatePullRequest opens a pull request with gh pr create and returns its URL.
func (client *Client) CreatePullRequest(executionContext context.Context, request PullRequestRequest) (string, error) {
	headBranch := strings.TrimSpace(request.HeadBranch)
	if len(headBranch) == 0 {
		return "", InvalidInputError{FieldName: headBranchFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(request.Title)) == 0 {
		return "", InvalidInputError{FieldName: titleFieldNameConstant, Message: requiredValueMessageConstant}
	}

	arguments := []string{pullRequestSubcommandConstant, createSubcommandConstant}
	if repository := strings.TrimSpace(request.Repository); len(repository) > 0 {
		arguments = append(arguments, repoFlagConstant, repository)
	}
	arguments = append(arguments,
		headFlagConstant, headBranch,
		titleFlagConstant, request.Title,
		bodyFlagConstant, request.Body,
	)

	executionResult, executionError := client.executor.ExecuteGitHubCLI(executionContext, execshell.CommandDetails{
		Arguments:          arguments,
		WorkingDirectory:   request.WorkingDirectory,
		StandardOutputSink: request.StandardOutput,
		StandardErrorSink:  request.StandardError,
	})
	if executionError != nil {
		return "", OperationError{Operation: createPullRequestOperationNameConstant, Cause: executionError}
	}

	pullRequestURL := lastURLLine(executionResult.StandardOutput)
	if len(pullRequestURL) == 0 {
		return "", ResponseDecodingError{Operation: createPullRequestOperationNameConstant, Cause: errors.New(missingURLMessageConstant)}
	}
	return pullRequestURL, nil
}

// ViewPullRequest retrieves the state of a pull request identified by URL and classifies it.
func (client *Client) ViewPullRequest(executionContext context.Context, reference string) (PullRequestStatus, error) {
	trimmedReference := strings.TrimSpace(reference)
	if len(trimmedReference) == 0 {
		return PullRequestStatus{}, InvalidInputError{FieldName: referenceFieldNameConstant, Message: requiredValueMessageConstant}
	}

	executionResult, executionError := client.executor.ExecuteGitHubCLI(executionContext, execshell.CommandDetails{
		Arguments: []string{
			pullRequestSubcommandConstant,
			viewSubcommandConstant,
			trimmedReference,
			jsonFlagConstant,
			pullRequestViewJSONFieldsConstant,
		},
	})
	if executionError != nil {
		return PullRequestStatus{}, OperationError{Operation: viewPullRequestOperationNameConstant, Cause: executionError}
	}

	var response struct {
		State             string `json:"state"`
		Mergeable         string `json:"mergeable"`
		ReviewDecision    string `json:"reviewDecision"`
		URL               string `json:"url"`
		StatusCheckRollup []struct {
			Conclusion string `json:"conclusion"`
			State      string `json:"state"`
		} `json:"statusCheckRollup"`
	}

	decodingError := json.Unmarshal([]byte(executionResult.StandardOutput), &response)
	if decodingError != nil {
		return PullRequestStatus{}, ResponseDecodingError{Operation: viewPullRequestOperationNameConstant, Cause: decodingError}
	}

	checksFailed := false
	for _, check := range response.StatusCheckRollup {
		if isFailingCheckOutcome(check.Conclusion) || isFailingCheckOutcome(check.State) {
			checksFailed = true
			break
		}
	}

	status := PullRequestStatus{URL: response.URL, State: response.State, ReviewDecision: response.ReviewDecision}
	switch {
	case strings.EqualFold(response.State, pullRequestStateMergedConstant):
		status.Classification = ReviewStateMerged
	case strings.EqualFold(response.State, pullRequestStateClosedConstant):
		status.Classification = ReviewStateClosed
	case checksFailed:
		status.Classification = ReviewStateChecksFailed
	case response.ReviewDecision == reviewDecisionRequiredConstant, response.ReviewDecision == reviewDecisionChangesRequestedConstant:
		status.Classification = ReviewStateNeedsApproval
	case len(response.Mergeable) == 0,
		strings.EqualFold(response.Mergeable, mergeableStateMergeableConstant),
		strings.EqualFold(response.Mergeable, mergeableStateUnknownConstant):
		status.Classification = ReviewStateMergeable
	default:
		status.Classification = ReviewStateChecksFailed
	}
	if len(status.URL) == 0 {
		status.URL = trimmedReference
	}
	return status, nil
}

func isFailingCheckOutcome(outcome string) bool {
	_, failing := failingCheckOutcomes[strings.ToUpper(strings.TrimSpace(outcome))]
	return failing
}

func lastURLLine(output string) string {
	lines := strings.Split(output, "\n")
	for lineIndex := len(lines) - 1; lineIndex >= 0; lineIndex-- {
		trimmedLine := strings.TrimSpace(lines[lineIndex])
		if strings.HasPrefix(trimmedLine, webURLPrefixConstant) {
			return trimmedLine
		}
	}
	return ""
}
