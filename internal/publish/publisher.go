// Package publish pushes a finished migration branch and opens its pull request.
package publish

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/clu/internal/definition"
	"github.com/temirov/clu/internal/githubcli"
	"github.com/temirov/clu/internal/gitrepo"
	"github.com/temirov/clu/internal/lifecycle"
	"github.com/temirov/clu/internal/workspace"
)

const (
	reviewRequesterNotConfiguredMessageConstant = "publisher review requester not configured"
	publishErrorTemplateConstant                = "publish failed during %s: %v"
	noCommitsMessageConstant                    = "no commits to publish"
	conflictingOptionsMessageConstant           = "at most one publish option may be set"
	dryRunNoteConstant                          = "dry run: branch not pushed and no pull request requested"
	dryRunResumedNoteConstant                   = "dry run: no pull request requested for the pushed branch"
	pushSkippedNoteConstant                     = "push skipped: branch not pushed and no pull request requested"
	reviewSkippedNoteConstant                   = "pull request skipped: branch pushed"
	publishSkippedLogMessageConstant            = "publish held back by run options"
	publishResumedLogMessageConstant            = "requesting review for previously pushed branch"
	publishStartedLogMessageConstant            = "publishing branch"
	publishCompletedLogMessageConstant          = "pull request created"
	publishFailedLogMessageConstant             = "publish failed"
	logFieldTargetConstant                      = "target"
	logFieldBranchConstant                      = "branch"
	logFieldStageConstant                       = "stage"
	logFieldReviewReferenceConstant             = "review_reference"
	logFieldCommitCountConstant                 = "commit_count"
)

var (
	// ErrReviewRequesterNotConfigured indicates the publisher was constructed without a review provider.
	ErrReviewRequesterNotConfigured = errors.New(reviewRequesterNotConfiguredMessageConstant)
	// ErrNoCommits indicates the migration branch has nothing to push.
	ErrNoCommits = errors.New(noCommitsMessageConstant)
	// ErrConflictingOptions indicates more than one publish option was selected.
	ErrConflictingOptions = errors.New(conflictingOptionsMessageConstant)
)

// Options hold back parts of publishing. At most one may be set.
type Options struct {
	// DryRun neither pushes the branch nor requests a review.
	DryRun bool
	// SkipPush leaves the branch local, so no review is requested either.
	SkipPush bool
	// SkipPullRequest pushes the branch without requesting a review.
	SkipPullRequest bool
}

// Validate rejects combined options.
func (options Options) Validate() error {
	selected := 0
	for _, enabled := range []bool{options.DryRun, options.SkipPush, options.SkipPullRequest} {
		if enabled {
			selected++
		}
	}
	if selected > 1 {
		return ErrConflictingOptions
	}
	return nil
}

// PublishError reports a failed push or pull request creation.
type PublishError struct {
	Stage lifecycle.PublishStage
	Cause error
}

// Error describes the failed stage.
func (publishError PublishError) Error() string {
	return fmt.Sprintf(publishErrorTemplateConstant, publishError.Stage, publishError.Cause)
}

// Unwrap exposes the underlying cause.
func (publishError PublishError) Unwrap() error {
	return publishError.Cause
}

// ReviewRequester opens pull requests.
type ReviewRequester interface {
	CreatePullRequest(executionContext context.Context, request githubcli.PullRequestRequest) (string, error)
}

// Request describes one target ready to publish.
type Request struct {
	Workspace   *workspace.Workspace
	Target      definition.Target
	PullRequest definition.PullRequest
	// Machine must be in the steps_complete state for Publish and in the cloned state for Resume.
	Machine *lifecycle.Machine
	Options Options
}

// Publisher pushes branches and requests reviews.
type Publisher struct {
	logger  *zap.Logger
	reviews ReviewRequester
}

// NewPublisher constructs a publisher.
func NewPublisher(logger *zap.Logger, reviews ReviewRequester) (*Publisher, error) {
	if reviews == nil {
		return nil, ErrReviewRequesterNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{logger: logger, reviews: reviews}, nil
}

// Publish pushes the workspace branch and opens a pull request, returning its URL.
// The request's machine ends in published, publish_skipped, or publish_failed; a skipped
// publish returns an empty URL and no error.
func (publisher *Publisher) Publish(executionContext context.Context, request Request) (string, error) {
	targetLogger := publisher.targetLogger(request)
	if transitionError := request.Machine.StartPublishing(); transitionError != nil {
		return "", transitionError
	}

	repository := request.Workspace.Repository
	commitCount, countError := repository.CommitCount(executionContext, request.Workspace.RepositoryPath, request.Workspace.BaseCommit)
	if countError != nil {
		return fail(targetLogger, request.Machine, lifecycle.PublishStagePush, countError)
	}
	if commitCount == 0 {
		return fail(targetLogger, request.Machine, lifecycle.PublishStagePush, ErrNoCommits)
	}

	switch {
	case request.Options.DryRun:
		return skip(targetLogger, request.Machine, lifecycle.PublishStagePush, dryRunNoteConstant)
	case request.Options.SkipPush:
		return skip(targetLogger, request.Machine, lifecycle.PublishStagePush, pushSkippedNoteConstant)
	}

	targetLogger.Info(publishStartedLogMessageConstant, zap.Int(logFieldCommitCountConstant, commitCount))
	if pushError := repository.PushBranch(executionContext, request.Workspace.RepositoryPath, request.Workspace.BranchName); pushError != nil {
		return fail(targetLogger, request.Machine, lifecycle.PublishStagePush, pushError)
	}

	if request.Options.SkipPullRequest {
		return skip(targetLogger, request.Machine, lifecycle.PublishStageCreateReview, reviewSkippedNoteConstant)
	}
	return publisher.requestReview(executionContext, targetLogger, request)
}

// Resume opens the pull request for a branch an earlier run already pushed.
// Nothing is pushed; the request's machine ends in published, publish_skipped, or publish_failed.
func (publisher *Publisher) Resume(executionContext context.Context, request Request) (string, error) {
	targetLogger := publisher.targetLogger(request)
	if transitionError := request.Machine.ResumePublishing(); transitionError != nil {
		return "", transitionError
	}
	switch {
	case request.Options.DryRun:
		return skip(targetLogger, request.Machine, lifecycle.PublishStageCreateReview, dryRunResumedNoteConstant)
	case request.Options.SkipPullRequest:
		return skip(targetLogger, request.Machine, lifecycle.PublishStageCreateReview, reviewSkippedNoteConstant)
	}
	targetLogger.Info(publishResumedLogMessageConstant)
	return publisher.requestReview(executionContext, targetLogger, request)
}

func (publisher *Publisher) requestReview(executionContext context.Context, targetLogger *zap.Logger, request Request) (string, error) {
	reviewReference, reviewError := publisher.reviews.CreatePullRequest(executionContext, githubcli.PullRequestRequest{
		Repository:       repositorySlug(request.Target.Repository),
		WorkingDirectory: request.Workspace.RepositoryPath,
		HeadBranch:       request.Workspace.BranchName,
		Title:            request.PullRequest.Title,
		Body:             request.PullRequest.Description,
		StandardOutput:   request.Workspace.StandardOutput,
		StandardError:    request.Workspace.StandardError,
	})
	if reviewError != nil {
		return fail(targetLogger, request.Machine, lifecycle.PublishStageCreateReview, reviewError)
	}

	if transitionError := request.Machine.Publish(reviewReference); transitionError != nil {
		return "", transitionError
	}
	targetLogger.Info(publishCompletedLogMessageConstant, zap.String(logFieldReviewReferenceConstant, reviewReference))
	return reviewReference, nil
}

func (publisher *Publisher) targetLogger(request Request) *zap.Logger {
	return publisher.logger.With(
		zap.String(logFieldTargetConstant, request.Workspace.TargetName),
		zap.String(logFieldBranchConstant, request.Workspace.BranchName),
	)
}

func fail(targetLogger *zap.Logger, machine *lifecycle.Machine, stage lifecycle.PublishStage, cause error) (string, error) {
	failure := PublishError{Stage: stage, Cause: cause}
	targetLogger.Warn(publishFailedLogMessageConstant, zap.String(logFieldStageConstant, string(stage)), zap.Error(cause))
	return "", errors.Join(failure, machine.FailPublish(stage, failure.Error()))
}

func skip(targetLogger *zap.Logger, machine *lifecycle.Machine, stage lifecycle.PublishStage, note string) (string, error) {
	targetLogger.Info(publishSkippedLogMessageConstant, zap.String(logFieldStageConstant, string(stage)))
	return "", machine.SkipPublish(stage, note)
}

// repositorySlug returns owner/repository for GitHub remotes and an empty string otherwise,
// letting the GitHub CLI infer the repository from the clone.
func repositorySlug(remote string) string {
	remoteURL, parseError := gitrepo.ParseRemoteURL(remote)
	if parseError != nil {
		return ""
	}
	return remoteURL.Slug()
}
