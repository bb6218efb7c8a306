package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/clu/internal/definition"
	"github.com/temirov/clu/internal/execshell"
	"github.com/temirov/clu/internal/githubcli"
	"github.com/temirov/clu/internal/ledger"
	"github.com/temirov/clu/internal/lifecycle"
	"github.com/temirov/clu/internal/report"
)

const (
	statusCommandUseConstant              = "check-status"
	statusCommandShortDescriptionConstant = "Render the recorded outcome of every target"
	statusCommandLongDescriptionConstant  = "check-status reads a status document written by run-migration and prints one row per target with its state, pull request, and failure detail. With --refresh the review state of every published pull request is queried and summarized."
	statusFlagNameConstant                = "status"
	statusFlagUsageConstant               = "Path to the status document (the definition a run wrote back)"
	refreshFlagNameConstant               = "refresh"
	refreshFlagUsageConstant              = "Query the review state of published pull requests"
	statusRequiredMessageConstant         = "--status is required"
	refreshConcurrencyConstant            = 4
	refreshFailedLogMessageConstant       = "unable to refresh pull request state"
	logFieldTargetConstant                = "target"
	logFieldReviewReferenceConstant       = "review_reference"
	newlineConstant                       = "\n"
)

// ErrStatusPathRequired indicates check-status was invoked without a status document path.
var ErrStatusPathRequired = errors.New(statusRequiredMessageConstant)

// PullRequestInspector reports the review state of an opened pull request.
type PullRequestInspector interface {
	ViewPullRequest(executionContext context.Context, reference string) (githubcli.PullRequestStatus, error)
}

// StatusCommandBuilder assembles the check-status command.
type StatusCommandBuilder struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	// Runner executes gh during --refresh; the operating system runner is used when nil.
	Runner execshell.CommandRunner
}

// Build constructs the check-status command.
func (builder *StatusCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           statusCommandUseConstant,
		Short:         statusCommandShortDescriptionConstant,
		Long:          statusCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runStatus,
	}

	command.Flags().String(statusFlagNameConstant, "", statusFlagUsageConstant)
	command.Flags().Bool(refreshFlagNameConstant, false, refreshFlagUsageConstant)

	return command, nil
}

func (builder *StatusCommandBuilder) runStatus(command *cobra.Command, arguments []string) error {
	statusPath := strings.TrimSpace(stringFlagValue(command, statusFlagNameConstant))
	if len(statusPath) == 0 {
		return ErrStatusPathRequired
	}
	statusPath = resolveCommandPath(command, statusPath)
	refresh, _ := command.Flags().GetBool(refreshFlagNameConstant)

	logger := resolveLogger(builder.LoggerProvider)

	document, loadError := ledger.Load(statusPath)
	if loadError != nil {
		return loadError
	}

	var reviewStates map[string]githubcli.ReviewState
	if refresh {
		shellExecutor, executorError := resolveShellExecutor(logger, builder.Runner, builder.HumanReadableLoggingProvider)
		if executorError != nil {
			return fmt.Errorf(executorCreationErrorTemplateConstant, executorError)
		}
		githubClient, githubError := githubcli.NewClient(shellExecutor)
		if githubError != nil {
			return fmt.Errorf(githubClientErrorTemplateConstant, githubError)
		}
		reviewStates = RefreshReviewStates(command.Context(), logger, githubClient, document)
	}

	output := command.OutOrStdout()
	renderer := report.NewRenderer(output)
	rows := report.BuildRows(document, reviewStates)
	if tableError := renderer.RenderTable(output, rows, refresh); tableError != nil {
		return tableError
	}
	if !refresh {
		return nil
	}
	if _, writeError := fmt.Fprint(output, newlineConstant); writeError != nil {
		return writeError
	}
	return renderer.RenderReviewSummary(output, rows)
}

// RefreshReviewStates queries the review state of every published target that has a review reference.
// Targets whose state cannot be retrieved are logged and left out of the result.
func RefreshReviewStates(executionContext context.Context, logger *zap.Logger, inspector PullRequestInspector, document definition.Document) map[string]githubcli.ReviewState {
	if logger == nil {
		logger = zap.NewNop()
	}

	var mutex sync.Mutex
	reviewStates := map[string]githubcli.ReviewState{}

	group, groupContext := errgroup.WithContext(executionContext)
	group.SetLimit(refreshConcurrencyConstant)
	for _, targetName := range document.Definition().TargetNames() {
		result, found := document.Result(targetName)
		if !found || result.Status != lifecycle.StatePublished || len(result.ReviewReference) == 0 {
			continue
		}
		group.Go(func() error {
			status, viewError := inspector.ViewPullRequest(groupContext, result.ReviewReference)
			if viewError != nil {
				logger.Warn(refreshFailedLogMessageConstant,
					zap.String(logFieldTargetConstant, targetName),
					zap.String(logFieldReviewReferenceConstant, result.ReviewReference),
					zap.Error(viewError),
				)
				return nil
			}
			mutex.Lock()
			reviewStates[targetName] = status.Classification
			mutex.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	return reviewStates
}
