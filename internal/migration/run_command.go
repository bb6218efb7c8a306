package migration

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/clu/internal/definition"
	"github.com/temirov/clu/internal/execshell"
	"github.com/temirov/clu/internal/githubcli"
	"github.com/temirov/clu/internal/gitrepo"
	"github.com/temirov/clu/internal/ledger"
	"github.com/temirov/clu/internal/lifecycle"
	"github.com/temirov/clu/internal/orchestrator"
	"github.com/temirov/clu/internal/publish"
	"github.com/temirov/clu/internal/report"
	"github.com/temirov/clu/internal/steps"
	"github.com/temirov/clu/internal/workspace"
)

const (
	runCommandUseConstant                  = "run-migration"
	runCommandShortDescriptionConstant     = "Apply a migration definition to every target"
	runCommandLongDescriptionConstant      = "run-migration clones each target into the work directory, runs the pre-flight check and steps on a fresh branch, pushes the branch, opens a pull request, and records every outcome back into the definition file. Targets whose branch an earlier run pushed without a pull request only retry the pull request."
	definitionFlagNameConstant             = "definition"
	definitionFlagUsageConstant            = "Path to the migration definition (YAML or TOML)"
	workDirectoryFlagNameConstant          = "work-directory"
	workDirectoryFlagUsageConstant         = "Directory receiving one workspace per target"
	concurrencyFlagNameConstant            = "concurrency"
	concurrencyFlagUsageConstant           = "Maximum number of targets processed at once (0 selects the default)"
	reprocessPublishedFlagNameConstant     = "reprocess-published"
	reprocessPublishedFlagUsageConstant    = "Run targets again even when a previous run published them"
	dryRunFlagNameConstant                 = "dry-run"
	dryRunFlagUsageConstant                = "Run the steps but neither push branches nor open pull requests"
	skipPushFlagNameConstant               = "skip-push"
	skipPushFlagUsageConstant              = "Run the steps but leave branches unpushed"
	skipPullRequestFlagNameConstant        = "skip-pull-request"
	skipPullRequestFlagUsageConstant       = "Push branches without opening pull requests"
	publishOptionsTemplateConstant         = "%w: choose one of --dry-run, --skip-push or --skip-pull-request"
	definitionRequiredMessageConstant      = "--definition is required"
	negativeConcurrencyTemplateConstant    = "--concurrency must not be negative, got %d"
	executorCreationErrorTemplateConstant  = "unable to construct shell executor: %w"
	repositoryManagerErrorTemplateConstant = "unable to construct repository manager: %w"
	workspaceManagerErrorTemplateConstant  = "unable to construct workspace manager: %w"
	stepExecutorErrorTemplateConstant      = "unable to construct step executor: %w"
	githubClientErrorTemplateConstant      = "unable to construct GitHub client: %w"
	publisherErrorTemplateConstant         = "unable to construct publisher: %w"
	orchestratorErrorTemplateConstant      = "unable to construct orchestrator: %w"
	runSummaryTemplateConstant             = "\nRun %s: %d processed, %d resumed, %d carried forward, %d not launched. Backup: %s\n"
	emptyBackupLabelConstant               = "-"
	runFailedLogMessageConstant            = "migration run reported failures"
	logFieldDefinitionConstant             = "definition"
	logFieldWorkDirectoryConstant          = "work_directory"
	logFieldFailedTargetsConstant          = "failed_targets"
)

// ErrDefinitionPathRequired indicates run-migration was invoked without a definition path.
var ErrDefinitionPathRequired = errors.New(definitionRequiredMessageConstant)

type runOptions struct {
	definitionPath     string
	workDirectory      string
	baseDirectory      string
	concurrency        int
	reprocessPublished bool
	publishOptions     publish.Options
}

// RunCommandBuilder assembles the run-migration command.
type RunCommandBuilder struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration
	// Runner executes git, gh and step scripts; the operating system runner is used when nil.
	Runner                 execshell.CommandRunner
	Clock                  lifecycle.Clock
	RunIdentifierGenerator func() string
}

// Build constructs the run-migration command.
func (builder *RunCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           runCommandUseConstant,
		Short:         runCommandShortDescriptionConstant,
		Long:          runCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runMigration,
	}

	defaults := DefaultCommandConfiguration()
	command.Flags().String(definitionFlagNameConstant, "", definitionFlagUsageConstant)
	command.Flags().String(workDirectoryFlagNameConstant, defaults.WorkDirectory, workDirectoryFlagUsageConstant)
	command.Flags().Int(concurrencyFlagNameConstant, defaults.Concurrency, concurrencyFlagUsageConstant)
	command.Flags().Bool(reprocessPublishedFlagNameConstant, defaults.ReprocessPublished, reprocessPublishedFlagUsageConstant)
	command.Flags().Bool(dryRunFlagNameConstant, defaults.DryRun, dryRunFlagUsageConstant)
	command.Flags().Bool(skipPushFlagNameConstant, defaults.SkipPush, skipPushFlagUsageConstant)
	command.Flags().Bool(skipPullRequestFlagNameConstant, defaults.SkipPullRequest, skipPullRequestFlagUsageConstant)

	return command, nil
}

func (builder *RunCommandBuilder) runMigration(command *cobra.Command, arguments []string) error {
	options, optionsError := builder.parseOptions(command)
	if optionsError != nil {
		return optionsError
	}

	logger := resolveLogger(builder.LoggerProvider)

	document, loadError := definition.LoadDocument(options.definitionPath)
	if loadError != nil {
		return loadError
	}

	runner, assemblyError := builder.assemble(logger, options)
	if assemblyError != nil {
		return assemblyError
	}

	statusLedger := ledger.New(logger, options.definitionPath, document, builder.Clock)

	executionContext, stopSignals := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	summary, runError := runner.Run(executionContext, document.Definition(), statusLedger, orchestrator.Options{
		Concurrency:        options.concurrency,
		ReprocessPublished: options.reprocessPublished,
		Publish:            options.publishOptions,
	})

	if renderError := renderRunReport(command, statusLedger.Document(), summary); renderError != nil && runError == nil {
		runError = renderError
	}

	if runError != nil {
		logger.Warn(
			runFailedLogMessageConstant,
			zap.String(logFieldDefinitionConstant, options.definitionPath),
			zap.String(logFieldWorkDirectoryConstant, options.workDirectory),
			zap.Strings(logFieldFailedTargetsConstant, summary.FailedTargets()),
			zap.Error(runError),
		)
	}
	return runError
}

func (builder *RunCommandBuilder) parseOptions(command *cobra.Command) (runOptions, error) {
	configuration := builder.resolveConfiguration()

	definitionPath := strings.TrimSpace(stringFlagValue(command, definitionFlagNameConstant))
	if len(definitionPath) == 0 {
		return runOptions{}, ErrDefinitionPathRequired
	}

	workDirectory := configuration.WorkDirectory
	concurrency := configuration.Concurrency
	reprocessPublished := configuration.ReprocessPublished
	if command.Flags().Changed(workDirectoryFlagNameConstant) {
		workDirectory = stringFlagValue(command, workDirectoryFlagNameConstant)
	}
	if command.Flags().Changed(concurrencyFlagNameConstant) {
		concurrency, _ = command.Flags().GetInt(concurrencyFlagNameConstant)
		if concurrency < 0 {
			return runOptions{}, fmt.Errorf(negativeConcurrencyTemplateConstant, concurrency)
		}
	}
	if command.Flags().Changed(reprocessPublishedFlagNameConstant) {
		reprocessPublished, _ = command.Flags().GetBool(reprocessPublishedFlagNameConstant)
	}
	publishOptions := publish.Options{
		DryRun:          boolFlagOverride(command, dryRunFlagNameConstant, configuration.DryRun),
		SkipPush:        boolFlagOverride(command, skipPushFlagNameConstant, configuration.SkipPush),
		SkipPullRequest: boolFlagOverride(command, skipPullRequestFlagNameConstant, configuration.SkipPullRequest),
	}
	if validationError := publishOptions.Validate(); validationError != nil {
		return runOptions{}, fmt.Errorf(publishOptionsTemplateConstant, validationError)
	}
	if len(strings.TrimSpace(workDirectory)) == 0 {
		workDirectory = DefaultWorkDirectoryConstant
	}

	return runOptions{
		definitionPath:     resolveCommandPath(command, definitionPath),
		workDirectory:      resolveCommandPath(command, workDirectory),
		baseDirectory:      invocationDirectory(command),
		concurrency:        concurrency,
		reprocessPublished: reprocessPublished,
		publishOptions:     publishOptions,
	}, nil
}

func (builder *RunCommandBuilder) assemble(logger *zap.Logger, options runOptions) (*orchestrator.Orchestrator, error) {
	shellExecutor, executorError := resolveShellExecutor(logger, builder.Runner, builder.HumanReadableLoggingProvider)
	if executorError != nil {
		return nil, fmt.Errorf(executorCreationErrorTemplateConstant, executorError)
	}

	repositoryManager, managerError := gitrepo.NewRepositoryManager(shellExecutor)
	if managerError != nil {
		return nil, fmt.Errorf(repositoryManagerErrorTemplateConstant, managerError)
	}

	workspaceManager, workspaceError := workspace.NewManager(logger, options.workDirectory, repositoryManager)
	if workspaceError != nil {
		return nil, fmt.Errorf(workspaceManagerErrorTemplateConstant, workspaceError)
	}

	stepExecutor, stepsError := steps.NewExecutor(logger, shellExecutor, options.baseDirectory)
	if stepsError != nil {
		return nil, fmt.Errorf(stepExecutorErrorTemplateConstant, stepsError)
	}

	githubClient, githubError := githubcli.NewClient(shellExecutor)
	if githubError != nil {
		return nil, fmt.Errorf(githubClientErrorTemplateConstant, githubError)
	}

	publisher, publisherError := publish.NewPublisher(logger, githubClient)
	if publisherError != nil {
		return nil, fmt.Errorf(publisherErrorTemplateConstant, publisherError)
	}

	runner, orchestratorError := orchestrator.NewOrchestrator(orchestrator.Dependencies{
		Logger:                 logger,
		Workspaces:             workspaceManager,
		Steps:                  stepExecutor,
		Publisher:              publisher,
		Clock:                  builder.Clock,
		RunIdentifierGenerator: builder.RunIdentifierGenerator,
	})
	if orchestratorError != nil {
		return nil, fmt.Errorf(orchestratorErrorTemplateConstant, orchestratorError)
	}
	return runner, nil
}

func (builder *RunCommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}

	provided := builder.ConfigurationProvider()
	return provided.Sanitize()
}

func renderRunReport(command *cobra.Command, document definition.Document, summary orchestrator.Summary) error {
	output := command.OutOrStdout()
	renderer := report.NewRenderer(output)
	if tableError := renderer.RenderTable(output, report.BuildRows(document, nil), false); tableError != nil {
		return tableError
	}
	if len(summary.RunIdentifier) == 0 {
		return nil
	}
	backupLabel := summary.BackupPath
	if len(backupLabel) == 0 {
		backupLabel = emptyBackupLabelConstant
	}
	_, printError := fmt.Fprintf(output, runSummaryTemplateConstant, summary.RunIdentifier, len(summary.Completed), len(summary.Resumed), len(summary.CarriedForward), len(summary.NotLaunched), backupLabel)
	return printError
}
