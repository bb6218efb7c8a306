package migration

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/clu/internal/execshell"
	"github.com/temirov/clu/internal/followup"
	"github.com/temirov/clu/internal/githubcli"
	"github.com/temirov/clu/internal/gitrepo"
	"github.com/temirov/clu/internal/ledger"
	"github.com/temirov/clu/internal/report"
	"github.com/temirov/clu/internal/steps"
	"github.com/temirov/clu/internal/workspace"
)

const (
	followupCommandUseConstant              = "run-followup [flags] <script>"
	followupCommandShortDescriptionConstant = "Run a script against every open pull request of a migration"
	followupCommandLongDescriptionConstant  = "run-followup reads a status document written by run-migration, clones every published target with its migration branch checked out, and runs the script inside the clone. Merged and closed pull requests are skipped. The status document is not modified."
	// DefaultFollowupWorkDirectoryConstant is the work directory of run-followup when none is given.
	DefaultFollowupWorkDirectoryConstant   = "follow-up-dir"
	followupDefinitionFlagUsageConstant    = "Path to the status document a run-migration wrote back"
	followupWorkDirectoryFlagUsageConstant = "Directory receiving one follow-up workspace per target"
	followupConcurrencyFlagUsageConstant   = "Maximum number of targets processed at once (0 selects the default)"
	followupRunnerErrorTemplateConstant    = "unable to construct follow-up runner: %w"
	followupSummaryTemplateConstant        = "\nFollow-up: %d eligible, %d failed.\n"
	followupFailedLogMessageConstant       = "follow-up reported failures"
	followupArgumentsCountConstant         = 1
)

// FollowupCommandBuilder assembles the run-followup command.
type FollowupCommandBuilder struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	// Runner executes git, gh and the follow-up script; the operating system runner is used when nil.
	Runner execshell.CommandRunner
}

type followupOptions struct {
	definitionPath string
	workDirectory  string
	baseDirectory  string
	concurrency    int
	script         string
}

// Build constructs the run-followup command.
func (builder *FollowupCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           followupCommandUseConstant,
		Short:         followupCommandShortDescriptionConstant,
		Long:          followupCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ExactArgs(followupArgumentsCountConstant),
		RunE:          builder.runFollowup,
	}

	command.Flags().String(definitionFlagNameConstant, "", followupDefinitionFlagUsageConstant)
	command.Flags().String(workDirectoryFlagNameConstant, DefaultFollowupWorkDirectoryConstant, followupWorkDirectoryFlagUsageConstant)
	command.Flags().Int(concurrencyFlagNameConstant, 0, followupConcurrencyFlagUsageConstant)

	return command, nil
}

func (builder *FollowupCommandBuilder) runFollowup(command *cobra.Command, arguments []string) error {
	options, optionsError := builder.parseOptions(command, arguments)
	if optionsError != nil {
		return optionsError
	}

	logger := resolveLogger(builder.LoggerProvider)

	document, loadError := ledger.Load(options.definitionPath)
	if loadError != nil {
		return loadError
	}

	runner, assemblyError := builder.assemble(logger, options)
	if assemblyError != nil {
		return assemblyError
	}

	executionContext, stopSignals := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	followupReport, runError := runner.Run(executionContext, document, options.script, options.concurrency)
	if renderError := renderFollowupReport(command, followupReport); renderError != nil && runError == nil {
		runError = renderError
	}
	if runError != nil {
		logger.Warn(
			followupFailedLogMessageConstant,
			zap.String(logFieldDefinitionConstant, options.definitionPath),
			zap.Strings(logFieldFailedTargetsConstant, followupReport.FailedTargets()),
			zap.Error(runError),
		)
	}
	return runError
}

func (builder *FollowupCommandBuilder) parseOptions(command *cobra.Command, arguments []string) (followupOptions, error) {
	definitionPath := strings.TrimSpace(stringFlagValue(command, definitionFlagNameConstant))
	if len(definitionPath) == 0 {
		return followupOptions{}, ErrDefinitionPathRequired
	}
	script := strings.TrimSpace(arguments[0])
	if len(script) == 0 {
		return followupOptions{}, followup.ErrScriptRequired
	}
	concurrency, _ := command.Flags().GetInt(concurrencyFlagNameConstant)
	if concurrency < 0 {
		return followupOptions{}, fmt.Errorf(negativeConcurrencyTemplateConstant, concurrency)
	}
	workDirectory := strings.TrimSpace(stringFlagValue(command, workDirectoryFlagNameConstant))
	if len(workDirectory) == 0 {
		workDirectory = DefaultFollowupWorkDirectoryConstant
	}

	return followupOptions{
		definitionPath: resolveCommandPath(command, definitionPath),
		workDirectory:  resolveCommandPath(command, workDirectory),
		baseDirectory:  invocationDirectory(command),
		concurrency:    concurrency,
		script:         script,
	}, nil
}

func (builder *FollowupCommandBuilder) assemble(logger *zap.Logger, options followupOptions) (*followup.Runner, error) {
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

	runner, runnerError := followup.NewRunner(followup.Dependencies{
		Logger:         logger,
		Workspaces:     workspaceManager,
		Reviews:        githubClient,
		Scripts:        shellExecutor,
		ResolveCommand: stepExecutor.ResolveCommand,
	})
	if runnerError != nil {
		return nil, fmt.Errorf(followupRunnerErrorTemplateConstant, runnerError)
	}
	return runner, nil
}

func renderFollowupReport(command *cobra.Command, followupReport followup.Report) error {
	output := command.OutOrStdout()
	rows := make([]report.Row, 0, len(followupReport.Targets))
	for _, targetReport := range followupReport.Targets {
		rows = append(rows, report.Row{
			Target:          targetReport.Target,
			State:           string(targetReport.Outcome),
			ReviewReference: targetReport.ReviewReference,
			Detail:          targetReport.Detail,
			Failed:          targetReport.Outcome == followup.OutcomeFailed,
		})
	}
	if tableError := report.NewRenderer(output).RenderTable(output, rows, false); tableError != nil {
		return tableError
	}
	_, printError := fmt.Fprintf(output, followupSummaryTemplateConstant, len(followupReport.Targets), len(followupReport.FailedTargets()))
	return printError
}
