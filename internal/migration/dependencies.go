package migration

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/clu/internal/execshell"
	"github.com/temirov/clu/internal/utils"
	pathutils "github.com/temirov/clu/internal/utils/path"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

var commandPathExpander = pathutils.NewHomeExpander()

func resolveLogger(provider LoggerProvider) *zap.Logger {
	var logger *zap.Logger
	if provider != nil {
		logger = provider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

func resolveShellExecutor(logger *zap.Logger, runner execshell.CommandRunner, humanReadableLoggingProvider func() bool) (*execshell.ShellExecutor, error) {
	if runner == nil {
		runner = execshell.NewOSCommandRunner()
	}
	humanReadableLogging := false
	if humanReadableLoggingProvider != nil {
		humanReadableLogging = humanReadableLoggingProvider()
	}
	return execshell.NewShellExecutor(logger, runner, humanReadableLogging)
}

// invocationDirectory returns the directory relative command-line paths resolve against.
func invocationDirectory(command *cobra.Command) string {
	if command != nil {
		contextAccessor := utils.NewCommandContextAccessor()
		if directory, available := contextAccessor.InvocationDirectory(command.Context()); available && len(directory) > 0 {
			return directory
		}
	}
	workingDirectory, workingDirectoryError := os.Getwd()
	if workingDirectoryError != nil {
		return ""
	}
	return workingDirectory
}

func resolveCommandPath(command *cobra.Command, candidatePath string) string {
	return commandPathExpander.Resolve(candidatePath, invocationDirectory(command))
}

func stringFlagValue(command *cobra.Command, flagName string) string {
	if command == nil {
		return ""
	}
	value, _ := command.Flags().GetString(flagName)
	return value
}

func boolFlagOverride(command *cobra.Command, flagName string, configured bool) bool {
	if command == nil || !command.Flags().Changed(flagName) {
		return configured
	}
	value, _ := command.Flags().GetBool(flagName)
	return value
}
