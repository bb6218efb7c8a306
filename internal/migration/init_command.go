package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/clu/internal/definition"
)

const (
	initCommandUseConstant                 = "init"
	initCommandShortDescriptionConstant    = "Write a template migration definition"
	initCommandLongDescriptionConstant     = "init writes a migration definition template listing example targets, the checkout branch, pull request metadata, and steps. The format follows the output extension (.yaml, .yml or .toml)."
	initOutputFlagNameConstant             = "output"
	initOutputFlagUsageConstant            = "Path of the definition file to write"
	initForceFlagNameConstant              = "force"
	initForceFlagUsageConstant             = "Overwrite an existing definition file"
	defaultDefinitionFileNameConstant      = "migration.yaml"
	definitionFilePermissionsConstant      = 0o644
	definitionDirectoryPermissionsConstant = 0o755
	templateExistsErrorTemplateConstant    = "refusing to overwrite %s: use --force to replace it"
	templateEncodeErrorTemplateConstant    = "unable to encode definition template: %w"
	templateWriteErrorTemplateConstant     = "unable to write definition template %s: %w"
	templateWrittenMessageTemplateConstant = "Wrote migration definition template to %s\n"
	templateWrittenLogMessageConstant      = "definition template written"
	logFieldPathConstant                   = "path"
)

// InitCommandBuilder assembles the init command.
type InitCommandBuilder struct {
	LoggerProvider LoggerProvider
}

// Build constructs the init command.
func (builder *InitCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           initCommandUseConstant,
		Short:         initCommandShortDescriptionConstant,
		Long:          initCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runInit,
	}

	command.Flags().String(initOutputFlagNameConstant, defaultDefinitionFileNameConstant, initOutputFlagUsageConstant)
	command.Flags().Bool(initForceFlagNameConstant, false, initForceFlagUsageConstant)

	return command, nil
}

func (builder *InitCommandBuilder) runInit(command *cobra.Command, arguments []string) error {
	logger := resolveLogger(builder.LoggerProvider)

	outputPath := resolveCommandPath(command, stringFlagValue(command, initOutputFlagNameConstant))
	if len(outputPath) == 0 {
		outputPath = resolveCommandPath(command, defaultDefinitionFileNameConstant)
	}
	overwrite, _ := command.Flags().GetBool(initForceFlagNameConstant)

	contents, encodeError := definition.CodecForPath(outputPath).Encode(definition.Template())
	if encodeError != nil {
		return fmt.Errorf(templateEncodeErrorTemplateConstant, encodeError)
	}

	if writeError := writeTemplate(outputPath, contents, overwrite); writeError != nil {
		return writeError
	}

	logger.Info(templateWrittenLogMessageConstant, zap.String(logFieldPathConstant, outputPath))
	_, printError := fmt.Fprintf(command.OutOrStdout(), templateWrittenMessageTemplateConstant, outputPath)
	return printError
}

func writeTemplate(outputPath string, contents []byte, overwrite bool) error {
	if directoryError := os.MkdirAll(filepath.Dir(outputPath), definitionDirectoryPermissionsConstant); directoryError != nil {
		return fmt.Errorf(templateWriteErrorTemplateConstant, outputPath, directoryError)
	}

	openFlags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		openFlags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	file, openError := os.OpenFile(outputPath, openFlags, definitionFilePermissionsConstant)
	if errors.Is(openError, fs.ErrExist) {
		return fmt.Errorf(templateExistsErrorTemplateConstant, outputPath)
	}
	if openError != nil {
		return fmt.Errorf(templateWriteErrorTemplateConstant, outputPath, openError)
	}

	_, writeError := file.Write(contents)
	closeError := file.Close()
	if writeError == nil {
		writeError = closeError
	}
	if writeError != nil {
		return fmt.Errorf(templateWriteErrorTemplateConstant, outputPath, writeError)
	}
	return nil
}
