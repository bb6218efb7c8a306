package migration

import (
	"strings"
)

const (
	// DefaultWorkDirectoryConstant is the work directory used when none is configured.
	DefaultWorkDirectoryConstant = "work-dir"

	workDirectoryConfigurationKeyConstant      = "work_directory"
	concurrencyConfigurationKeyConstant        = "concurrency"
	reprocessPublishedConfigurationKeyConstant = "reprocess_published"
	dryRunConfigurationKeyConstant             = "dry_run"
	skipPushConfigurationKeyConstant           = "skip_push"
	skipPullRequestConfigurationKeyConstant    = "skip_pull_request"
	configurationKeySeparatorConstant          = "."
)

// CommandConfiguration captures persisted configuration for migration runs.
type CommandConfiguration struct {
	WorkDirectory      string `mapstructure:"work_directory"`
	Concurrency        int    `mapstructure:"concurrency"`
	ReprocessPublished bool   `mapstructure:"reprocess_published"`
	DryRun             bool   `mapstructure:"dry_run"`
	SkipPush           bool   `mapstructure:"skip_push"`
	SkipPullRequest    bool   `mapstructure:"skip_pull_request"`
}

// DefaultCommandConfiguration returns baseline configuration values for migration runs.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		WorkDirectory:      DefaultWorkDirectoryConstant,
		Concurrency:        0,
		ReprocessPublished: false,
		DryRun:             false,
		SkipPush:           false,
		SkipPullRequest:    false,
	}
}

// Sanitize trims configured values and restores defaults for unusable ones.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.WorkDirectory = strings.TrimSpace(configuration.WorkDirectory)
	if len(sanitized.WorkDirectory) == 0 {
		sanitized.WorkDirectory = DefaultWorkDirectoryConstant
	}
	if sanitized.Concurrency < 0 {
		sanitized.Concurrency = 0
	}
	return sanitized
}

// DefaultConfigurationValues lists the defaults of the configuration keys below prefix.
func DefaultConfigurationValues(prefix string) map[string]any {
	defaults := DefaultCommandConfiguration()
	return map[string]any{
		prefix + configurationKeySeparatorConstant + workDirectoryConfigurationKeyConstant:      defaults.WorkDirectory,
		prefix + configurationKeySeparatorConstant + concurrencyConfigurationKeyConstant:        defaults.Concurrency,
		prefix + configurationKeySeparatorConstant + reprocessPublishedConfigurationKeyConstant: defaults.ReprocessPublished,
		prefix + configurationKeySeparatorConstant + dryRunConfigurationKeyConstant:             defaults.DryRun,
		prefix + configurationKeySeparatorConstant + skipPushConfigurationKeyConstant:           defaults.SkipPush,
		prefix + configurationKeySeparatorConstant + skipPullRequestConfigurationKeyConstant:    defaults.SkipPullRequest,
	}
}
