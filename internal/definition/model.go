package definition

import (
	"sort"
	"strings"
)

const (
	// SchemaVersionConstant is the only supported document schema version.
	SchemaVersionConstant = 1

	workspaceNameReplacementConstant = '-'
)

// Target names one repository to migrate.
type Target struct {
	Repository  string            `yaml:"repo" toml:"repo"`
	Environment map[string]string `yaml:"env,omitempty" toml:"env,omitempty"`
}

// Checkout configures the branch created in every target and the pre-flight command deciding whether to migrate.
type Checkout struct {
	BranchName       string `yaml:"branch-name" toml:"branch-name"`
	PreflightCommand string `yaml:"pre-flight" toml:"pre-flight"`
}

// PullRequest holds the review request metadata shared by every target.
type PullRequest struct {
	Title       string `yaml:"title" toml:"title"`
	Description string `yaml:"description" toml:"description,multiline"`
}

// Step is one migration script. Steps run in declaration order.
type Step struct {
	Name   string `yaml:"name" toml:"name"`
	Script string `yaml:"migration-script" toml:"migration-script"`
}

// Definition is the validated, read-only description of a migration.
type Definition struct {
	Version     int
	Targets     map[string]Target
	Checkout    Checkout
	PullRequest PullRequest
	Steps       []Step
}

// TargetNames returns the target names in lexical order.
func (definition Definition) TargetNames() []string {
	names := make([]string, 0, len(definition.Targets))
	for name := range definition.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the definition.
func (definition Definition) Clone() Definition {
	copied := definition
	copied.Targets = make(map[string]Target, len(definition.Targets))
	for name, target := range definition.Targets {
		copied.Targets[name] = target.clone()
	}
	copied.Steps = append([]Step(nil), definition.Steps...)
	return copied
}

func (target Target) clone() Target {
	copied := target
	if target.Environment != nil {
		copied.Environment = make(map[string]string, len(target.Environment))
		for key, value := range target.Environment {
			copied.Environment[key] = value
		}
	}
	return copied
}

// WorkspaceName converts a target name into a directory name made of letters, digits, '.', '_' and '-'.
func WorkspaceName(targetName string) string {
	var builder strings.Builder
	for _, character := range strings.TrimSpace(targetName) {
		switch {
		case character >= 'a' && character <= 'z',
			character >= 'A' && character <= 'Z',
			character >= '0' && character <= '9',
			character == '.', character == '_', character == '-':
			builder.WriteRune(character)
		default:
			builder.WriteRune(workspaceNameReplacementConstant)
		}
	}
	sanitized := builder.String()
	if strings.Trim(sanitized, ".") == "" {
		return strings.Repeat(string(workspaceNameReplacementConstant), len(sanitized))
	}
	return sanitized
}
