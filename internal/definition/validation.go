package definition

import (
	"fmt"
	"strings"
)

const (
	unsupportedVersionTemplateConstant     = "unsupported version %d (expected %d)"
	missingTargetsMessageConstant          = "at least one target is required"
	emptyTargetNameMessageConstant         = "target names must not be empty"
	missingRepositoryTemplateConstant      = "target %q: repo is required"
	invalidEnvironmentKeyTemplateConstant  = "target %q: invalid environment variable name %q"
	workspaceCollisionTemplateConstant     = "targets %q and %q share workspace directory %q"
	missingBranchNameMessageConstant       = "checkout.branch-name is required"
	missingPreflightMessageConstant        = "checkout.pre-flight is required"
	missingTitleMessageConstant            = "pr.title is required"
	missingStepsMessageConstant            = "at least one step is required"
	missingStepNameTemplateConstant        = "steps[%d]: name is required"
	missingStepScriptTemplateConstant      = "steps[%d]: migration-script is required"
	duplicateTargetNameTemplateConstant    = "duplicate target name %q"
	environmentAssignmentCharacterConstant = "="
)

// Validate reports every problem in the definition as a DefinitionError, or nil when it is usable.
func Validate(definition Definition) error {
	problems := collectProblems(definition)
	if len(problems) == 0 {
		return nil
	}
	return DefinitionError{Problems: problems}
}

func collectProblems(definition Definition) []string {
	problems := []string{}

	if definition.Version != SchemaVersionConstant {
		problems = append(problems, fmt.Sprintf(unsupportedVersionTemplateConstant, definition.Version, SchemaVersionConstant))
	}

	if len(definition.Targets) == 0 {
		problems = append(problems, missingTargetsMessageConstant)
	}

	workspaceOwners := map[string]string{}
	for _, targetName := range definition.TargetNames() {
		target := definition.Targets[targetName]
		if len(strings.TrimSpace(targetName)) == 0 {
			problems = append(problems, emptyTargetNameMessageConstant)
			continue
		}
		if len(strings.TrimSpace(target.Repository)) == 0 {
			problems = append(problems, fmt.Sprintf(missingRepositoryTemplateConstant, targetName))
		}
		for _, environmentKey := range sortedKeys(target.Environment) {
			if len(strings.TrimSpace(environmentKey)) == 0 || strings.Contains(environmentKey, environmentAssignmentCharacterConstant) {
				problems = append(problems, fmt.Sprintf(invalidEnvironmentKeyTemplateConstant, targetName, environmentKey))
			}
		}
		workspaceName := WorkspaceName(targetName)
		if existingOwner, taken := workspaceOwners[workspaceName]; taken {
			problems = append(problems, fmt.Sprintf(workspaceCollisionTemplateConstant, existingOwner, targetName, workspaceName))
			continue
		}
		workspaceOwners[workspaceName] = targetName
	}

	if len(strings.TrimSpace(definition.Checkout.BranchName)) == 0 {
		problems = append(problems, missingBranchNameMessageConstant)
	}
	if len(strings.TrimSpace(definition.Checkout.PreflightCommand)) == 0 {
		problems = append(problems, missingPreflightMessageConstant)
	}
	if len(strings.TrimSpace(definition.PullRequest.Title)) == 0 {
		problems = append(problems, missingTitleMessageConstant)
	}

	if len(definition.Steps) == 0 {
		problems = append(problems, missingStepsMessageConstant)
	}
	for stepIndex, step := range definition.Steps {
		if len(strings.TrimSpace(step.Name)) == 0 {
			problems = append(problems, fmt.Sprintf(missingStepNameTemplateConstant, stepIndex))
		}
		if len(strings.TrimSpace(step.Script)) == 0 {
			problems = append(problems, fmt.Sprintf(missingStepScriptTemplateConstant, stepIndex))
		}
	}

	return problems
}
