package definition_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/clu/internal/definition"
)

func validDefinition() definition.Definition {
	return definition.Definition{
		Version: definition.SchemaVersionConstant,
		Targets: map[string]definition.Target{
			"alpha": {Repository: "git@github.com:acme/alpha.git"},
			"beta":  {Repository: "git@github.com:acme/beta.git", Environment: map[string]string{"GOFLAGS": "-mod=mod"}},
		},
		Checkout:    definition.Checkout{BranchName: "migration/upgrade", PreflightCommand: "/usr/bin/true"},
		PullRequest: definition.PullRequest{Title: "Upgrade", Description: "Automated upgrade."},
		Steps:       []definition.Step{{Name: "upgrade", Script: "scripts/upgrade.sh"}},
	}
}

func TestValidate(testInstance *testing.T) {
	testCases := []struct {
		name             string
		mutate           func(definition *definition.Definition)
		expectedProblems []string
	}{
		{
			name:   "valid",
			mutate: func(*definition.Definition) {},
		},
		{
			name: "missing_targets",
			mutate: func(value *definition.Definition) {
				value.Targets = nil
			},
			expectedProblems: []string{"at least one target is required"},
		},
		{
			name: "empty_target_name_and_repository",
			mutate: func(value *definition.Definition) {
				value.Targets[" "] = definition.Target{Repository: "git@github.com:acme/gamma.git"}
				value.Targets["gamma"] = definition.Target{}
			},
			expectedProblems: []string{"target names must not be empty", `target "gamma": repo is required`},
		},
		{
			name: "workspace_collision",
			mutate: func(value *definition.Definition) {
				value.Targets["svc/api"] = definition.Target{Repository: "git@github.com:acme/api.git"}
				value.Targets["svc:api"] = definition.Target{Repository: "git@github.com:acme/api2.git"}
			},
			expectedProblems: []string{`targets "svc/api" and "svc:api" share workspace directory "svc-api"`},
		},
		{
			name: "invalid_environment_key",
			mutate: func(value *definition.Definition) {
				value.Targets["alpha"] = definition.Target{Repository: "git@github.com:acme/alpha.git", Environment: map[string]string{"A=B": "c"}}
			},
			expectedProblems: []string{`target "alpha": invalid environment variable name "A=B"`},
		},
		{
			name: "empty_checkout_and_title",
			mutate: func(value *definition.Definition) {
				value.Checkout = definition.Checkout{}
				value.PullRequest.Title = ""
			},
			expectedProblems: []string{"checkout.branch-name is required", "checkout.pre-flight is required", "pr.title is required"},
		},
		{
			name: "steps",
			mutate: func(value *definition.Definition) {
				value.Steps = []definition.Step{{Name: "first"}, {Script: "second.sh"}}
			},
			expectedProblems: []string{"steps[0]: migration-script is required", "steps[1]: name is required"},
		},
		{
			name: "no_steps",
			mutate: func(value *definition.Definition) {
				value.Steps = nil
			},
			expectedProblems: []string{"at least one step is required"},
		},
		{
			name: "version",
			mutate: func(value *definition.Definition) {
				value.Version = 2
			},
			expectedProblems: []string{"unsupported version 2 (expected 1)"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			candidate := validDefinition()
			testCase.mutate(&candidate)

			validationError := definition.Validate(candidate)
			if len(testCase.expectedProblems) == 0 {
				require.NoError(testInstance, validationError)
				return
			}
			var definitionError definition.DefinitionError
			require.ErrorAs(testInstance, validationError, &definitionError)
			require.Equal(testInstance, testCase.expectedProblems, definitionError.Problems)
		})
	}
}

func TestWorkspaceName(testInstance *testing.T) {
	testCases := map[string]string{
		"alpha":          "alpha",
		"svc/api":        "svc-api",
		"Team Repo #1":   "Team-Repo--1",
		"release_v1.2-x": "release_v1.2-x",
		"..":             "--",
		"ünïcode":        "-n-code",
	}

	for input, expected := range testCases {
		testInstance.Run(input, func(testInstance *testing.T) {
			require.Equal(testInstance, expected, definition.WorkspaceName(input))
		})
	}
}

func TestDefinitionTargetNamesAreSorted(testInstance *testing.T) {
	candidate := validDefinition()
	candidate.Targets["0-first"] = definition.Target{Repository: "git@github.com:acme/first.git"}
	require.Equal(testInstance, []string{"0-first", "alpha", "beta"}, candidate.TargetNames())
}
