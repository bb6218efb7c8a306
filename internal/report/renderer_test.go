package report_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/clu/internal/definition"
	"github.com/temirov/clu/internal/githubcli"
	"github.com/temirov/clu/internal/lifecycle"
	"github.com/temirov/clu/internal/report"
)

func newReportDocument() definition.Document {
	targets := map[string]definition.Target{}
	for _, targetName := range []string{"alpha", "beta", "gamma", "delta"} {
		targets[targetName] = definition.Target{Repository: "git@github.com:acme/" + targetName + ".git"}
	}
	document := definition.NewDocument(definition.Definition{
		Version:     definition.SchemaVersionConstant,
		Targets:     targets,
		Checkout:    definition.Checkout{BranchName: "migration/upgrade", PreflightCommand: "/usr/bin/true"},
		PullRequest: definition.PullRequest{Title: "Upgrade"},
		Steps:       []definition.Step{{Name: "Bump", Script: "scripts/bump.sh"}},
	})
	stepIndex := 0
	exitCode := 2
	document.Results = map[string]lifecycle.TargetResult{
		"alpha": {Status: lifecycle.StatePublished, ReviewReference: "https://github.com/acme/alpha/pull/1"},
		"beta":  {Status: lifecycle.StatePreflightSkipped, Note: "pre-flight exited with code 1"},
		"gamma": {
			Status:  lifecycle.StateStepFailed,
			Failure: &lifecycle.FailureDetail{Kind: lifecycle.FailureKindStep, Message: "step \"Bump\" exited with code 2", StepIndex: &stepIndex, ExitCode: &exitCode},
		},
	}
	return document
}

func TestBuildRowsListsEveryTarget(testInstance *testing.T) {
	rows := report.BuildRows(newReportDocument(), map[string]githubcli.ReviewState{"alpha": githubcli.ReviewStateMergeable})

	require.Equal(testInstance, []report.Row{
		{Target: "alpha", State: "published", ReviewReference: "https://github.com/acme/alpha/pull/1", ReviewState: githubcli.ReviewStateMergeable},
		{Target: "beta", State: "preflight_skipped", Detail: "pre-flight exited with code 1"},
		{Target: "delta", State: "not_run", Failed: true},
		{Target: "gamma", State: "step_failed", Detail: "step \"Bump\" exited with code 2", Failed: true},
	}, rows)
}

func TestRenderTableWritesAlignedColumns(testInstance *testing.T) {
	var output bytes.Buffer
	renderer := report.NewRenderer(&output)
	require.False(testInstance, renderer.Styled)

	require.NoError(testInstance, renderer.RenderTable(&output, report.BuildRows(newReportDocument(), nil), false))
	require.Equal(testInstance, strings.Join([]string{
		"TARGET  STATE              REVIEW                                DETAIL",
		"alpha   published          https://github.com/acme/alpha/pull/1  -",
		"beta    preflight_skipped  -                                     pre-flight exited with code 1",
		"delta   not_run            -                                     -",
		"gamma   step_failed        -                                     step \"Bump\" exited with code 2",
		"",
	}, "\n"), output.String())
}

func TestRenderTableKeepsMultiLineFailuresOnOneRow(testInstance *testing.T) {
	document := newReportDocument()
	document.Results["delta"] = lifecycle.TargetResult{
		Status: lifecycle.StatePublishFailed,
		Failure: &lifecycle.FailureDetail{
			Kind:    lifecycle.FailureKindPublish,
			Stage:   lifecycle.PublishStagePush,
			Message: "publish failed during push: git push failed: exit status 1\nTo github.com:acme/delta.git\n ! [rejected]        migration/upgrade -> migration/upgrade (fetch first)\nerror: failed to push some refs\n",
		},
	}

	var output bytes.Buffer
	require.NoError(testInstance, report.Renderer{}.RenderTable(&output, report.BuildRows(document, nil), false))
	lines := strings.Split(strings.TrimSuffix(output.String(), "\n"), "\n")
	require.Len(testInstance, lines, 5)
	require.True(testInstance, strings.HasPrefix(lines[3], "delta   publish_failed"))
	require.True(testInstance, strings.HasSuffix(lines[3], "publish failed during push: git push failed: exit status 1 To github.com:acme/delta.git ! [rejected] migration/upgrade -> migration/upgrade (fetch first) error: failed to push some refs"))
}

func TestRenderTableIncludesReviewStateColumn(testInstance *testing.T) {
	var output bytes.Buffer
	rows := report.BuildRows(newReportDocument(), map[string]githubcli.ReviewState{"alpha": githubcli.ReviewStateMerged})

	require.NoError(testInstance, report.Renderer{}.RenderTable(&output, rows, true))
	lines := strings.Split(strings.TrimSuffix(output.String(), "\n"), "\n")
	require.Len(testInstance, lines, 5)
	require.True(testInstance, strings.HasPrefix(lines[0], "TARGET  STATE"))
	require.Contains(testInstance, lines[0], "REVIEW STATE")
	require.Contains(testInstance, lines[1], "merged")
}

func TestRenderTableWithoutTargets(testInstance *testing.T) {
	var output bytes.Buffer
	require.NoError(testInstance, report.Renderer{}.RenderTable(&output, nil, false))
	require.Equal(testInstance, "No targets found.\n", output.String())
}

func TestRenderReviewSummaryGroupsByState(testInstance *testing.T) {
	rows := []report.Row{
		{Target: "alpha", ReviewReference: "https://github.com/acme/alpha/pull/1", ReviewState: githubcli.ReviewStateMerged},
		{Target: "beta", ReviewReference: "https://github.com/acme/beta/pull/3", ReviewState: githubcli.ReviewStateChecksFailed},
		{Target: "gamma", ReviewReference: "https://github.com/acme/gamma/pull/5", ReviewState: githubcli.ReviewStateMerged},
		{Target: "delta", State: "step_failed"},
	}

	var output bytes.Buffer
	require.NoError(testInstance, report.Renderer{}.RenderReviewSummary(&output, rows))
	require.Equal(testInstance, strings.Join([]string{
		"# Migration Results",
		"",
		"## Checks Failed",
		"- https://github.com/acme/beta/pull/3",
		"",
		"## Merged",
		"- https://github.com/acme/alpha/pull/1",
		"- https://github.com/acme/gamma/pull/5",
		"",
	}, "\n"), output.String())
}
