package execshell_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/clu/internal/execshell"
)

func TestOSCommandRunnerCopiesOutputToSinks(testInstance *testing.T) {
	var standardOutputSink bytes.Buffer
	var standardErrorSink bytes.Buffer

	runner := execshell.NewOSCommandRunner()
	result, runError := runner.Run(context.Background(), execshell.ShellCommand{
		Name: execshell.CommandShell,
		Details: execshell.CommandDetails{
			Arguments:            []string{"-c", "printf \"$GREETING\"; printf oops >&2; exit 4"},
			WorkingDirectory:     testInstance.TempDir(),
			EnvironmentVariables: map[string]string{"GREETING": "hello"},
			StandardOutputSink:   &standardOutputSink,
			StandardErrorSink:    &standardErrorSink,
		},
	})

	require.NoError(testInstance, runError)
	require.Equal(testInstance, 4, result.ExitCode)
	require.Equal(testInstance, "hello", result.StandardOutput)
	require.Equal(testInstance, "oops", result.StandardError)
	require.Equal(testInstance, "hello", standardOutputSink.String())
	require.Equal(testInstance, "oops", standardErrorSink.String())
}
