package execshell

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testRepositoryDirectoryConstant = "/workspace/alpha/repo"
)

func TestCommandMessageFormatterDescribesKnownCommands(testInstance *testing.T) {
	testCases := []struct {
		name            string
		command         ShellCommand
		expectedMessage string
	}{
		{
			name: "clone",
			command: ShellCommand{Name: CommandGit, Details: CommandDetails{
				Arguments: []string{"clone", "git@github.com:acme/alpha.git", testRepositoryDirectoryConstant},
			}},
			expectedMessage: "Cloning git@github.com:acme/alpha.git into /workspace/alpha/repo",
		},
		{
			name: "remote_branch_check",
			command: ShellCommand{Name: CommandGit, Details: CommandDetails{
				Arguments:        []string{"ls-remote", "--heads", "origin", "feature/upgrade"},
				WorkingDirectory: testRepositoryDirectoryConstant,
			}},
			expectedMessage: "Checking remote branch feature/upgrade from origin",
		},
		{
			name: "create_branch",
			command: ShellCommand{Name: CommandGit, Details: CommandDetails{
				Arguments:        []string{"checkout", "-b", "feature/upgrade"},
				WorkingDirectory: testRepositoryDirectoryConstant,
			}},
			expectedMessage: "Creating branch feature/upgrade in /workspace/alpha/repo",
		},
		{
			name: "status",
			command: ShellCommand{Name: CommandGit, Details: CommandDetails{
				Arguments:        []string{"status", "--porcelain"},
				WorkingDirectory: testRepositoryDirectoryConstant,
			}},
			expectedMessage: "Reviewing working tree status in /workspace/alpha/repo",
		},
		{
			name: "push",
			command: ShellCommand{Name: CommandGit, Details: CommandDetails{
				Arguments:        []string{"push", "--set-upstream", "origin", "feature/upgrade"},
				WorkingDirectory: testRepositoryDirectoryConstant,
			}},
			expectedMessage: "Pushing origin feature/upgrade from /workspace/alpha/repo",
		},
		{
			name: "pull_request_create",
			command: ShellCommand{Name: CommandGitHub, Details: CommandDetails{
				Arguments: []string{"pr", "create", "--repo", "acme/alpha", "--head", "feature/upgrade", "--title", "Upgrade"},
			}},
			expectedMessage: "Opening pull request for feature/upgrade from acme/alpha",
		},
		{
			name: "script",
			command: ShellCommand{Name: CommandShell, Details: CommandDetails{
				Arguments:        []string{"-c", "make upgrade"},
				WorkingDirectory: testRepositoryDirectoryConstant,
			}},
			expectedMessage: "Running script make upgrade in /workspace/alpha/repo",
		},
		{
			name: "generic_git",
			command: ShellCommand{Name: CommandGit, Details: CommandDetails{
				Arguments:        []string{"--version"},
				WorkingDirectory: testRepositoryDirectoryConstant,
			}},
			expectedMessage: "Running git --version (in /workspace/alpha/repo)",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			formatter := CommandMessageFormatter{}
			require.Equal(testInstance, testCase.expectedMessage, formatter.BuildStartedMessage(testCase.command))
		})
	}
}

func TestCommandMessageFormatterFailureIncludesExitCodeAndStandardError(testInstance *testing.T) {
	formatter := CommandMessageFormatter{}
	command := ShellCommand{Name: CommandShell, Details: CommandDetails{
		Arguments:        []string{"-c", "exit 3"},
		WorkingDirectory: testRepositoryDirectoryConstant,
	}}

	message := formatter.BuildFailureMessage(command, ExecutionResult{ExitCode: 3, StandardError: " boom \n"})

	require.Equal(testInstance, "Script exit 3 failed in /workspace/alpha/repo (exit code 3: boom)", message)
}

func TestCommandMessageFormatterExecutionFailureDescribesCause(testInstance *testing.T) {
	formatter := CommandMessageFormatter{}
	command := ShellCommand{Name: CommandGit, Details: CommandDetails{Arguments: []string{"rev-parse", "HEAD"}}}

	message := formatter.BuildExecutionFailureMessage(command, errors.New("executable not found"))

	require.Equal(testInstance, "Unable to resolve HEAD in current directory: executable not found", message)
}
