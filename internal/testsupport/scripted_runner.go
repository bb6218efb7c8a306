// Package testsupport provides fakes shared by package tests.
package testsupport

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/temirov/clu/internal/execshell"
)

const (
	// BaseCommitConstant is the commit reported by rev-parse in the repository defaults.
	BaseCommitConstant             = "0123456789abcdef0123456789abcdef01234567"
	pullRequestURLTemplateConstant = "https://github.com/%s/pull/1"
	workspaceRepositoryDirectory   = "repo"
	defaultOwnerConstant           = "acme"
	defaultCommitCountConstant     = "1\n"
)

// ScriptedResponse describes the outcome of one scripted invocation.
type ScriptedResponse struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
	Error          error
}

// Responder computes a response for a matched command.
type Responder func(command execshell.ShellCommand) ScriptedResponse

type scriptedRule struct {
	name           execshell.CommandName
	argumentPrefix []string
	responder      Responder
}

// ScriptedRunner implements execshell.CommandRunner with scripted responses.
// Rules registered later take precedence. Unmatched commands succeed with empty output.
type ScriptedRunner struct {
	mutex       sync.Mutex
	rules       []scriptedRule
	invocations []execshell.ShellCommand
}

// NewScriptedRunner constructs a runner without rules.
func NewScriptedRunner() *ScriptedRunner {
	return &ScriptedRunner{}
}

// NewRepositoryRunner constructs a runner answering the git and gh commands of a successful migration.
// Pull request URLs are derived from the --repo argument, or from the workspace directory when absent.
func NewRepositoryRunner() *ScriptedRunner {
	runner := NewScriptedRunner()
	runner.On(execshell.CommandGit, []string{"rev-parse"}, ScriptedResponse{StandardOutput: BaseCommitConstant + "\n"})
	runner.On(execshell.CommandGit, []string{"rev-list", "--count"}, ScriptedResponse{StandardOutput: defaultCommitCountConstant})
	runner.OnFunc(execshell.CommandGitHub, []string{"pr", "create"}, func(command execshell.ShellCommand) ScriptedResponse {
		return ScriptedResponse{StandardOutput: fmt.Sprintf(pullRequestURLTemplateConstant, repositorySlugOf(command)) + "\n"}
	})
	return runner
}

// On registers a fixed response for commands whose arguments start with the prefix.
func (runner *ScriptedRunner) On(name execshell.CommandName, argumentPrefix []string, response ScriptedResponse) *ScriptedRunner {
	return runner.OnFunc(name, argumentPrefix, func(execshell.ShellCommand) ScriptedResponse { return response })
}

// OnScript registers a response for sh -c invocations of exactly the command line.
func (runner *ScriptedRunner) OnScript(commandLine string, response ScriptedResponse) *ScriptedRunner {
	return runner.On(execshell.CommandShell, []string{"-c", commandLine}, response)
}

// OnFunc registers a responder for commands whose arguments start with the prefix.
func (runner *ScriptedRunner) OnFunc(name execshell.CommandName, argumentPrefix []string, responder Responder) *ScriptedRunner {
	runner.mutex.Lock()
	defer runner.mutex.Unlock()
	runner.rules = append(runner.rules, scriptedRule{name: name, argumentPrefix: append([]string{}, argumentPrefix...), responder: responder})
	return runner
}

// Run answers the command from the registered rules and copies scripted output into its sinks.
func (runner *ScriptedRunner) Run(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	runner.mutex.Lock()
	runner.invocations = append(runner.invocations, command)
	responder := runner.findResponder(command)
	runner.mutex.Unlock()

	response := ScriptedResponse{}
	if responder != nil {
		response = responder(command)
	}
	if response.Error != nil {
		return execshell.ExecutionResult{}, response.Error
	}

	writeToSink(command.Details.StandardOutputSink, response.StandardOutput)
	writeToSink(command.Details.StandardErrorSink, response.StandardError)

	return execshell.ExecutionResult{
		StandardOutput: response.StandardOutput,
		StandardError:  response.StandardError,
		ExitCode:       response.ExitCode,
	}, nil
}

// Invocations returns every command received so far.
func (runner *ScriptedRunner) Invocations() []execshell.ShellCommand {
	runner.mutex.Lock()
	defer runner.mutex.Unlock()
	return append([]execshell.ShellCommand{}, runner.invocations...)
}

// InvocationsMatching returns the received commands whose arguments start with the prefix.
func (runner *ScriptedRunner) InvocationsMatching(name execshell.CommandName, argumentPrefix ...string) []execshell.ShellCommand {
	matching := []execshell.ShellCommand{}
	for _, command := range runner.Invocations() {
		if command.Name == name && hasArgumentPrefix(command.Details.Arguments, argumentPrefix) {
			matching = append(matching, command)
		}
	}
	return matching
}

// ScriptLines returns the command lines of every sh -c invocation run in the working directory.
func (runner *ScriptedRunner) ScriptLines(workingDirectory string) []string {
	lines := []string{}
	for _, command := range runner.InvocationsMatching(execshell.CommandShell, "-c") {
		if command.Details.WorkingDirectory == workingDirectory && len(command.Details.Arguments) > 1 {
			lines = append(lines, command.Details.Arguments[1])
		}
	}
	return lines
}

func (runner *ScriptedRunner) findResponder(command execshell.ShellCommand) Responder {
	for ruleIndex := len(runner.rules) - 1; ruleIndex >= 0; ruleIndex-- {
		rule := runner.rules[ruleIndex]
		if rule.name == command.Name && hasArgumentPrefix(command.Details.Arguments, rule.argumentPrefix) {
			return rule.responder
		}
	}
	return nil
}

func hasArgumentPrefix(arguments []string, prefix []string) bool {
	if len(prefix) > len(arguments) {
		return false
	}
	for argumentIndex, expected := range prefix {
		if arguments[argumentIndex] != expected {
			return false
		}
	}
	return true
}

func writeToSink(sink io.Writer, output string) {
	if sink == nil || len(output) == 0 {
		return
	}
	_, _ = io.WriteString(sink, output)
}

func repositorySlugOf(command execshell.ShellCommand) string {
	arguments := command.Details.Arguments
	for argumentIndex := 0; argumentIndex < len(arguments)-1; argumentIndex++ {
		if arguments[argumentIndex] == "--repo" {
			return arguments[argumentIndex+1]
		}
	}
	workingDirectory := strings.TrimSuffix(command.Details.WorkingDirectory, string(filepath.Separator)+workspaceRepositoryDirectory)
	return defaultOwnerConstant + "/" + filepath.Base(workingDirectory)
}
