// Package githubcli wraps the GitHub CLI for opening and inspecting migration pull requests.
//
// It layers typed request and response structures over gh pr subcommands and
// integrates with execshell so interactions with GitHub can be faked during testing.
package githubcli
