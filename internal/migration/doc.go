// Package migration assembles the clu subcommands.
//
// InitCommandBuilder writes a template definition, RunCommandBuilder wires
// the workspace manager, step executor, publisher and status ledger into an
// orchestrator run, and StatusCommandBuilder renders a status document,
// optionally refreshing the review state of published pull requests.
// FollowupCommandBuilder runs a script inside a fresh clone of every
// migration branch whose pull request is still open.
package migration
