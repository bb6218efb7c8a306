// Package orchestrator drives every target of a migration through its lifecycle.
//
// A fixed pool of workers takes target names from a queue and runs the workspace,
// step and publish stages for each one. Finished results flow through a single
// channel into the status ledger. A failing target never stops its siblings; only
// a ledger failure or a cancelled context stops new targets from launching, and
// targets already running always reach a terminal state.
package orchestrator
