// Package cli constructs the clu command-line interface, wiring the Cobra
// command hierarchy, the layered configuration loader, and zap logging
// around the init, run-migration and check-status commands.
package cli
