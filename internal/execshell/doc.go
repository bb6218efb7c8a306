// Package execshell provides structured helpers for invoking external tools.
//
// ShellExecutor wraps a CommandRunner with lifecycle logging and typed errors,
// OSCommandRunner performs the actual process execution with optional live
// output sinks, and the abstractions here let git, gh, and migration scripts be
// replaced by scripted fakes in tests.
package execshell
