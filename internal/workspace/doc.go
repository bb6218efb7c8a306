// Package workspace prepares the isolated directory each migration target runs in.
//
// A workspace lives under work-dir/<sanitized-target-name>/ and holds a fresh
// clone in repo/ with the migration branch checked out, plus stdout.log and
// stderr.log which collect the output of every command run for the target.
package workspace
