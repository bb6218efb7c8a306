// Package followup runs a script against every open pull request a migration produced.
//
// Each published target is re-cloned with its migration branch checked out and the
// script runs inside that clone. Merged or closed pull requests are skipped.
package followup
