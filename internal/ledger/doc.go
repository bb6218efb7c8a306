// Package ledger owns the status document of a migration run.
//
// The ledger backs up the document once before a run mutates it and then persists
// the whole document after every recorded target result, so an interrupted run
// leaves a document describing every target finished so far.
package ledger
