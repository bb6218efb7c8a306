// Package report renders status documents for people: a per-target table and,
// when review states were refreshed, a grouped summary of pull requests.
package report
