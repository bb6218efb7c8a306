// Package gitrepo wraps the git operations a migration performs against a cloned repository.
//
// RepositoryManager clones repositories, creates migration branches, inspects
// the working tree and history, and pushes branches. ParseRemoteURL recovers
// the hosted owner and repository from a clone locator.
package gitrepo
