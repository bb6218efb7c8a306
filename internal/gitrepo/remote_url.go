package gitrepo

import (
	"fmt"
	"strings"
)

const (
	sshProtocolPrefixConstant           = "ssh://"
	httpsProtocolPrefixConstant         = "https://"
	httpProtocolPrefixConstant          = "http://"
	sshUserDelimiterConstant            = "@"
	sshPathDelimiterConstant            = ":"
	pathSeparatorConstant               = "/"
	gitSuffixConstant                   = ".git"
	remoteURLParseErrorTemplateConstant = "%s: %s"
	repositorySlugTemplateConstant      = "%s/%s"
	invalidRemoteURLMessageConstant     = "invalid remote url"
	requiredValueMessageConstant        = "value required"
)

// RemoteProtocol enumerates the remote protocols a repository locator may use.
type RemoteProtocol string

// Supported remote protocols.
const (
	RemoteProtocolSSH   RemoteProtocol = RemoteProtocol("ssh")
	RemoteProtocolHTTPS RemoteProtocol = RemoteProtocol("https")
)

// RemoteURL is the hosted repository identity recovered from a clone locator.
type RemoteURL struct {
	Protocol   RemoteProtocol
	Host       string
	Owner      string
	Repository string
}

// Slug renders the owner/repository pair accepted by the GitHub CLI.
func (remote RemoteURL) Slug() string {
	return fmt.Sprintf(repositorySlugTemplateConstant, remote.Owner, remote.Repository)
}

// RemoteURLParseError indicates a locator does not name a hosted repository.
type RemoteURLParseError struct {
	Input   string
	Message string
}

// Error describes the parse failure.
func (parseError RemoteURLParseError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, parseError.Input, parseError.Message)
}

// ParseRemoteURL recovers host, owner, and repository from scp-style, ssh://, and http(s):// locators.
// Local paths and file:// locators are rejected.
func ParseRemoteURL(remote string) (RemoteURL, error) {
	trimmedRemote := strings.TrimSpace(remote)
	if len(trimmedRemote) == 0 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: requiredValueMessageConstant}
	}

	switch {
	case strings.HasPrefix(trimmedRemote, sshProtocolPrefixConstant):
		return parseHierarchicalRemote(strings.TrimPrefix(trimmedRemote, sshProtocolPrefixConstant), RemoteProtocolSSH, remote)
	case strings.HasPrefix(trimmedRemote, httpsProtocolPrefixConstant):
		return parseHierarchicalRemote(strings.TrimPrefix(trimmedRemote, httpsProtocolPrefixConstant), RemoteProtocolHTTPS, remote)
	case strings.HasPrefix(trimmedRemote, httpProtocolPrefixConstant):
		return parseHierarchicalRemote(strings.TrimPrefix(trimmedRemote, httpProtocolPrefixConstant), RemoteProtocolHTTPS, remote)
	case strings.HasPrefix(trimmedRemote, pathSeparatorConstant), strings.HasPrefix(trimmedRemote, "."):
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	default:
		return parseScpRemote(trimmedRemote, remote)
	}
}

func parseScpRemote(remote string, originalInput string) (RemoteURL, error) {
	hostAndPath := remote
	if userSplitIndex := strings.Index(hostAndPath, sshUserDelimiterConstant); userSplitIndex >= 0 {
		hostAndPath = hostAndPath[userSplitIndex+1:]
	}
	pathSplitIndex := strings.Index(hostAndPath, sshPathDelimiterConstant)
	if pathSplitIndex <= 0 {
		return RemoteURL{}, RemoteURLParseError{Input: originalInput, Message: invalidRemoteURLMessageConstant}
	}
	host := hostAndPath[:pathSplitIndex]
	if strings.Contains(host, pathSeparatorConstant) {
		return RemoteURL{}, RemoteURLParseError{Input: originalInput, Message: invalidRemoteURLMessageConstant}
	}
	return buildRemoteURL(RemoteProtocolSSH, host, hostAndPath[pathSplitIndex+1:], originalInput)
}

func parseHierarchicalRemote(remote string, protocol RemoteProtocol, originalInput string) (RemoteURL, error) {
	hostSplitIndex := strings.Index(remote, pathSeparatorConstant)
	if hostSplitIndex <= 0 {
		return RemoteURL{}, RemoteURLParseError{Input: originalInput, Message: invalidRemoteURLMessageConstant}
	}
	host := remote[:hostSplitIndex]
	if userSplitIndex := strings.LastIndex(host, sshUserDelimiterConstant); userSplitIndex >= 0 {
		host = host[userSplitIndex+1:]
	}
	return buildRemoteURL(protocol, host, remote[hostSplitIndex+1:], originalInput)
}

func buildRemoteURL(protocol RemoteProtocol, host string, path string, originalInput string) (RemoteURL, error) {
	segments := strings.Split(strings.Trim(path, pathSeparatorConstant), pathSeparatorConstant)
	if len(segments) != 2 {
		return RemoteURL{}, RemoteURLParseError{Input: originalInput, Message: invalidRemoteURLMessageConstant}
	}
	owner := strings.TrimSpace(segments[0])
	repository := strings.TrimSuffix(strings.TrimSpace(segments[1]), gitSuffixConstant)
	if len(host) == 0 || len(owner) == 0 || len(repository) == 0 {
		return RemoteURL{}, RemoteURLParseError{Input: originalInput, Message: invalidRemoteURLMessageConstant}
	}
	return RemoteURL{Protocol: protocol, Host: host, Owner: owner, Repository: repository}, nil
}
