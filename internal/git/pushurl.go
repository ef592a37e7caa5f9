package git

import (
	"net/url"
	"strings"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
)

// BuildPushURL injects user and token into an HTTPS remote URL. SSH remotes
// (scp-like or ssh://) are rejected.
func BuildPushURL(remote, user, token string) (string, error) {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return "", foundationerrors.WrapError(ErrNoRemote, foundationerrors.CategoryConfig, "origin has no URL").Build()
	}
	if isSSH(remote) {
		return "", foundationerrors.WrapError(ErrSSHRemote, foundationerrors.CategoryConfig, "origin uses SSH; configure an HTTPS remote for token pushes").
			WithContext("remote", remote).
			Build()
	}
	u, err := url.Parse(remote)
	if err != nil || u.Host == "" {
		return "", foundationerrors.ConfigError("origin URL is not a valid HTTPS URL").WithCause(err).WithContext("remote", remote).Build()
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", foundationerrors.ConfigError("unsupported remote scheme " + u.Scheme).WithContext("remote", remote).Build()
	}
	if token == "" {
		return "", foundationerrors.AuthError("GIT_TOKEN or GITHUB_TOKEN is required to push").Build()
	}
	if user == "" {
		user = "x-access-token"
	}
	u.User = url.UserPassword(user, token)
	return u.String(), nil
}

// Redact hides credentials embedded in a remote URL.
func Redact(remote string) string {
	u, err := url.Parse(remote)
	if err != nil || u.User == nil {
		return remote
	}
	u.User = nil
	return strings.Replace(u.String(), "://", "://***@", 1)
}

func isSSH(remote string) bool {
	if strings.HasPrefix(remote, "ssh://") || strings.HasPrefix(remote, "git+ssh://") {
		return true
	}
	// scp-like: user@host:path
	if !strings.Contains(remote, "://") && strings.Contains(remote, "@") && strings.Contains(remote, ":") {
		return true
	}
	return false
}
