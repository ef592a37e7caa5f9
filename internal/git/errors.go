package git

import (
	"errors"
	"strings"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
)

var (
	ErrNonFastForward = errors.New("push rejected: remote is ahead (non-fast-forward)")
	ErrNotRepository  = errors.New("not a git working copy")
	ErrSSHRemote      = errors.New("ssh remotes cannot carry a token")
	ErrNoRemote       = errors.New("remote not configured")
)

// CommandError is a failed git invocation with its captured stderr.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := "git " + strings.Join(e.Args, " ") + ": " + e.Err.Error()
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// ClassifyGitError translates a failed git command into a ClassifiedError.
// Non-fast-forward push rejections wrap ErrNonFastForward.
func ClassifyGitError(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := foundationerrors.AsClassified(err); ok {
		return err
	}

	l := strings.ToLower(err.Error())
	builder := foundationerrors.GitError("git "+op+" failed").
		WithCause(err).
		WithContext("op", op)

	switch {
	case strings.Contains(l, "non-fast-forward") || strings.Contains(l, "fetch first") || strings.Contains(l, "[rejected]"):
		builder.WithCause(errors.Join(ErrNonFastForward, err)).WithContext("diverged", true)
	case strings.Contains(l, "authentication failed") || strings.Contains(l, "could not read username") || strings.Contains(l, "permission denied") || strings.Contains(l, "error: 403"):
		builder.WithCategory(foundationerrors.CategoryAuth).UserAction()
	case strings.Contains(l, "repository not found") || strings.Contains(l, "does not exist"):
		builder.WithCategory(foundationerrors.CategoryNotFound)
	case strings.Contains(l, "could not resolve host") || strings.Contains(l, "connection reset") || strings.Contains(l, "timed out") || strings.Contains(l, "remote hung up"):
		builder.WithCategory(foundationerrors.CategoryNetwork).Retryable()
	case strings.Contains(l, "rate limit") || strings.Contains(l, "too many requests"):
		builder.WithCategory(foundationerrors.CategoryRateLimit).RateLimit()
	}
	return builder.Build()
}
