package git

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
)

// Identity is the author and committer recorded on export commits.
type Identity struct {
	Name  string
	Email string
}

// DefaultIdentity is used when no commit author is configured.
var DefaultIdentity = Identity{Name: "blogsync", Email: "blogsync@localhost"}

// ParseIdentity parses "Name <email>". An empty string yields DefaultIdentity.
func ParseIdentity(s string) Identity {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultIdentity
	}
	open, end := strings.LastIndexByte(s, '<'), strings.LastIndexByte(s, '>')
	if open < 0 || end < open {
		return Identity{Name: s, Email: DefaultIdentity.Email}
	}
	return Identity{Name: strings.TrimSpace(s[:open]), Email: strings.TrimSpace(s[open+1 : end])}
}

// Driver runs git commands inside one working copy.
type Driver struct {
	dir      string
	identity Identity
}

// NewDriver returns a Driver for dir, which must be an existing git working copy.
func NewDriver(dir string, identity Identity) (*Driver, error) {
	if !IsWorkingCopy(dir) {
		return nil, foundationerrors.WrapError(ErrNotRepository, foundationerrors.CategoryConfig, "working copy missing").
			WithContext("path", dir).
			Build()
	}
	if identity.Name == "" {
		identity = DefaultIdentity
	}
	return &Driver{dir: dir, identity: identity}, nil
}

// Dir returns the working copy root.
func (d *Driver) Dir() string { return d.dir }

func (d *Driver) run(ctx context.Context, op string, args ...string) (string, error) {
	return d.runSecret(ctx, op, "", args...)
}

// runSecret runs git with args and scrubs secret from any error it returns.
func (d *Driver) runSecret(ctx context.Context, op, secret string, args ...string) (string, error) {
	full := append([]string{"-C", d.dir}, args...)
	// #nosec G204 -- invoking git with fixed binary name and controlled args
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_AUTHOR_NAME="+d.identity.Name,
		"GIT_AUTHOR_EMAIL="+d.identity.Email,
		"GIT_COMMITTER_NAME="+d.identity.Name,
		"GIT_COMMITTER_EMAIL="+d.identity.Email,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		ce := &CommandError{Args: append([]string(nil), args...), Stderr: stderr.String(), Err: err}
		if secret != "" {
			for i := range ce.Args {
				ce.Args[i] = strings.ReplaceAll(ce.Args[i], secret, "***")
			}
			ce.Stderr = strings.ReplaceAll(ce.Stderr, secret, "***")
		}
		return stdout.String(), ClassifyGitError(ce, op)
	}
	return stdout.String(), nil
}

// IsTracked reports whether rel is known to the index (ls-files --error-unmatch).
func (d *Driver) IsTracked(ctx context.Context, rel string) (bool, error) {
	_, err := d.run(ctx, "ls-files", "ls-files", "--error-unmatch", "--", rel)
	if err == nil {
		return true, nil
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		var ee *exec.ExitError
		if errors.As(ce.Err, &ee) {
			return false, nil
		}
	}
	return false, err
}

// IsClean reports whether `git status --porcelain` prints nothing.
func (d *Driver) IsClean(ctx context.Context) (bool, error) {
	out, err := d.run(ctx, "status", "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "", nil
}

// Fetch fetches branch from origin.
func (d *Driver) Fetch(ctx context.Context, branch string) error {
	_, err := d.run(ctx, "fetch", "fetch", "origin", branch)
	return err
}

// FetchFrom fetches branch from remoteURL into refs/remotes/origin/<branch>,
// so credentials in the URL are used without being stored in the config.
func (d *Driver) FetchFrom(ctx context.Context, remoteURL, branch string) error {
	_, err := d.runSecret(ctx, "fetch", urlSecret(remoteURL), "fetch", remoteURL, "+refs/heads/"+branch+":refs/remotes/origin/"+branch)
	return err
}

// Ahead counts commits on HEAD that origin/<branch> does not have.
func (d *Driver) Ahead(ctx context.Context, branch string) (int, error) {
	out, err := d.run(ctx, "rev-list", "rev-list", "--count", "origin/"+branch+"..HEAD")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, foundationerrors.GitError("unexpected rev-list output").WithCause(err).Build()
	}
	return n, nil
}

// Add stages paths. Removed files are staged as deletions.
func (d *Driver) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := d.run(ctx, "add", append([]string{"add", "-A", "--"}, paths...)...)
	return err
}

// HasStagedChanges reports whether the index differs from HEAD.
func (d *Driver) HasStagedChanges(ctx context.Context) (bool, error) {
	_, err := d.run(ctx, "diff", "diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) && ee.ExitCode() == 1 {
		return true, nil
	}
	return false, err
}

// Commit records the index with msg.
func (d *Driver) Commit(ctx context.Context, msg string) error {
	_, err := d.run(ctx, "commit", "commit", "-m", msg)
	return err
}

// Rebase rebases HEAD onto origin/<branch>. A failed rebase is aborted before
// returning so the working copy is never left mid-rebase.
func (d *Driver) Rebase(ctx context.Context, branch string, autostash bool) error {
	args := []string{"rebase"}
	if autostash {
		args = append(args, "--autostash")
	}
	args = append(args, "origin/"+branch)
	if _, err := d.run(ctx, "rebase", args...); err != nil {
		_, _ = d.run(ctx, "rebase", "rebase", "--abort")
		return err
	}
	return nil
}

// Push pushes HEAD to branch on pushURL and moves origin/<branch> to the
// pushed commit, since pushing to a URL does not update tracking refs. The
// URL's password never appears in returned errors.
func (d *Driver) Push(ctx context.Context, pushURL, branch string) error {
	if err := d.PushRef(ctx, pushURL, "HEAD", branch); err != nil {
		return err
	}
	_, err := d.run(ctx, "update-ref", "update-ref", "refs/remotes/origin/"+branch, "HEAD")
	return err
}

// PushRef pushes ref to branch on pushURL.
func (d *Driver) PushRef(ctx context.Context, pushURL, ref, branch string) error {
	_, err := d.runSecret(ctx, "push", urlSecret(pushURL), "push", pushURL, ref+":"+branch)
	return err
}

// Head returns the commit SHA of HEAD.
func (d *Driver) Head(ctx context.Context) (string, error) {
	out, err := d.run(ctx, "rev-parse", "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CreateBranch creates and checks out name at HEAD.
func (d *Driver) CreateBranch(ctx context.Context, name string) error {
	_, err := d.run(ctx, "checkout", "checkout", "-b", name)
	return err
}

// Checkout switches to an existing branch.
func (d *Driver) Checkout(ctx context.Context, name string) error {
	_, err := d.run(ctx, "checkout", "checkout", name)
	return err
}

// ResetHard moves the current branch and working tree to ref.
func (d *Driver) ResetHard(ctx context.Context, ref string) error {
	_, err := d.run(ctx, "reset", "reset", "--hard", ref)
	return err
}

func urlSecret(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return ""
	}
	p, _ := u.User.Password()
	return p
}
