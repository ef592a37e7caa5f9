// Package git drives a site's local working copy.
//
// Mutating operations (add, commit, fetch, rebase, push, branch) run the
// system git binary inside the working copy so the behaviour matches what an
// operator would see on the command line. Read-only inspection (remote URL,
// current branch, HEAD) goes through go-git.
//
// Failures are mapped into classified errors; ErrNonFastForward marks a push
// the remote rejected because it is ahead.
package git
