// Package forge talks to the remote Git host's HTTP API.
//
// Client wraps the GitHub-compatible contents API (get, create/update and
// delete a file, list a tree) plus pull request creation. Every request is
// rate limited and retried according to a retry.Policy. HTTP failures are
// mapped to classified errors: 401/403 to auth, 429 to rate_limit, 404 to
// not_found and anything else to forge.
package forge
