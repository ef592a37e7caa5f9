// Package export writes a published post into its site's working copy and
// pushes it.
//
// One Export call renders the post, moves its file when the taxonomy
// changed, writes and commits when anything differs, then pushes. A
// non-fast-forward push is rebased and retried once; when that fails the
// local state is parked on a diagnostic branch and the export aborts. Post
// bookkeeping is written only after a successful push, so a post whose
// exported_hash matches its render is known to be on the remote.
package export
