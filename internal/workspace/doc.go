// Package workspace locates a site's local working copy and serializes
// writers on it.
//
// The working copy is a critical section: one exporter or sync per
// repository at a time, across goroutines (in-process mutex) and across
// processes (an exclusive lock file inside .git).
package workspace
