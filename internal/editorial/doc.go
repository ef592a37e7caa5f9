// Package editorial is the save path for posts. Save enforces the slug lock
// and publication date rules, applies category side effects from the front
// matter and decides whether an export should be scheduled. Exports run on a
// Scheduler in the background so callers return immediately.
package editorial
