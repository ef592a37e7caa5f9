// Package errors provides the classified error primitives shared by the blogsync core.
//
// Every failure that crosses a component boundary (front-matter validation, git
// push, remote host calls, link resolution) is expressed as a ClassifiedError so
// callers can route on category instead of parsing messages.
//
// Example usage:
//
//	err := errors.WrapError(cause, errors.CategoryGit, "push rejected").
//		WithContext("branch", branch).
//		Build()
package errors
