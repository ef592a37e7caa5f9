package forge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
)

var (
	ErrPermissionDenied = errors.New("permission denied by remote host")
	ErrRateLimited      = errors.New("rate limited by remote host")
	ErrNotFound         = errors.New("not found on remote host")
)

// apiError builds the classified error for a failed response. The response
// body is read (bounded) for the human message.
func apiError(req *http.Request, resp *http.Response) error {
	limited, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	body := strings.ReplaceAll(string(limited), "\n", " ")
	msg := apiMessage(body)

	var b *foundationerrors.ErrorBuilder
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || isRateLimitForbidden(resp, body):
		b = foundationerrors.WrapError(ErrRateLimited, foundationerrors.CategoryRateLimit, "remote host rate limit reached, try again later").RateLimit()
		if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
			b.WithContext("reset", reset)
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		b = foundationerrors.WrapError(ErrPermissionDenied, foundationerrors.CategoryAuth, "token missing or lacks permission for this repository").UserAction()
	case resp.StatusCode == http.StatusNotFound:
		b = foundationerrors.WrapError(ErrNotFound, foundationerrors.CategoryNotFound, "not found on remote host")
	case resp.StatusCode >= 500:
		b = foundationerrors.ForgeError(fmt.Sprintf("remote host error: %s", resp.Status))
	default:
		b = foundationerrors.NewError(foundationerrors.CategoryForge, fmt.Sprintf("remote host rejected request: %s", resp.Status))
	}
	if msg != "" {
		b.WithContext("message", msg)
	}
	return b.
		WithContext("status", resp.Status).
		WithContext("code", resp.StatusCode).
		WithContext("method", req.Method).
		WithContext("url", req.URL.String()).
		Build()
}

func isRateLimitForbidden(resp *http.Response, body string) bool {
	if resp.StatusCode != http.StatusForbidden {
		return false
	}
	if resp.Header.Get("X-RateLimit-Remaining") == "0" {
		return true
	}
	return strings.Contains(strings.ToLower(body), "rate limit")
}

// apiMessage extracts the "message" field the host puts in error bodies.
func apiMessage(body string) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(body)
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Kind names the error taxonomy bucket of err for reports: permission,
// rate_limit, not_found or error.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "permission"
	case errors.Is(err, ErrRateLimited):
		return "rate_limit"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
