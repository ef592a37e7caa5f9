// Package testforge provides an in-memory stand-in for the remote host's
// contents API, served over httptest for forge client tests.
package testforge

import (
	"crypto/sha1" // #nosec G505 -- fake blob ids
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

// FailMode makes every request fail with a fixed status.
type FailMode int

const (
	FailModeNone FailMode = iota
	FailModeAuth
	FailModeRateLimit
	FailModeServer
)

// Request is one call recorded by the host.
type Request struct {
	Method string
	Path   string
}

// Host serves /repos/{owner}/{repo}/... for a single repository.
type Host struct {
	Owner string
	Repo  string

	mu        sync.Mutex
	files     map[string]string
	commits   int
	pulls     []map[string]string
	failMode  FailMode
	truncated bool
	requests  []Request
	server    *httptest.Server
}

// New starts a Host for owner/repo; it is closed when the test ends.
func New(t testing.TB, owner, repo string) *Host {
	t.Helper()
	h := &Host{Owner: owner, Repo: repo, files: make(map[string]string)}
	h.server = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.server.Close)
	return h
}

// URL is the API base URL to configure the client with.
func (h *Host) URL() string { return h.server.URL }

// SetFile stores content at p without recording a commit.
func (h *Host) SetFile(p, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files[p] = content
}

// File returns the content at p.
func (h *Host) File(p string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.files[p]
	return c, ok
}

// Commits counts the commits created through the API.
func (h *Host) Commits() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.commits
}

// Pulls returns the pull requests opened so far.
func (h *Host) Pulls() []map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]map[string]string(nil), h.pulls...)
}

// SetFailMode makes subsequent requests fail.
func (h *Host) SetFailMode(m FailMode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failMode = m
}

// SetTruncated makes tree listings report truncation so clients fall back
// to walking directories.
func (h *Host) SetTruncated(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.truncated = v
}

// Requests returns the calls received so far.
func (h *Host) Requests() []Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Request(nil), h.requests...)
}

// Head is the SHA of the latest commit created through the API.
func (h *Host) Head() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.head()
}

func (h *Host) head() string { return fmt.Sprintf("c%039d", h.commits) }

func blobSHA(content string) string {
	sum := sha1.Sum([]byte(content)) // #nosec G401 -- fake blob ids
	return hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Host) serve(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, Request{Method: r.Method, Path: r.URL.Path})

	switch h.failMode {
	case FailModeAuth:
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return
	case FailModeRateLimit:
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"message": "API rate limit exceeded"})
		return
	case FailModeServer:
		writeJSON(w, http.StatusBadGateway, map[string]string{"message": "upstream unavailable"})
		return
	}

	prefix := "/repos/" + h.Owner + "/" + h.Repo + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	switch {
	case rest == "contents" || strings.HasPrefix(rest, "contents/"):
		h.serveContents(w, r, strings.TrimPrefix(strings.TrimPrefix(rest, "contents"), "/"))
	case strings.HasPrefix(rest, "git/trees/"):
		h.serveTree(w)
	case strings.HasPrefix(rest, "branches/") && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"name":   strings.TrimPrefix(rest, "branches/"),
			"commit": map[string]string{"sha": h.head()},
		})
	case rest == "pulls" && r.Method == http.MethodPost:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		h.pulls = append(h.pulls, body)
		writeJSON(w, http.StatusCreated, map[string]any{"number": len(h.pulls), "html_url": "https://host.example/pull/" + fmt.Sprint(len(h.pulls))})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	}
}

func (h *Host) serveContents(w http.ResponseWriter, r *http.Request, p string) {
	switch r.Method {
	case http.MethodGet:
		if content, ok := h.files[p]; ok {
			writeJSON(w, http.StatusOK, map[string]string{
				"type":     "file",
				"path":     p,
				"sha":      blobSHA(content),
				"encoding": "base64",
				"content":  base64.StdEncoding.EncodeToString([]byte(content)),
			})
			return
		}
		pfx := ""
		if p != "" {
			pfx = p + "/"
		}
		var items []map[string]string
		dirs := map[string]bool{}
		for fp, content := range h.files {
			if !strings.HasPrefix(fp, pfx) {
				continue
			}
			child := strings.TrimPrefix(fp, pfx)
			if i := strings.IndexByte(child, '/'); i >= 0 {
				d := pfx + child[:i]
				if !dirs[d] {
					dirs[d] = true
					items = append(items, map[string]string{"type": "dir", "path": d, "sha": blobSHA(d)})
				}
				continue
			}
			items = append(items, map[string]string{"type": "file", "path": fp, "sha": blobSHA(content)})
		}
		if items == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPut:
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		current, exists := h.files[p]
		if exists && body["sha"] != blobSHA(current) {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "sha does not match"})
			return
		}
		raw, err := base64.StdEncoding.DecodeString(body["content"])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		h.files[p] = string(raw)
		h.commits++
		status := http.StatusOK
		if !exists {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{
			"content": map[string]string{"sha": blobSHA(string(raw)), "html_url": "https://host.example/blob/" + p},
			"commit":  map[string]string{"sha": h.head()},
		})
	case http.MethodDelete:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		current, exists := h.files[p]
		if !exists {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		if body["sha"] != blobSHA(current) {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "sha does not match"})
			return
		}
		delete(h.files, p)
		h.commits++
		writeJSON(w, http.StatusOK, map[string]any{"commit": map[string]string{"sha": h.head()}})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Host) serveTree(w http.ResponseWriter) {
	type node struct {
		Path string `json:"path"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
	}
	paths := make([]string, 0, len(h.files))
	for p := range h.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	dirs := map[string]bool{}
	var tree []node
	for _, p := range paths {
		parts := strings.Split(p, "/")
		for i := 1; i < len(parts); i++ {
			d := strings.Join(parts[:i], "/")
			if !dirs[d] {
				dirs[d] = true
				tree = append(tree, node{Path: d, Type: "tree", SHA: blobSHA(d)})
			}
		}
		tree = append(tree, node{Path: p, Type: "blob", SHA: blobSHA(h.files[p])})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tree": tree, "truncated": h.truncated})
}
