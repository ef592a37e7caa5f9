package forge

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
)

// Repo identifies a repository and the branch operations apply to.
type Repo struct {
	Owner  string
	Name   string
	Branch string
}

// File is a decoded file fetched from the host.
type File struct {
	Path     string
	Content  string
	Encoding string
	SHA      string
}

// UpsertResult describes the commit created by UpsertFile.
type UpsertResult struct {
	CommitSHA  string
	ContentSHA string
	HTMLURL    string
}

// DeleteStatus is the outcome of DeleteFile.
type DeleteStatus string

const (
	Deleted       DeleteStatus = "deleted"
	AlreadyAbsent DeleteStatus = "already_absent"
)

// DeleteResult describes a DeleteFile call.
type DeleteResult struct {
	Status    DeleteStatus
	CommitSHA string
}

// Entry is one item of a recursive listing.
type Entry struct {
	Path string
	Type string // "file" or "dir"
	SHA  string
}

// PullRequest is a created pull request.
type PullRequest struct {
	Number  int
	HTMLURL string
}

type contentResponse struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

type commitResponse struct {
	Content *struct {
		SHA     string `json:"sha"`
		HTMLURL string `json:"html_url"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

func branchQuery(branch string) url.Values {
	if branch == "" {
		return nil
	}
	return url.Values{"ref": {branch}}
}

// GetFile fetches and decodes the file at p. A missing file yields an error
// satisfying IsNotFound.
func (c *Client) GetFile(ctx context.Context, repo Repo, p string) (File, error) {
	var resp contentResponse
	if err := c.do(ctx, http.MethodGet, repoEndpoint(repo.Owner, repo.Name, "contents", p), branchQuery(repo.Branch), nil, &resp); err != nil {
		return File{}, err
	}
	if resp.Type != "" && resp.Type != "file" {
		return File{}, foundationerrors.NewError(foundationerrors.CategoryForge, "remote path is not a file").
			WithContext("path", p).
			WithContext("type", resp.Type).
			Build()
	}
	content := resp.Content
	if resp.Encoding == "base64" {
		raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
		if err != nil {
			return File{}, foundationerrors.ForgeError("failed to decode file content").WithCause(err).WithContext("path", p).Build()
		}
		content = string(raw)
	}
	return File{Path: resp.Path, Content: content, Encoding: resp.Encoding, SHA: resp.SHA}, nil
}

// UpsertFile creates p or, when it exists, updates it using its current blob SHA.
func (c *Client) UpsertFile(ctx context.Context, repo Repo, p, content, message string) (UpsertResult, error) {
	body := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
	}
	if repo.Branch != "" {
		body["branch"] = repo.Branch
	}
	existing, err := c.GetFile(ctx, repo, p)
	switch {
	case err == nil:
		body["sha"] = existing.SHA
	case !IsNotFound(err):
		return UpsertResult{}, err
	}

	var resp commitResponse
	if err := c.do(ctx, http.MethodPut, repoEndpoint(repo.Owner, repo.Name, "contents", p), nil, body, &resp); err != nil {
		return UpsertResult{}, err
	}
	out := UpsertResult{CommitSHA: resp.Commit.SHA}
	if resp.Content != nil {
		out.ContentSHA = resp.Content.SHA
		out.HTMLURL = resp.Content.HTMLURL
	}
	return out, nil
}

// DeleteFile removes p. A 404 on the pre-read is reported as AlreadyAbsent.
func (c *Client) DeleteFile(ctx context.Context, repo Repo, p, message string) (DeleteResult, error) {
	existing, err := c.GetFile(ctx, repo, p)
	if err != nil {
		if IsNotFound(err) {
			return DeleteResult{Status: AlreadyAbsent}, nil
		}
		return DeleteResult{}, err
	}
	body := map[string]string{"message": message, "sha": existing.SHA}
	if repo.Branch != "" {
		body["branch"] = repo.Branch
	}
	var resp commitResponse
	if err := c.do(ctx, http.MethodDelete, repoEndpoint(repo.Owner, repo.Name, "contents", p), nil, body, &resp); err != nil {
		if IsNotFound(err) {
			return DeleteResult{Status: AlreadyAbsent}, nil
		}
		return DeleteResult{}, err
	}
	return DeleteResult{Status: Deleted, CommitSHA: resp.Commit.SHA}, nil
}

type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

// ListFiles enumerates everything below dir recursively, deduplicated by
// path and sorted. It uses the git trees API and falls back to walking the
// contents API when the tree response is truncated.
func (c *Client) ListFiles(ctx context.Context, repo Repo, dir string) ([]Entry, error) {
	ref := repo.Branch
	if ref == "" {
		ref = "HEAD"
	}
	var tree treeResponse
	if err := c.do(ctx, http.MethodGet, repoEndpoint(repo.Owner, repo.Name, "git", "trees", ref), url.Values{"recursive": {"1"}}, nil, &tree); err != nil {
		return nil, err
	}

	seen := make(map[string]Entry)
	if tree.Truncated {
		if err := c.walkContents(ctx, repo, strings.Trim(dir, "/"), seen); err != nil {
			return nil, err
		}
	} else {
		prefix := strings.Trim(dir, "/")
		for _, t := range tree.Tree {
			if prefix != "" && !strings.HasPrefix(t.Path, prefix+"/") {
				continue
			}
			kind := "file"
			if t.Type == "tree" {
				kind = "dir"
			}
			seen[t.Path] = Entry{Path: t.Path, Type: kind, SHA: t.SHA}
		}
	}

	out := make([]Entry, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (c *Client) walkContents(ctx context.Context, repo Repo, dir string, seen map[string]Entry) error {
	var items []contentResponse
	if err := c.do(ctx, http.MethodGet, repoEndpoint(repo.Owner, repo.Name, "contents", dir), branchQuery(repo.Branch), nil, &items); err != nil {
		return err
	}
	for _, it := range items {
		if _, dup := seen[it.Path]; dup {
			continue
		}
		seen[it.Path] = Entry{Path: it.Path, Type: it.Type, SHA: it.SHA}
		if it.Type == "dir" {
			if err := c.walkContents(ctx, repo, it.Path, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// OpenPullRequest opens a pull request from head into base.
func (c *Client) OpenPullRequest(ctx context.Context, repo Repo, head, base, title, body string) (PullRequest, error) {
	req := map[string]string{"title": title, "head": head, "base": base, "body": body}
	var resp struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
	}
	if err := c.do(ctx, http.MethodPost, repoEndpoint(repo.Owner, repo.Name, "pulls"), nil, req, &resp); err != nil {
		return PullRequest{}, err
	}
	return PullRequest{Number: resp.Number, HTMLURL: resp.HTMLURL}, nil
}

// BranchHead returns the commit SHA at the tip of repo.Branch.
func (c *Client) BranchHead(ctx context.Context, repo Repo) (string, error) {
	var resp struct {
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	if err := c.do(ctx, http.MethodGet, repoEndpoint(repo.Owner, repo.Name, "branches", repo.Branch), nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.Commit.SHA, nil
}
