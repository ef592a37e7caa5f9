// Package hashing computes the two content fingerprints stored on a post.
//
// Both are taken over the same canonical text: the header dumped with sorted
// keys, a newline, then the body with leading blank lines removed and exactly
// one trailing newline. ExportedHash tracks what is on disk in the working
// copy; PublishedHash tracks what was last pushed through the forge API.
package hashing

import (
	"crypto/md5" // #nosec G501 -- content fingerprint, not a security boundary
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"git.home.luguber.info/inful/blogsync/internal/frontmatter"
)

// ExportedHashLength is the number of hex characters kept from the MD5 digest.
const ExportedHashLength = 10

// Fingerprints bundles both hashes of one document.
type Fingerprints struct {
	Exported  string
	Published string
}

// CanonicalBody strips leading newlines and normalizes the trailing newline.
func CanonicalBody(body string) string {
	return strings.TrimRight(strings.TrimLeft(body, "\n"), "\n") + "\n"
}

// Canonical returns the text both fingerprints are computed from.
func Canonical(doc *frontmatter.Document, body string) (string, error) {
	header, err := frontmatter.Canonical(doc)
	if err != nil {
		return "", err
	}
	return header + "\n" + CanonicalBody(body), nil
}

// Compute returns both fingerprints for a parsed header and body.
func Compute(doc *frontmatter.Document, body string) (Fingerprints, error) {
	text, err := Canonical(doc, body)
	if err != nil {
		return Fingerprints{}, err
	}
	return Fingerprints{Exported: md5Prefix(text), Published: sha256Hex(text)}, nil
}

// ComputeDocument parses a full Markdown document and fingerprints it.
func ComputeDocument(content string) (Fingerprints, error) {
	doc, body, err := frontmatter.Extract(content)
	if err != nil {
		return Fingerprints{}, err
	}
	return Compute(doc, body)
}

func md5Prefix(s string) string {
	sum := md5.Sum([]byte(s)) // #nosec G401 -- content fingerprint
	return hex.EncodeToString(sum[:])[:ExportedHashLength]
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
