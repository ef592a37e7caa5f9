package hashing

import (
	"crypto/md5" // #nosec G501 -- test recomputes the fingerprint
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeDocument_KnownValue(t *testing.T) {
	doc := "---\nlayout: post\ncategories:\n- django\n---\n\nHello\n"
	fp, err := ComputeDocument(doc)
	require.NoError(t, err)

	canonical := "categories:\n- django\nlayout: post\n\nHello\n"
	sum := md5.Sum([]byte(canonical)) // #nosec G401
	require.Equal(t, hex.EncodeToString(sum[:])[:10], fp.Exported)
	require.Len(t, fp.Exported, ExportedHashLength)
	require.Len(t, fp.Published, 64)
}

func TestComputeDocument_StableAcrossPresentation(t *testing.T) {
	a, err := ComputeDocument("---\nlayout: post\ncategories: [django]\n---\n\n\nHello\n\n\n")
	require.NoError(t, err)
	b, err := ComputeDocument("---\ncategories:\n  - django\nlayout: \"post\"\n---\nHello")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestComputeDocument_DetectsChanges(t *testing.T) {
	a, err := ComputeDocument("---\ncategories: [django]\n---\nHello\n")
	require.NoError(t, err)
	b, err := ComputeDocument("---\ncategories: [django]\n---\nHello, world\n")
	require.NoError(t, err)
	c, err := ComputeDocument("---\ncategories: [python]\n---\nHello\n")
	require.NoError(t, err)
	require.NotEqual(t, a.Exported, b.Exported)
	require.NotEqual(t, a.Exported, c.Exported)
	require.NotEqual(t, a.Published, c.Published)
}

func TestComputeDocument_RejectsInvalidHeader(t *testing.T) {
	_, err := ComputeDocument("\ufeff---\na: 1\n---\n")
	require.Error(t, err)
}

func TestCanonicalBody(t *testing.T) {
	require.Equal(t, "x\n", CanonicalBody("\n\nx"))
	require.Equal(t, "x\n\ny\n", CanonicalBody("x\n\ny\n\n\n"))
	require.Equal(t, "\n", CanonicalBody(""))
}
