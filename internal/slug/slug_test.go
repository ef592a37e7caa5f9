package slug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Hello World":          "hello-world",
		"  Già fatto! ":        "gia-fatto",
		"Django / Tutorials":   "django-tutorials",
		"Crème brûlée 2024":    "creme-brulee-2024",
		"already-a-slug":       "already-a-slug",
		"---":                  "",
		"Ünïcödé__and  spaces": "unicode-and-spaces",
	}
	for in, want := range cases {
		require.Equal(t, want, Slugify(in), "input %q", in)
	}
}

func TestIsValid(t *testing.T) {
	require.True(t, IsValid("django"))
	require.True(t, IsValid("post-2"))
	require.False(t, IsValid(""))
	require.False(t, IsValid("Django"))
	require.False(t, IsValid("django/tutorials"))
	require.False(t, IsValid("spaced out"))
}

func TestAudit(t *testing.T) {
	require.Empty(t, Audit("django-tutorial"))

	w := Audit("01-15-django-tutorial")
	require.Len(t, w, 1)
	require.Equal(t, WarnLeadingPartialDate, w[0].Code)

	w = Audit(strings.Repeat("a", MaxLength+1))
	require.Len(t, w, 1)
	require.Equal(t, WarnTooLong, w[0].Code)

	w = Audit("Bad_Slug")
	require.Len(t, w, 1)
	require.Equal(t, WarnInvalidChars, w[0].Code)

	w = Audit("")
	require.Equal(t, WarnEmpty, w[0].Code)
}
