package logfields

import (
	"errors"
	"testing"
)

func TestHelpers(t *testing.T) {
	if a := Site("blog-a"); a.Key != KeySite || a.Value.String() != "blog-a" {
		t.Fatalf("unexpected site attr: %+v", a)
	}
	if a := PostID(42); a.Key != KeyPostID || a.Value.Int64() != 42 {
		t.Fatalf("unexpected post attr: %+v", a)
	}
	if a := Error(nil); a.Value.String() != "" {
		t.Fatalf("nil error should render empty, got %q", a.Value.String())
	}
	if a := Error(errors.New("boom")); a.Value.String() != "boom" {
		t.Fatalf("unexpected error attr: %+v", a)
	}
}
