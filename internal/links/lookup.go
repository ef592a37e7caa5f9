package links

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"git.home.luguber.info/inful/blogsync/internal/store"
)

// PostSource is the subset of the store StoreLookup reads from.
type PostSource interface {
	PostsBySlug(ctx context.Context, slug string) ([]store.Post, error)
	SiteByID(ctx context.Context, id int64) (store.Site, error)
}

// StoreLookup resolves slugs through the store and caches results for ttl.
type StoreLookup struct {
	src     PostSource
	targets *expirable.LRU[string, []Target]
	sites   *expirable.LRU[int64, store.Site]
}

// NewStoreLookup returns a cached Lookup holding at most size slugs.
func NewStoreLookup(src PostSource, size int, ttl time.Duration) *StoreLookup {
	return &StoreLookup{
		src:     src,
		targets: expirable.NewLRU[string, []Target](size, nil, ttl),
		sites:   expirable.NewLRU[int64, store.Site](size, nil, ttl),
	}
}

// PostsBySlug returns every post with slug together with its site.
func (l *StoreLookup) PostsBySlug(ctx context.Context, slug string) ([]Target, error) {
	if cached, ok := l.targets.Get(slug); ok {
		return cached, nil
	}
	posts, err := l.src.PostsBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	out := make([]Target, 0, len(posts))
	for _, p := range posts {
		site, err := l.site(ctx, p.SiteID)
		if err != nil {
			return nil, err
		}
		out = append(out, Target{Post: p, Site: site})
	}
	l.targets.Add(slug, out)
	return out, nil
}

func (l *StoreLookup) site(ctx context.Context, id int64) (store.Site, error) {
	if s, ok := l.sites.Get(id); ok {
		return s, nil
	}
	s, err := l.src.SiteByID(ctx, id)
	if err != nil {
		return store.Site{}, err
	}
	l.sites.Add(id, s)
	return s, nil
}

// Forget drops a cached slug, e.g. after the post was saved.
func (l *StoreLookup) Forget(slug string) {
	l.targets.Remove(slug)
}
