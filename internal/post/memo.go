package post

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nyu-acsys/krill-sub000/internal/logic"
)

// MemoCache memoizes the post-image of a macro invocation keyed by the
// macro's name and the string form of its pre-annotation, so the lazy
// macro strategy in the proof driver can skip
// re-deriving a post-image already computed for an equivalent pre-state
// within the current sweep.
type MemoCache struct {
	cache *lru.Cache[string, Result]
}

// NewMemoCache builds a cache holding up to size entries, evicting least
// recently used ones once full.
func NewMemoCache(size int) (*MemoCache, error) {
	c, err := lru.New[string, Result](size)
	if err != nil {
		return nil, err
	}
	return &MemoCache{cache: c}, nil
}

// Key derives the memoization key for one macro call. Two pre-annotations
// that print identically are treated as equivalent; this is conservative
// — structurally distinct but logically equivalent states still miss.
func (m *MemoCache) Key(macro string, pre logic.Annotation) string {
	return macro + "\x00" + pre.String()
}

// Lookup returns a cached post-image for key, if any.
func (m *MemoCache) Lookup(key string) (Result, bool) {
	return m.cache.Get(key)
}

// Store records result under key, replacing any prior entry.
func (m *MemoCache) Store(key string, result Result) {
	m.cache.Add(key, result)
}

// Purge drops every cached entry. The driver calls it at the start of
// every sweep, so a post-image derived against an older interference pool
// is never reused.
func (m *MemoCache) Purge() {
	m.cache.Purge()
}
