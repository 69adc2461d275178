package extract

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSeenSize bounds the paragraph dedup cache when no size is configured.
const DefaultSeenSize = 4096

// Seen remembers paragraphs that already produced notices. It is bounded, so
// a paragraph evicted from the cache may be reported again.
type Seen struct {
	cache *lru.Cache[string, struct{}]
}

// NewSeen creates a Seen cache holding at most size paragraphs.
func NewSeen(size int) (*Seen, error) {
	if size <= 0 {
		size = DefaultSeenSize
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create seen cache: %w", err)
	}
	return &Seen{cache: cache}, nil
}

// MarkIfNew stores the paragraph if it has not been seen before and returns true.
// A nil Seen treats every paragraph as new.
func (s *Seen) MarkIfNew(par string) bool {
	if s == nil {
		return true
	}
	found, _ := s.cache.ContainsOrAdd(par, struct{}{})
	return !found
}

// Len reports how many paragraphs are remembered.
func (s *Seen) Len() int {
	if s == nil {
		return 0
	}
	return s.cache.Len()
}
