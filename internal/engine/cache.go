package engine

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ppiankov/triagewatch/internal/model"
)

// DecisionCache stores merged decisions by event signature.
// Implementations must be safe for concurrent use and bounded.
type DecisionCache interface {
	Get(key string) (model.MergedDecision, bool)
	Add(key string, value model.MergedDecision) bool
	Purge()
	Len() int
}

// NewCache returns a size-bounded LRU whose entries expire after ttl.
// A non-positive size disables caching and returns nil.
// A non-positive ttl keeps entries until they are evicted by size.
func NewCache(size int, ttl time.Duration) DecisionCache {
	if size <= 0 {
		return nil
	}
	return expirable.NewLRU[string, model.MergedDecision](size, nil, ttl)
}
