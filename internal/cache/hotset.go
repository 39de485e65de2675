package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// HotSet remembers the most recently requested ids, bounded by size, so
// they can be pre-warmed again before their logical expiry.
type HotSet[K comparable] struct {
	size int
	lru  *lru.Cache[K, struct{}]
}

func NewHotSet[K comparable](size int) (*HotSet[K], error) {
	c, err := lru.New[K, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &HotSet[K]{
		size: size,
		lru:  c,
	}, nil
}

func (h *HotSet[K]) Touch(id K) {
	h.lru.Add(id, struct{}{})
}

func (h *HotSet[K]) Forget(id K) {
	h.lru.Remove(id)
}

func (h *HotSet[K]) Contains(id K) bool {
	return h.lru.Contains(id)
}

// IDs lists tracked ids from the least to the most recently touched.
func (h *HotSet[K]) IDs() []K {
	return h.lru.Keys()
}

func (h *HotSet[K]) Len() int { return h.lru.Len() }

func (h *HotSet[K]) Cap() int { return h.size }
