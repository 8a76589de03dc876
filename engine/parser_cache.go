package engine

import lru "github.com/hashicorp/golang-lru/v2"

// templateCache stores one ParseResult per distinct template hash (C5): two
// formulas whose token streams differ only in their relative cell/range
// operands collapse to the same hash (spec §4.1) and therefore share one
// parsed AST plus one set of extracted dependency descriptors, reparsed only
// once per distinct template rather than once per cell. Backed by an
// unbounded map by default, or a bounded github.com/hashicorp/golang-lru/v2
// cache when Configuration.ParserCacheSize is positive.
type templateCache struct {
	plain map[uint64]*ParseResult
	lru   *lru.Cache[uint64, *ParseResult]
}

func newTemplateCache(size int) *templateCache {
	if size > 0 {
		c, err := lru.New[uint64, *ParseResult](size)
		if err == nil {
			return &templateCache{lru: c}
		}
	}
	return &templateCache{plain: make(map[uint64]*ParseResult)}
}

func (c *templateCache) get(hash uint64) (*ParseResult, bool) {
	if c.lru != nil {
		return c.lru.Get(hash)
	}
	r, ok := c.plain[hash]
	return r, ok
}

func (c *templateCache) put(hash uint64, result *ParseResult) {
	if c.lru != nil {
		c.lru.Add(hash, result)
		return
	}
	c.plain[hash] = result
}

func (c *templateCache) len() int {
	if c.lru != nil {
		return c.lru.Len()
	}
	return len(c.plain)
}

func (c *templateCache) purge() {
	if c.lru != nil {
		c.lru.Purge()
		return
	}
	c.plain = make(map[uint64]*ParseResult)
}
