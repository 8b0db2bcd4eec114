package framework

import "github.com/san-kum/blocksim/internal/value"

// AllocFunc produces the model value that fixes a cache slot's concrete type.
type AllocFunc func() value.AbstractValue

// CalcFunc computes a cache value into out.
type CalcFunc func(ctx Context, out value.AbstractValue)

// CacheEntry describes one lazily computed value of a system. The value
// itself lives in the [Cache] of each context allocated for that system.
type CacheEntry struct {
	index       CacheIndex
	description string
	alloc       AllocFunc
	calc        CalcFunc
}

func (e *CacheEntry) Index() CacheIndex   { return e.index }
func (e *CacheEntry) Description() string { return e.description }

func (e *CacheEntry) Allocate() value.AbstractValue {
	return e.alloc()
}

func (e *CacheEntry) Calc(ctx Context, out value.AbstractValue) {
	e.calc(ctx, out)
}

// EvalAbstract returns a copy of the entry's value in ctx, recomputing it
// first if the slot is out of date. The calculation writes into a scratch
// copy so it may read other values through the same context.
func (e *CacheEntry) EvalAbstract(ctx Context) value.AbstractValue {
	cache := ctx.Cache()
	slot := cache.slot(e.index)
	if slot.stale {
		scratch := slot.value.Clone()
		e.calc(ctx, scratch)
		slot.value.SetFrom(scratch)
		slot.stale = false
	}
	return slot.value.Clone()
}

type cacheSlot struct {
	value value.AbstractValue
	stale bool
}

// Cache holds one slot per cache entry declared by the owning system.
type Cache struct {
	slots []*cacheSlot
}

func newCache(entries []*CacheEntry) Cache {
	slots := make([]*cacheSlot, len(entries))
	for i, e := range entries {
		slots[i] = &cacheSlot{value: e.Allocate(), stale: true}
	}
	return Cache{slots: slots}
}

func (c *Cache) Len() int { return len(c.slots) }

// Value returns a copy of the slot's current value without recomputing it.
func (c *Cache) Value(i CacheIndex) value.AbstractValue {
	return c.slot(i).value.Clone()
}

func (c *Cache) IsOutOfDate(i CacheIndex) bool {
	return c.slot(i).stale
}

func (c *Cache) MarkOutOfDate(i CacheIndex) {
	c.slot(i).stale = true
}

func (c *Cache) MarkAllOutOfDate() {
	for _, s := range c.slots {
		s.stale = true
	}
}

func (c *Cache) slot(i CacheIndex) *cacheSlot {
	if i < 0 || int(i) >= len(c.slots) {
		fail("cache", "", ErrIndexOutOfRange, "cache index %d, have %d", i, len(c.slots))
	}
	return c.slots[i]
}
