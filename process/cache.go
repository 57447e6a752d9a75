package process

// ParentCache is the single-writer, same-thread-as-the-walker cache
// keyed by (fs id -> parent meta-address -> sequence discriminator) ->
// parent object id (spec.md §4.5 step 2, §9 "Manual three-level nested
// map for the parent cache"). Collisions are impossible by
// construction: the three-part key is exact, not a hashed bucket.
type ParentCache struct {
	byFs map[int64]map[int64]map[uint64]int64
}

// NewParentCache returns an empty cache.
func NewParentCache() *ParentCache {
	return &ParentCache{byFs: make(map[int64]map[int64]map[uint64]int64)}
}

// Get returns the cached object id for (fsID, metaAddr, discriminator),
// and whether it was present.
func (c *ParentCache) Get(fsID, metaAddr int64, discriminator uint64) (int64, bool) {
	byMeta, ok := c.byFs[fsID]
	if !ok {
		return 0, false
	}
	byDisc, ok := byMeta[metaAddr]
	if !ok {
		return 0, false
	}
	objID, ok := byDisc[discriminator]
	return objID, ok
}

// Put memoises the (fsID, metaAddr, discriminator) -> objID mapping,
// insertion order irrelevant.
func (c *ParentCache) Put(fsID, metaAddr int64, discriminator uint64, objID int64) {
	byMeta, ok := c.byFs[fsID]
	if !ok {
		byMeta = make(map[int64]map[uint64]int64)
		c.byFs[fsID] = byMeta
	}
	byDisc, ok := byMeta[metaAddr]
	if !ok {
		byDisc = make(map[uint64]int64)
		byMeta[metaAddr] = byDisc
	}
	byDisc[discriminator] = objID
}
