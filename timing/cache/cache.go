// Package cache provides a set-associative cache model driven by a trace of
// memory accesses.
package cache

// AccessKind is the direction of a memory access.
type AccessKind uint8

const (
	// Read is a load from memory.
	Read AccessKind = iota
	// Write is a store to memory.
	Write
)

func (k AccessKind) String() string {
	if k == Write {
		return "write"
	}
	return "read"
}

// Line is one physical storage slot of the cache. No data is modeled.
type Line struct {
	// Tag is meaningful only when Valid is set.
	Tag uint64
	// Valid is true once the slot has been filled.
	Valid bool
	// Dirty is true if the line was written during its occupancy.
	Dirty bool
	// Priority is the recency rank within the set. 0 is the most recently
	// used line, larger values are older.
	Priority int
}

// AccessResult contains the result of a cache probe.
type AccessResult struct {
	// Hit indicates whether the access was a cache hit.
	Hit bool
	// DirtyWriteback is true if the probe evicted a dirty line.
	DirtyWriteback bool
}

// Cache is a set-associative cache with a per-set recency stack.
type Cache struct {
	config  Config
	decoder *Decoder

	// Lines indexed by (setIndex * associativity + lane)
	lines []Line
}

// New creates a new cache with the given configuration. All lines start
// invalid.
func New(config Config) (*Cache, error) {
	decoder, err := NewDecoder(config)
	if err != nil {
		return nil, err
	}

	return &Cache{
		config:  config,
		decoder: decoder,
		lines:   make([]Line, config.NumBlocks()),
	}, nil
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Decoder returns the address decoder used by the cache.
func (c *Cache) Decoder() *Decoder {
	return c.decoder
}

// set returns the lines that belong to a set. The slice aliases the cache
// storage.
func (c *Cache) set(setIndex int) []Line {
	base := setIndex * c.config.Associativity
	return c.lines[base : base+c.config.Associativity]
}

// Set returns a copy of the lines of a set.
func (c *Cache) Set(setIndex int) []Line {
	lines := make([]Line, c.config.Associativity)
	copy(lines, c.set(setIndex))
	return lines
}

// ResidentTags returns the tags of the valid lines of a set in lane order.
func (c *Cache) ResidentTags(setIndex int) []uint64 {
	var tags []uint64
	for _, line := range c.set(setIndex) {
		if line.Valid {
			tags = append(tags, line.Tag)
		}
	}
	return tags
}

// Probe looks up an address, filling or replacing a line on a miss and
// updating the recency stack of the set.
func (c *Cache) Probe(kind AccessKind, addr uint64) AccessResult {
	tag := c.decoder.Tag(addr)
	lines := c.set(c.decoder.SetIndex(addr))
	isWrite := kind == Write

	result := AccessResult{}
	invalidIndex := -1
	index := -1

	// A free slot may come before the matching line, so the scan does not
	// stop at the first invalid line.
	for i := range lines {
		if !lines[i].Valid {
			invalidIndex = i
			continue
		}

		if lines[i].Tag != tag {
			continue
		}

		result.Hit = true
		index = i
		lines[i].Dirty = lines[i].Dirty || isWrite

		break
	}

	if !result.Hit {
		if invalidIndex >= 0 {
			index = invalidIndex
			lines[index].Valid = true
		} else {
			index = c.findVictim(lines)
			result.DirtyWriteback = lines[index].Dirty
		}

		lines[index].Tag = tag
		lines[index].Dirty = isWrite
	}

	c.visit(lines, index)

	return result
}

// findVictim returns the lane with the largest priority. Ties go to the
// lowest lane.
func (c *Cache) findVictim(lines []Line) int {
	victim := 0
	for i := 1; i < len(lines); i++ {
		if lines[i].Priority > lines[victim].Priority {
			victim = i
		}
	}
	return victim
}

// visit moves a lane to the top of the recency stack. Every line that was
// at or above the touched line's rank ages by one, capped at the
// associativity.
func (c *Cache) visit(lines []Line, index int) {
	p0 := lines[index].Priority
	for i := range lines {
		p := lines[i].Priority
		if p <= p0 && p < c.config.Associativity {
			lines[i].Priority = p + 1
		}
	}
	lines[index].Priority = 0
}

// Reset invalidates all cache lines.
func (c *Cache) Reset() {
	for i := range c.lines {
		c.lines[i] = Line{}
	}
}
