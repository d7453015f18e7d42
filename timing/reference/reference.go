// Package reference provides an independent true-LRU cache model built on
// Akita's cache directory. It is used to cross-check the recency-stack
// model in package cache.
package reference

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/cachesim/timing/cache"
)

// Model replays accesses against an Akita directory with an LRU victim
// finder. Tags are block-aligned addresses.
type Model struct {
	config    cache.Config
	directory *akitacache.DirectoryImpl
}

// New creates a reference model with the same geometry as config.
func New(config cache.Config) (*Model, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Model{
		config: config,
		directory: akitacache.NewDirectory(
			config.NumSets(),
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
	}, nil
}

// Access performs one access and reports the same outcome flags as
// cache.Cache.Probe.
func (m *Model) Access(kind cache.AccessKind, addr uint64) cache.AccessResult {
	blockAddr := addr &^ uint64(m.config.BlockSize-1)
	isWrite := kind == cache.Write

	block := m.directory.Lookup(0, blockAddr) // PID=0, single address space
	if block != nil && block.IsValid {
		block.IsDirty = block.IsDirty || isWrite
		m.directory.Visit(block)

		return cache.AccessResult{Hit: true}
	}

	result := cache.AccessResult{}

	victim := m.directory.FindVictim(blockAddr)
	if victim.IsValid && victim.IsDirty {
		result.DirtyWriteback = true
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = isWrite
	m.directory.Visit(victim)

	return result
}

// Reset invalidates all blocks.
func (m *Model) Reset() {
	m.directory.Reset()
}
