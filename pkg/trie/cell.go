package trie

import "sync/atomic"

// Cell publishes a *Forest for lock-free concurrent reads. Readers Load
// once per call and traverse their own snapshot; writers build a complete
// replacement forest off to the side and Store it in a single atomic
// write. A reader never observes a partially-built forest, and the
// previous forest is simply dropped by the garbage collector once the
// last reader holding it returns.
type Cell struct {
	ptr atomic.Pointer[Forest]
}

// NewCell returns a Cell holding an empty forest.
func NewCell() *Cell {
	c := &Cell{}
	c.ptr.Store(NewForest())
	return c
}

// Load returns the currently published forest.
func (c *Cell) Load() *Forest {
	return c.ptr.Load()
}

// Store atomically publishes f as the current forest.
func (c *Cell) Store(f *Forest) {
	c.ptr.Store(f)
}
